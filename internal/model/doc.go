// Package model defines the order, menu and queue records shared by every
// offpos package.
//
// This package contains types and pure helpers only. All other internal
// packages import model; model imports nothing internal.
//
// Key constraints:
//   - Money is int64 minor units, never floats
//   - Ids are opaque client-generated strings
//   - Table occupancy is never stored, it is derived from active orders
//   - All JSON tags use snake_case
package model
