package reconcile

import (
	"sort"

	"github.com/roach88/offpos/internal/model"
)

// DuplicateGroup is one table with more than one active order.
type DuplicateGroup struct {
	TableID    string   `json:"table_id"`
	Canonical  string   `json:"canonical"`
	Duplicates []string `json:"duplicates"`
}

// DetectDuplicates groups active orders by physical table and picks one
// canonical order for every group larger than one.
//
// Canonical preference: an order still referenced by pending queue entries
// (this device's unsynced intent), then the most recently created, then the
// greatest id. Takeaway orders and orders already quarantined are ignored.
// Groups are returned sorted by table; duplicates within a group by id.
func DetectDuplicates(orders []model.Order, pending map[string]bool) []DuplicateGroup {
	byTable := make(map[string][]model.Order)
	for _, o := range orders {
		if !o.Active() || model.IsTakeaway(o.TableID) {
			continue
		}
		byTable[o.TableID] = append(byTable[o.TableID], o)
	}

	var groups []DuplicateGroup
	for table, members := range byTable {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return prefer(members[i], members[j], pending)
		})
		g := DuplicateGroup{TableID: table, Canonical: members[0].ID}
		for _, o := range members[1:] {
			g.Duplicates = append(g.Duplicates, o.ID)
		}
		sort.Strings(g.Duplicates)
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].TableID < groups[j].TableID })
	return groups
}

// prefer reports whether a should be chosen as canonical over b.
func prefer(a, b model.Order, pending map[string]bool) bool {
	if pa, pb := pending[a.ID], pending[b.ID]; pa != pb {
		return pa
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
