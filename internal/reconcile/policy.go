package reconcile

// Policy names how pulled data for one entity type lands in the local store.
type Policy string

const (
	// PolicyReplaceCollection swaps the whole local collection for the
	// pulled one, keeping rows still pending creation on this device.
	PolicyReplaceCollection Policy = "replace_collection"

	// PolicyUpsertReplaceChildren upserts each pulled parent by id and
	// replaces its children wholesale with the pulled set. Parents the
	// pull does not mention are left alone.
	PolicyUpsertReplaceChildren Policy = "upsert_replace_children"
)

// Entity names used as policy keys.
const (
	EntityMenuItems = "menu_items"
	EntityTables    = "tables"
	EntityOrders    = "orders"
)

// Policies returns the pull policy of every entity type.
func Policies() map[string]Policy {
	return map[string]Policy{
		EntityMenuItems: PolicyReplaceCollection,
		EntityTables:    PolicyReplaceCollection,
		EntityOrders:    PolicyUpsertReplaceChildren,
	}
}
