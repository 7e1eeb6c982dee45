package models

// Collection names one of the logical record sets in the local store.
type Collection string

const (
	CollectionProducts  Collection = "products"
	CollectionSales     Collection = "sales"
	CollectionSyncQueue Collection = "sync_queue"
)

// CollectionRegistry is the whitelist of collections the store will touch.
// Any operation against an unregistered collection is rejected before it
// reaches SQL.
var CollectionRegistry = map[Collection]bool{
	CollectionProducts:  true,
	CollectionSales:     true,
	CollectionSyncQueue: true,
}
