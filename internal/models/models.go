// Package models holds the persisted entities of carts, inventory and orders.
package models

// All lists every model for schema migration.
func All() []any {
	return []any{
		&Product{}, &Variant{}, &Seller{}, &DeliveryZone{},
		&InventoryRecord{}, &StockMovement{}, &Reservation{},
		&Cart{}, &CartItem{},
		&Order{}, &OrderItem{}, &StatusHistoryEntry{}, &OrderSequence{},
		&Wallet{}, &WalletTransaction{}, &Settlement{},
	}
}
