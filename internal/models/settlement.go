package models

import "time"

type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementSettled SettlementStatus = "settled"
)

// Settlement tracks the post-delivery payout of an order. Each leg is paid once;
// a pending settlement is retried until every leg is paid.
type Settlement struct {
	ID              string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID         string           `json:"orderId" gorm:"type:varchar(36);uniqueIndex"`
	SellerID        string           `json:"sellerId" gorm:"type:varchar(36)"`
	CourierID       *string          `json:"courierId,omitempty" gorm:"type:varchar(36)"`
	SellerEarnings  int64            `json:"sellerEarnings"`
	CourierEarnings int64            `json:"courierEarnings"`
	PlatformFee     int64            `json:"platformFee"`
	Computed        bool             `json:"computed"`
	SellerPaid      bool             `json:"sellerPaid"`
	CourierPaid     bool             `json:"courierPaid"`
	PlatformPaid    bool             `json:"platformPaid"`
	Status          SettlementStatus `json:"status" gorm:"type:varchar(16);index"`
	Attempts        int              `json:"attempts"`
	LastError       string           `json:"lastError,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}
