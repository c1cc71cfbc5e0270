package models

import "time"

// Seller is the profile view used for order acceptance and delivery pricing.
type Seller struct {
	ID                    string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name                  string         `json:"name"`
	IsActive              bool           `json:"isActive"`
	FlatDeliveryFee       int64          `json:"flatDeliveryFee"`
	FreeDeliveryThreshold int64          `json:"freeDeliveryThreshold"`
	DeliveryZones         []DeliveryZone `json:"deliveryZones,omitempty" gorm:"foreignKey:SellerID"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
	DeletedAt             *time.Time     `json:"-" gorm:"index"`
}

// DeliveryZone overrides the flat fee for deliveries into a city.
type DeliveryZone struct {
	ID       uint   `json:"-" gorm:"primaryKey"`
	SellerID string `json:"sellerId" gorm:"type:varchar(36);index"`
	City     string `json:"city"`
	Fee      int64  `json:"fee"`
}
