package models

import "time"

// ProductStatus is the catalog availability state of a product.
type ProductStatus string

const (
	ProductActive     ProductStatus = "active"
	ProductInactive   ProductStatus = "inactive"
	ProductOutOfStock ProductStatus = "out_of_stock"
)

// Product is the read-only catalog view the ordering core needs.
// Prices are in the smallest currency unit.
type Product struct {
	ID          string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SellerID    string        `json:"sellerId" gorm:"type:varchar(36);index"`
	Name        string        `json:"name"`
	SKU         string        `json:"sku" gorm:"type:varchar(64)"`
	ImageURL    string        `json:"imageUrl"`
	Price       int64         `json:"price"`
	PointsPrice int64         `json:"pointsPrice"`
	Status      ProductStatus `json:"status" gorm:"type:varchar(16);index"`
	Variants    []Variant     `json:"variants,omitempty" gorm:"foreignKey:ProductID"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	DeletedAt   *time.Time    `json:"-" gorm:"index"`
}

// Variant is a purchasable option of a product. A zero Price inherits the product's.
type Variant struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProductID string     `json:"productId" gorm:"type:varchar(36);index"`
	Name      string     `json:"name"`
	SKU       string     `json:"sku" gorm:"type:varchar(64)"`
	ImageURL  string     `json:"imageUrl"`
	Price     int64      `json:"price"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"-" gorm:"index"`
}

// UnitPrice resolves the price of the product, or of the variant when one is given.
func (p *Product) UnitPrice(v *Variant) int64 {
	if v != nil && v.Price > 0 {
		return v.Price
	}
	return p.Price
}

// SKUFor returns the variant SKU when present, the product SKU otherwise.
func (p *Product) SKUFor(v *Variant) string {
	if v != nil && v.SKU != "" {
		return v.SKU
	}
	return p.SKU
}

// ImageFor returns the variant image when present, the product image otherwise.
func (p *Product) ImageFor(v *Variant) string {
	if v != nil && v.ImageURL != "" {
		return v.ImageURL
	}
	return p.ImageURL
}

// NameFor combines product and variant names for order snapshots.
func (p *Product) NameFor(v *Variant) string {
	if v != nil && v.Name != "" {
		return p.Name + " - " + v.Name
	}
	return p.Name
}
