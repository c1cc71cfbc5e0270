package services

import (
	"context"

	"pasar/internal/models"
	"pasar/internal/repositories"
	"pasar/internal/validation"
)

// ProductService is the catalog side the ordering core reads from. Creating a
// product also opens an inventory record per purchasable unit.
type ProductService struct {
	repo      repositories.ProductRepository
	sellers   repositories.SellerRepository
	inventory *InventoryService
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository, sellers repositories.SellerRepository, inventory *InventoryService) *ProductService {
	return &ProductService{
		repo:      repo,
		sellers:   sellers,
		inventory: inventory,
	}
}

// VariantInput is one variant of a new product with its opening stock.
type VariantInput struct {
	Name         string `json:"name" validate:"required"`
	SKU          string `json:"sku,omitempty"`
	Price        int64  `json:"price" validate:"gte=0"`
	InitialStock int    `json:"initialStock" validate:"gte=0"`
}

// CreateProductInput describes a product listed by a seller.
type CreateProductInput struct {
	SellerID          string         `json:"sellerId" validate:"required"`
	Name              string         `json:"name" validate:"required"`
	SKU               string         `json:"sku,omitempty"`
	ImageURL          string         `json:"imageUrl,omitempty"`
	Price             int64          `json:"price" validate:"gt=0"`
	PointsPrice       int64          `json:"pointsPrice" validate:"gte=0"`
	InitialStock      int            `json:"initialStock" validate:"gte=0"`
	LowStockThreshold int            `json:"lowStockThreshold" validate:"gte=0"`
	Variants          []VariantInput `json:"variants,omitempty" validate:"dive"`
	Actor             string         `json:"-"`
}

// GetProductByID retrieves a single product with its variants.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "product %s not found", id)
	}
	return p, nil
}

// GetSeller retrieves a seller profile.
func (s *ProductService) GetSeller(ctx context.Context, id string) (*models.Seller, error) {
	seller, err := s.sellers.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "seller %s not found", id)
	}
	return seller, nil
}

// CreateSeller registers a seller profile.
func (s *ProductService) CreateSeller(ctx context.Context, seller *models.Seller) error {
	if err := validation.Var("name", seller.Name, "required"); err != nil {
		return err
	}
	return s.sellers.Create(ctx, seller)
}

// CreateProduct lists a product. A product with variants gets one inventory
// record per variant; otherwise the product itself is stocked.
func (s *ProductService) CreateProduct(ctx context.Context, in CreateProductInput) (*models.Product, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.GetSeller(ctx, in.SellerID); err != nil {
		return nil, err
	}

	product := &models.Product{
		SellerID:    in.SellerID,
		Name:        in.Name,
		SKU:         in.SKU,
		ImageURL:    in.ImageURL,
		Price:       in.Price,
		PointsPrice: in.PointsPrice,
	}
	for _, v := range in.Variants {
		product.Variants = append(product.Variants, models.Variant{Name: v.Name, SKU: v.SKU, Price: v.Price})
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}

	open := func(variantID string, qty int) error {
		_, err := s.inventory.CreateRecord(ctx, CreateRecordInput{
			ProductID:         product.ID,
			VariantID:         variantID,
			SellerID:          product.SellerID,
			InitialQuantity:   qty,
			LowStockThreshold: in.LowStockThreshold,
			Actor:             in.Actor,
		})
		return err
	}
	if len(product.Variants) == 0 {
		if err := open("", in.InitialStock); err != nil {
			return nil, err
		}
	}
	for i, v := range product.Variants {
		if err := open(v.ID, in.Variants[i].InitialStock); err != nil {
			return nil, err
		}
	}
	return s.GetProductByID(ctx, product.ID)
}
