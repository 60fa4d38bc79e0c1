package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/store"
)

// ProductInput is the validated input for creating a product.
type ProductInput struct {
	Name           string
	Price          decimal.Decimal
	QuantityOnHand int
	Category       string
}

// ProductPatch carries the fields an edit changes; nil fields are kept.
type ProductPatch struct {
	Name           *string
	Price          *decimal.Decimal
	QuantityOnHand *int
	Category       *string
}

// InventoryService manages the product catalog and stock levels.
type InventoryService struct {
	store store.Store
	blobs BlobStore
}

// NewInventoryService creates a new InventoryService. blobs may be nil when
// image uploads are not configured.
func NewInventoryService(s store.Store, blobs BlobStore) *InventoryService {
	return &InventoryService{store: s, blobs: blobs}
}

// ListProducts returns the catalog sorted by name.
func (s *InventoryService) ListProducts(ctx context.Context) ([]model.Product, error) {
	docs, err := s.store.GetAll(ctx, enum.CollectionProducts)
	if err != nil {
		return nil, storeErr(err, "list products")
	}
	products, err := store.DecodeAll[model.Product](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(products, func(i, j int) bool {
		return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name)
	})
	return products, nil
}

func (s *InventoryService) GetProduct(ctx context.Context, id string) (model.Product, error) {
	var p model.Product
	if err := s.store.Get(ctx, enum.CollectionProducts, id, &p); err != nil {
		return model.Product{}, storeErr(err, "product "+id)
	}
	return p, nil
}

// CreateProduct validates and saves a new product. Names are unique.
func (s *InventoryService) CreateProduct(ctx context.Context, in ProductInput) (model.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Product{}, validationf("name is required")
	}
	if in.Price.IsNegative() {
		return model.Product{}, validationf("price must be >= 0")
	}
	if in.QuantityOnHand < 0 {
		return model.Product{}, validationf("quantity_on_hand must be >= 0")
	}
	if err := s.checkNameFree(ctx, name, ""); err != nil {
		return model.Product{}, err
	}

	ts := now()
	p := model.Product{
		Name:           name,
		Price:          in.Price,
		QuantityOnHand: in.QuantityOnHand,
		Category:       normalizeCategory(in.Category),
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	id, err := s.store.Create(ctx, enum.CollectionProducts, p)
	if err != nil {
		return model.Product{}, storeErr(err, "create product")
	}
	p.ID = id
	return p, nil
}

// UpdateProduct applies a staff edit to a product.
func (s *InventoryService) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (model.Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return model.Product{}, err
	}

	changes := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.Product{}, validationf("name is required")
		}
		if name != p.Name {
			if err := s.checkNameFree(ctx, name, id); err != nil {
				return model.Product{}, err
			}
		}
		p.Name = name
		changes["name"] = name
	}
	if patch.Price != nil {
		if patch.Price.IsNegative() {
			return model.Product{}, validationf("price must be >= 0")
		}
		p.Price = *patch.Price
		changes["price"] = p.Price
	}
	if patch.QuantityOnHand != nil {
		if *patch.QuantityOnHand < 0 {
			return model.Product{}, validationf("quantity_on_hand must be >= 0")
		}
		p.QuantityOnHand = *patch.QuantityOnHand
		changes["quantity_on_hand"] = p.QuantityOnHand
	}
	if patch.Category != nil {
		p.Category = normalizeCategory(*patch.Category)
		changes["category"] = p.Category
	}
	if len(changes) == 0 {
		return p, nil
	}

	p.UpdatedAt = now()
	changes["updated_at"] = p.UpdatedAt
	if err := s.store.Update(ctx, enum.CollectionProducts, id, changes); err != nil {
		return model.Product{}, storeErr(err, "update product "+id)
	}
	return p, nil
}

func (s *InventoryService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, enum.CollectionProducts, id); err != nil {
		return storeErr(err, "product "+id)
	}
	return nil
}

// AdjustStock adds delta (which may be negative) to a product's stock.
// Stock never drops below zero.
func (s *InventoryService) AdjustStock(ctx context.Context, id string, delta int) (model.Product, error) {
	var p model.Product
	err := s.store.Transact(ctx, func(c store.Collections) error {
		if err := c.Lock(ctx, enum.CollectionProducts, id, &p); err != nil {
			return storeErr(err, "product "+id)
		}
		next := p.QuantityOnHand + delta
		if next < 0 {
			return fmt.Errorf("%w: %s has %d, cannot remove %d", ErrInsufficientStock, p.Name, p.QuantityOnHand, -delta)
		}
		p.QuantityOnHand = next
		p.UpdatedAt = now()
		return storeErr(c.Update(ctx, enum.CollectionProducts, id, map[string]any{
			"quantity_on_hand": next,
			"updated_at":       p.UpdatedAt,
		}), "update product "+id)
	})
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// SetProductImage uploads an image and records its URL on the product.
func (s *InventoryService) SetProductImage(ctx context.Context, id string, data []byte, contentType string) (model.Product, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return model.Product{}, err
	}
	url, err := upload(ctx, s.blobs, "products/"+id, data, contentType)
	if err != nil {
		return model.Product{}, err
	}
	p.ImageRef = url
	p.UpdatedAt = now()
	if err := s.store.Update(ctx, enum.CollectionProducts, id, map[string]any{
		"image_ref":  url,
		"updated_at": p.UpdatedAt,
	}); err != nil {
		return model.Product{}, storeErr(err, "update product "+id)
	}
	return p, nil
}

// ListCategories returns the distinct product categories, sorted.
func (s *InventoryService) ListCategories(ctx context.Context) ([]string, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, p := range products {
		c := normalizeCategory(p.Category)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- Helpers ---

func (s *InventoryService) checkNameFree(ctx context.Context, name, selfID string) error {
	docs, err := s.store.Query(ctx, enum.CollectionProducts, store.Where("name", store.OpEq, name))
	if err != nil {
		return storeErr(err, "check product name")
	}
	for _, d := range docs {
		if d.ID != selfID {
			return fmt.Errorf("%w: product %q", ErrConflict, name)
		}
	}
	return nil
}

func normalizeCategory(c string) string {
	if c = strings.TrimSpace(c); c == "" {
		return enum.DefaultCategory
	}
	return c
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// upload stores an image under prefix with an extension derived from its
// content type.
func upload(ctx context.Context, blobs BlobStore, prefix string, data []byte, contentType string) (string, error) {
	if blobs == nil {
		return "", validationf("uploads are not configured")
	}
	if len(data) == 0 {
		return "", validationf("file is empty")
	}
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", validationf("unsupported image type %q", contentType)
	}
	url, err := blobs.Upload(ctx, prefix+ext, data)
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", ErrRemoteIO, prefix, err)
	}
	return url, nil
}
