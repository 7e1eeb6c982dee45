package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kioskolabs/kiosko-sync/internal/models"
	"github.com/kioskolabs/kiosko-sync/internal/store"

	"github.com/google/uuid"
)

var ErrMissingSKU = errors.New("product sku is required")

// Service manages product records in the local store. Inventory shares
// the store mechanics with sales but never touches the sync queue.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

func NewService(s *store.Store, l *slog.Logger) *Service {
	return &Service{store: s, logger: l}
}

// Upsert writes a product, assigning an id when the caller did not.
func (s *Service) Upsert(ctx context.Context, p models.Product) (*models.Product, error) {
	if p.SKU == "" {
		return nil, ErrMissingSKU
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize product: %w", err)
	}
	if err := s.store.Put(ctx, models.CollectionProducts, p.ID, payload); err != nil {
		return nil, err
	}

	s.logger.Debug("Product upserted", "product_id", p.ID, "sku", p.SKU)
	return &p, nil
}

// List returns all products in the catalog.
func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	records, err := s.store.GetAll(ctx, models.CollectionProducts)
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(records))
	for _, r := range records {
		var p models.Product
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return nil, fmt.Errorf("corrupt product record %s: %w", r.ID, err)
		}
		products = append(products, p)
	}
	return products, nil
}

// Delete removes a product. Missing ids are not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, models.CollectionProducts, id)
}
