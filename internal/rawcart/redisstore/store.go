package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mahendraputra/storefront-backend/internal/rawcart"
	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
	"github.com/mahendraputra/storefront-backend/pkg/redis"
)

// Provider keeps each user's raw cart as a TTL'd JSON document in Redis. It
// implements the upstream cart contract for standalone deployments.
type Provider struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProvider(client *redis.Client, ttl time.Duration) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Provider{client: client, ttl: ttl}, nil
}

func (p *Provider) ForUser(userID string) rawcart.Store {
	return &store{provider: p, userID: userID}
}

type store struct {
	provider *Provider
	userID   string
}

func (s *store) key() string {
	return s.provider.client.Key("rawcart", s.userID)
}

func (s *store) load(ctx context.Context) ([]rawcart.Line, error) {
	data, err := s.provider.client.Get(ctx, s.key())
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis get cart")
	}
	var lines []rawcart.Line
	if err := json.Unmarshal([]byte(data), &lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unmarshal cart")
	}
	return lines, nil
}

func (s *store) save(ctx context.Context, lines []rawcart.Line) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal cart")
	}
	if err := s.provider.client.Set(ctx, s.key(), string(data), s.provider.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis set cart")
	}
	return nil
}

func (s *store) Fetch(ctx context.Context) ([]rawcart.Line, error) {
	return s.load(ctx)
}

func (s *store) AddItem(ctx context.Context, input rawcart.AddInput) error {
	if input.ProductID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}
	if input.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid quantity")
	}

	lines, err := s.load(ctx)
	if err != nil {
		return err
	}

	ref := rawcart.ItemRef{
		ProductID:     input.ProductID,
		VariantID:     input.VariantID,
		CombinationID: input.SelectedOptions[rawcart.OptionCombinationID],
	}
	if idx := indexOf(lines, ref); idx >= 0 {
		lines[idx].Quantity += input.Quantity
		if input.SelectedOptions != nil {
			lines[idx].SelectedOptions = input.SelectedOptions
		}
	} else {
		line := rawcart.Line{
			ProductID:       input.ProductID,
			VariantID:       input.VariantID,
			Quantity:        input.Quantity,
			SelectedOptions: input.SelectedOptions,
		}
		if input.Price != nil {
			line.Price = *input.Price
		}
		lines = append(lines, line)
	}
	return s.save(ctx, lines)
}

func (s *store) UpdateItem(ctx context.Context, ref rawcart.ItemRef, input rawcart.UpdateInput) error {
	lines, err := s.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(lines, ref)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	if input.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid quantity")
	}
	lines[idx].Quantity = input.Quantity
	if input.SelectedOptions != nil {
		lines[idx].SelectedOptions = input.SelectedOptions
	}
	if input.Price != nil {
		lines[idx].Price = *input.Price
	}
	return s.save(ctx, lines)
}

func (s *store) RemoveItem(ctx context.Context, ref rawcart.ItemRef) error {
	lines, err := s.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(lines, ref)
	if idx < 0 {
		// Already removed.
		return nil
	}
	lines = append(lines[:idx], lines[idx+1:]...)
	if len(lines) == 0 {
		return s.clear(ctx)
	}
	return s.save(ctx, lines)
}

func (s *store) Clear(ctx context.Context) error {
	return s.clear(ctx)
}

func (s *store) clear(ctx context.Context) error {
	if err := s.provider.client.Del(ctx, s.key()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis del cart")
	}
	return nil
}

// indexOf matches lines the way the upstream path addresses them: by variant
// (+combination), falling back to product id for variant-less lines.
func indexOf(lines []rawcart.Line, ref rawcart.ItemRef) int {
	for i, line := range lines {
		if line.VariantID != ref.VariantID {
			continue
		}
		if line.SelectedOptions[rawcart.OptionCombinationID] != ref.CombinationID {
			continue
		}
		if line.VariantID == "" && ref.ProductID != "" && line.ProductID != ref.ProductID {
			continue
		}
		return i
	}
	return -1
}
