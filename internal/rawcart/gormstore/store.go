package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mahendraputra/storefront-backend/internal/rawcart"
	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
)

// CartItem is the persisted row behind one raw cart line.
type CartItem struct {
	ID              uint   `gorm:"primaryKey"`
	UserID          string `gorm:"column:user_id;index;not null"`
	ProductID       string `gorm:"column:product_id;not null"`
	VariantID       string `gorm:"column:variant_id;not null;default:''"`
	CombinationID   string `gorm:"column:combination_id;not null;default:''"`
	Quantity        int    `gorm:"column:quantity;not null;default:1"`
	Price           int64  `gorm:"column:price;not null;default:0"`
	SelectedOptions string `gorm:"column:selected_options;not null;default:'{}'"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (CartItem) TableName() string { return "cart_items" }

// Provider is the durable implementation of the upstream cart contract.
type Provider struct {
	db *gorm.DB
}

func NewProvider(db *gorm.DB) (*Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &Provider{db: db}, nil
}

func (p *Provider) ForUser(userID string) rawcart.Store {
	return &store{db: p.db, userID: userID}
}

type store struct {
	db     *gorm.DB
	userID string
}

func (s *store) Fetch(ctx context.Context) ([]rawcart.Line, error) {
	var items []CartItem
	err := s.db.WithContext(ctx).
		Where("user_id = ?", s.userID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
	}

	lines := make([]rawcart.Line, 0, len(items))
	for _, item := range items {
		line, err := item.toLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *store) AddItem(ctx context.Context, input rawcart.AddInput) error {
	if input.ProductID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}
	if input.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid quantity")
	}

	combinationID := input.SelectedOptions[rawcart.OptionCombinationID]

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing CartItem
		err := s.scopeRef(tx, rawcart.ItemRef{
			ProductID:     input.ProductID,
			VariantID:     input.VariantID,
			CombinationID: combinationID,
		}).First(&existing).Error

		switch {
		case err == nil:
			updates := map[string]any{"quantity": existing.Quantity + input.Quantity}
			if input.SelectedOptions != nil {
				encoded, encErr := encodeOptions(input.SelectedOptions)
				if encErr != nil {
					return encErr
				}
				updates["selected_options"] = encoded
			}
			if dbErr := tx.Model(&existing).Updates(updates).Error; dbErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, dbErr, "update cart item")
			}
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			encoded, encErr := encodeOptions(input.SelectedOptions)
			if encErr != nil {
				return encErr
			}
			item := CartItem{
				UserID:          s.userID,
				ProductID:       input.ProductID,
				VariantID:       input.VariantID,
				CombinationID:   combinationID,
				Quantity:        input.Quantity,
				SelectedOptions: encoded,
			}
			if input.Price != nil {
				item.Price = *input.Price
			}
			if dbErr := tx.Create(&item).Error; dbErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, dbErr, "insert cart item")
			}
			return nil

		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find cart item")
		}
	})
}

func (s *store) UpdateItem(ctx context.Context, ref rawcart.ItemRef, input rawcart.UpdateInput) error {
	if input.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid quantity")
	}

	updates := map[string]any{"quantity": input.Quantity}
	if input.SelectedOptions != nil {
		encoded, err := encodeOptions(input.SelectedOptions)
		if err != nil {
			return err
		}
		updates["selected_options"] = encoded
		updates["combination_id"] = input.SelectedOptions[rawcart.OptionCombinationID]
	}
	if input.Price != nil {
		updates["price"] = *input.Price
	}

	res := s.scopeRef(s.db.WithContext(ctx), ref).Model(&CartItem{}).Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update cart item")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return nil
}

func (s *store) RemoveItem(ctx context.Context, ref rawcart.ItemRef) error {
	// Removal of an already-removed line is success.
	err := s.scopeRef(s.db.WithContext(ctx), ref).Delete(&CartItem{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
	}
	return nil
}

func (s *store) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ?", s.userID).
		Delete(&CartItem{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *store) scopeRef(tx *gorm.DB, ref rawcart.ItemRef) *gorm.DB {
	scoped := tx.Where("user_id = ? AND variant_id = ? AND combination_id = ?",
		s.userID, ref.VariantID, ref.CombinationID)
	if ref.VariantID == "" && ref.ProductID != "" {
		scoped = scoped.Where("product_id = ?", ref.ProductID)
	}
	return scoped
}

func (item CartItem) toLine() (rawcart.Line, error) {
	options := map[string]string{}
	if item.SelectedOptions != "" {
		if err := json.Unmarshal([]byte(item.SelectedOptions), &options); err != nil {
			return rawcart.Line{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode selected options")
		}
	}
	if item.CombinationID != "" {
		options[rawcart.OptionCombinationID] = item.CombinationID
	}
	if len(options) == 0 {
		options = nil
	}
	return rawcart.Line{
		ProductID:       item.ProductID,
		VariantID:       item.VariantID,
		Quantity:        item.Quantity,
		Price:           item.Price,
		SelectedOptions: options,
	}, nil
}

func encodeOptions(options map[string]string) (string, error) {
	if options == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(options)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode selected options")
	}
	return string(encoded), nil
}
