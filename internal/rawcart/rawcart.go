package rawcart

import "context"

// Option keys the engine owns inside a line's SelectedOptions. Everything
// else in the map is display-only attribute data (shade, size, ...).
const (
	OptionCombinationID = "combinationId"
	OptionBranchID      = "selectedBranchId"
)

// Line is the thin, persisted record of a cart entry before enrichment with
// live catalog data. Price is the monetary snapshot taken at add time and
// stays authoritative for billing.
type Line struct {
	ProductID       string            `json:"productId"`
	VariantID       string            `json:"variantId,omitempty"`
	Quantity        int               `json:"quantity"`
	Price           int64             `json:"price"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
}

// ItemRef addresses one line in the upstream store. VariantID is empty for
// variant-less products; ProductID disambiguates those.
type ItemRef struct {
	ProductID     string
	VariantID     string
	CombinationID string
}

type AddInput struct {
	ProductID       string            `json:"productId"`
	VariantID       string            `json:"variantId,omitempty"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
	Price           *int64            `json:"price,omitempty"`
}

type UpdateInput struct {
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
	Price           *int64            `json:"price,omitempty"`
}

// Store is the upstream cart contract, scoped to one user.
//
// Fetch returns an empty cart, not an error, when the user is not
// authenticated upstream. RemoveItem treats an already-removed line as
// success.
type Store interface {
	Fetch(ctx context.Context) ([]Line, error)
	AddItem(ctx context.Context, input AddInput) error
	UpdateItem(ctx context.Context, ref ItemRef, input UpdateInput) error
	RemoveItem(ctx context.Context, ref ItemRef) error
	Clear(ctx context.Context) error
}

// Provider hands out per-user stores.
type Provider interface {
	ForUser(userID string) Store
}

// TokenCarrier is implemented by stores that forward the caller's bearer
// token upstream.
type TokenCarrier interface {
	SetToken(token string)
}
