package cartengine

import (
	"strings"

	"github.com/mahendraputra/storefront-backend/internal/catalog"
	"github.com/mahendraputra/storefront-backend/internal/rawcart"
)

// LineIdentity is the structured identity of a cart line. The engine keys
// all internal state on the struct itself; the string form the storefront
// historically used ("product-P1", "V1", "V1-C1") is derived for display and
// request paths only.
type LineIdentity struct {
	ProductID     string `json:"productId"`
	VariantID     string `json:"variantId,omitempty"`
	CombinationID string `json:"combinationId,omitempty"`
}

// Key derives the legacy display key. Ids that embed the delimiters can
// produce the same key for different identities, so it must never be used
// as a uniqueness key; lookups by key resolve to the first line in order.
func (id LineIdentity) Key() string {
	switch {
	case id.VariantID == "":
		return "product-" + id.ProductID
	case id.CombinationID == "":
		return id.VariantID
	default:
		return id.VariantID + "-" + id.CombinationID
	}
}

// Ref converts the identity to an upstream store address.
func (id LineIdentity) Ref() rawcart.ItemRef {
	return rawcart.ItemRef{
		ProductID:     id.ProductID,
		VariantID:     id.VariantID,
		CombinationID: id.CombinationID,
	}
}

// IdentityFromRaw derives the identity of a raw line. Ids are compared
// string-normalized throughout, so whitespace is trimmed here once.
func IdentityFromRaw(raw rawcart.Line) LineIdentity {
	id := LineIdentity{
		ProductID: strings.TrimSpace(raw.ProductID),
		VariantID: strings.TrimSpace(raw.VariantID),
	}
	if id.VariantID != "" {
		id.CombinationID = strings.TrimSpace(raw.SelectedOptions[rawcart.OptionCombinationID])
	}
	return id
}

type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// ResolvedLine is the enriched, priced, stock-checked view of one raw cart
// line. The projection rebuilds these wholesale on refresh; between
// refreshes the mutation queue patches them in place and rolls the patch
// back on failure.
type ResolvedLine struct {
	Identity LineIdentity  `json:"identity"`
	Name     string        `json:"name"`
	Slug     string        `json:"slug"`
	Brand    catalog.Brand `json:"brand"`

	// Price is the snapshot carried from the raw line and stays
	// authoritative for billing. OriginalPrice is the live catalog price.
	Price         int64 `json:"price"`
	OriginalPrice int64 `json:"originalPrice"`

	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
	Image           Image             `json:"image"`

	InStock         bool                  `json:"inStock"`
	MaxQuantity     int                   `json:"maxQuantity"`
	BranchInventory []catalog.BranchStock `json:"branchInventory,omitempty"`

	SelectedBranchID string `json:"selectedBranchId,omitempty"`
	IsVariantless    bool   `json:"isVariantless"`
}

func (l *ResolvedLine) Key() string {
	return l.Identity.Key()
}

// Clone returns a deep copy, used for optimistic-mutation snapshots.
func (l *ResolvedLine) Clone() *ResolvedLine {
	if l == nil {
		return nil
	}
	copied := *l
	if l.SelectedOptions != nil {
		copied.SelectedOptions = make(map[string]string, len(l.SelectedOptions))
		for k, v := range l.SelectedOptions {
			copied.SelectedOptions[k] = v
		}
	}
	if l.BranchInventory != nil {
		copied.BranchInventory = make([]catalog.BranchStock, len(l.BranchInventory))
		copy(copied.BranchInventory, l.BranchInventory)
	}
	return &copied
}
