package catalog

// Product is the read-only catalog shape the cart engine consumes. The
// catalog service owns this model; the engine only resolves against it.
type Product struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Slug         string        `json:"slug"`
	BasePrice    int64         `json:"basePrice"`
	CurrentPrice *int64        `json:"currentPrice,omitempty"`
	Images       []Image       `json:"images,omitempty"`
	Variants     []Variant     `json:"variants,omitempty"`
	Inventory    []BranchStock `json:"inventory,omitempty"`
	Brand        Brand         `json:"brand"`
}

type Variant struct {
	VariantID    string        `json:"variantId"`
	Price        *int64        `json:"price,omitempty"`
	Images       []Image       `json:"images,omitempty"`
	Combinations []Combination `json:"combinations,omitempty"`
}

// Combination is a specific attribute pairing within a variant. Price is an
// absolute override; AdditionalPrice is a delta over the variant price.
type Combination struct {
	CombinationID   string `json:"combinationId"`
	Price           *int64 `json:"price,omitempty"`
	AdditionalPrice *int64 `json:"additionalPrice,omitempty"`
}

// BranchStock is one fulfillment branch's inventory count for a product.
type BranchStock struct {
	BranchID string `json:"branchId"`
	Quantity int    `json:"quantity"`
}

type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

type Brand struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TotalStock sums inventory across all branches.
func (p *Product) TotalStock() int {
	total := 0
	for _, stock := range p.Inventory {
		total += stock.Quantity
	}
	return total
}
