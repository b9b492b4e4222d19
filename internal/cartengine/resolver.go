package cartengine

import (
	"strings"

	"github.com/mahendraputra/storefront-backend/internal/catalog"
	"github.com/mahendraputra/storefront-backend/internal/rawcart"
)

const placeholderImageURL = "/images/product-placeholder.png"

// OrphanReason states why a raw line could not be resolved.
type OrphanReason string

const (
	OrphanProductNotFound OrphanReason = "product not found"
	OrphanVariantNotFound OrphanReason = "variant not found"
)

// Orphan is a raw line whose catalog reference no longer exists. Orphans are
// excluded from the projection and purged upstream best-effort.
type Orphan struct {
	Raw    rawcart.Line
	Reason OrphanReason
}

// Ref addresses the orphaned line in the upstream store.
func (o Orphan) Ref() rawcart.ItemRef {
	return IdentityFromRaw(o.Raw).Ref()
}

// ResolveLine enriches one raw cart line with its already-fetched catalog
// product. A nil product, or a variant reference the product no longer
// carries, yields an orphan; a missing combination does not, pricing simply
// falls back to the variant price.
func ResolveLine(raw rawcart.Line, product *catalog.Product) (*ResolvedLine, *Orphan) {
	if product == nil {
		return nil, &Orphan{Raw: raw, Reason: OrphanProductNotFound}
	}

	identity := IdentityFromRaw(raw)

	line := &ResolvedLine{
		Identity:         identity,
		Name:             product.Name,
		Slug:             product.Slug,
		Brand:            product.Brand,
		Price:            raw.Price,
		Quantity:         raw.Quantity,
		SelectedOptions:  displayOptions(raw.SelectedOptions),
		SelectedBranchID: raw.SelectedOptions[rawcart.OptionBranchID],
		IsVariantless:    identity.VariantID == "",
	}

	stock := product.TotalStock()
	line.InStock = stock > 0
	line.MaxQuantity = stock
	if len(product.Inventory) > 0 {
		line.BranchInventory = make([]catalog.BranchStock, len(product.Inventory))
		copy(line.BranchInventory, product.Inventory)
	}

	if line.IsVariantless {
		line.OriginalPrice = product.BasePrice
		if product.CurrentPrice != nil {
			line.OriginalPrice = *product.CurrentPrice
		}
		line.Image = firstImage(product.Images, nil)
		return line, nil
	}

	variant := findVariant(product, identity.VariantID)
	if variant == nil {
		return nil, &Orphan{Raw: raw, Reason: OrphanVariantNotFound}
	}

	combination := findCombination(variant, identity.CombinationID)

	// Live price priority: combination override, then variant price plus
	// combination delta, then variant price, then the product base price
	// when the variant carries none.
	variantPrice := product.BasePrice
	if variant.Price != nil {
		variantPrice = *variant.Price
	}
	switch {
	case combination != nil && combination.Price != nil:
		line.OriginalPrice = *combination.Price
	case combination != nil && combination.AdditionalPrice != nil:
		line.OriginalPrice = variantPrice + *combination.AdditionalPrice
	default:
		line.OriginalPrice = variantPrice
	}

	line.Image = firstImage(variant.Images, product.Images)
	return line, nil
}

func findVariant(product *catalog.Product, variantID string) *catalog.Variant {
	for i := range product.Variants {
		if strings.TrimSpace(product.Variants[i].VariantID) == variantID {
			return &product.Variants[i]
		}
	}
	return nil
}

func findCombination(variant *catalog.Variant, combinationID string) *catalog.Combination {
	if combinationID == "" {
		return nil
	}
	for i := range variant.Combinations {
		if strings.TrimSpace(variant.Combinations[i].CombinationID) == combinationID {
			return &variant.Combinations[i]
		}
	}
	return nil
}

func firstImage(primary, fallback []catalog.Image) Image {
	if len(primary) > 0 {
		return Image{URL: primary[0].URL, Alt: primary[0].Alt}
	}
	if len(fallback) > 0 {
		return Image{URL: fallback[0].URL, Alt: fallback[0].Alt}
	}
	return Image{URL: placeholderImageURL}
}

// displayOptions strips the engine-owned keys, leaving only attribute data
// the UI renders.
func displayOptions(options map[string]string) map[string]string {
	if len(options) == 0 {
		return nil
	}
	display := make(map[string]string, len(options))
	for k, v := range options {
		if k == rawcart.OptionCombinationID || k == rawcart.OptionBranchID {
			continue
		}
		display[k] = v
	}
	if len(display) == 0 {
		return nil
	}
	return display
}
