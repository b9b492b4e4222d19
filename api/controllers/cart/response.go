package cart

import (
	"github.com/mahendraputra/storefront-backend/internal/cartengine"
	"github.com/mahendraputra/storefront-backend/pkg/types"
)

type lineResponse struct {
	Key              string                `json:"key"`
	ProductID        string                `json:"productId"`
	VariantID        string                `json:"variantId,omitempty"`
	CombinationID    string                `json:"combinationId,omitempty"`
	Name             string                `json:"name"`
	Slug             string                `json:"slug"`
	Brand            string                `json:"brand,omitempty"`
	Quantity         int                   `json:"quantity"`
	Price            int64                 `json:"price"`
	PriceFormatted   string                `json:"priceFormatted"`
	OriginalPrice    int64                 `json:"originalPrice"`
	ImageURL         string                `json:"imageUrl"`
	ImageAlt         string                `json:"imageAlt,omitempty"`
	SelectedOptions  map[string]string     `json:"selectedOptions,omitempty"`
	InStock          bool                  `json:"inStock"`
	MaxQuantity      int                   `json:"maxQuantity"`
	BranchInventory  []branchStockResponse `json:"branchInventory,omitempty"`
	SelectedBranchID string                `json:"selectedBranchId,omitempty"`
	Selected         bool                  `json:"selected"`
	Pending          bool                  `json:"pending"`
}

type branchStockResponse struct {
	BranchID string `json:"branchId"`
	Quantity int    `json:"quantity"`
}

type totalsResponse struct {
	ItemCount         int    `json:"itemCount"`
	Subtotal          int64  `json:"subtotal"`
	SubtotalFormatted string `json:"subtotalFormatted"`
	Discount          int64  `json:"discount"`
	Total             int64  `json:"total"`
	TotalFormatted    string `json:"totalFormatted"`
}

type voucherResponse struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discountAmount"`
}

type cartResponse struct {
	Lines            []lineResponse   `json:"lines"`
	Totals           totalsResponse   `json:"totals"`
	SelectedTotals   totalsResponse   `json:"selectedTotals"`
	SelectedBranchID string           `json:"selectedBranchId,omitempty"`
	PendingCount     int              `json:"pendingCount"`
	Voucher          *voucherResponse `json:"voucher,omitempty"`
	LastError        string           `json:"lastError,omitempty"`
}

func newCartResponse(view cartengine.CartView) cartResponse {
	lines := make([]lineResponse, 0, len(view.Lines))
	for _, line := range view.Lines {
		lines = append(lines, newLineResponse(line))
	}
	out := cartResponse{
		Lines:            lines,
		Totals:           newTotalsResponse(view.Totals),
		SelectedTotals:   newTotalsResponse(view.SelectedTotals),
		SelectedBranchID: view.SelectedBranchID,
		PendingCount:     view.PendingCount,
		LastError:        view.LastError,
	}
	if view.Voucher != nil {
		out.Voucher = &voucherResponse{
			Code:           view.Voucher.Code,
			DiscountAmount: view.Voucher.DiscountAmount,
		}
	}
	return out
}

func newLineResponse(line cartengine.LineView) lineResponse {
	out := lineResponse{
		Key:              line.Key,
		ProductID:        line.Identity.ProductID,
		VariantID:        line.Identity.VariantID,
		CombinationID:    line.Identity.CombinationID,
		Name:             line.Name,
		Slug:             line.Slug,
		Brand:            line.Brand.Name,
		Quantity:         line.Quantity,
		Price:            line.Price,
		PriceFormatted:   types.FormatAmount(line.Price),
		OriginalPrice:    line.OriginalPrice,
		ImageURL:         line.Image.URL,
		ImageAlt:         line.Image.Alt,
		SelectedOptions:  line.SelectedOptions,
		InStock:          line.InStock,
		MaxQuantity:      line.MaxQuantity,
		SelectedBranchID: line.SelectedBranchID,
		Selected:         line.Selected,
		Pending:          line.Pending,
	}
	for _, stock := range line.BranchInventory {
		out.BranchInventory = append(out.BranchInventory, branchStockResponse{
			BranchID: stock.BranchID,
			Quantity: stock.Quantity,
		})
	}
	return out
}

func newTotalsResponse(totals cartengine.Totals) totalsResponse {
	return totalsResponse{
		ItemCount:         totals.ItemCount,
		Subtotal:          totals.Subtotal,
		SubtotalFormatted: types.FormatAmount(totals.Subtotal),
		Discount:          totals.Discount,
		Total:             totals.Total,
		TotalFormatted:    types.FormatAmount(totals.Total),
	}
}

func newNotices(notices []cartengine.Notice) []types.Notice {
	if len(notices) == 0 {
		return nil
	}
	out := make([]types.Notice, 0, len(notices))
	for _, notice := range notices {
		out = append(out, types.Notice{Kind: string(notice.Kind), Message: notice.Message})
	}
	return out
}
