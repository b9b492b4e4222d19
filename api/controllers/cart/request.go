package cart

// Selection actions accepted by the selection endpoint.
const (
	actionSelect         = "select"
	actionUnselect       = "unselect"
	actionSelectBranch   = "selectBranch"
	actionUnselectBranch = "unselectBranch"
	actionClear          = "clear"
)

type addItemRequest struct {
	ProductID       string            `json:"productId" validate:"required"`
	VariantID       string            `json:"variantId"`
	Quantity        int               `json:"quantity" validate:"min=0"`
	Price           *int64            `json:"price"`
	SelectedOptions map[string]string `json:"selectedOptions"`
}

type updateItemRequest struct {
	Quantity int     `json:"quantity" validate:"required,min=1"`
	BranchID *string `json:"branchId"`
	Price    *int64  `json:"price"`
}

type selectionRequest struct {
	Action   string `json:"action" validate:"required,oneof=select unselect selectBranch unselectBranch clear"`
	Key      string `json:"key"`
	BranchID string `json:"branchId"`
}

type voucherRequest struct {
	Code string `json:"code" validate:"required"`
}
