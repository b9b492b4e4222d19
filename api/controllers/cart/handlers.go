package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mahendraputra/storefront-backend/api/middleware"
	"github.com/mahendraputra/storefront-backend/api/responses"
	"github.com/mahendraputra/storefront-backend/api/validators"
	"github.com/mahendraputra/storefront-backend/internal/cartengine"
	"github.com/mahendraputra/storefront-backend/internal/rawcart"
	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
	"github.com/mahendraputra/storefront-backend/pkg/logger"
)

// EngineProvider resolves the caller's cart engine. Satisfied by
// cartengine.Registry.
type EngineProvider interface {
	Engine(userID, token string) (*cartengine.Engine, error)
}

func engineFromRequest(r *http.Request, provider EngineProvider) (*cartengine.Engine, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	return provider.Engine(userID, middleware.TokenFromContext(r.Context()))
}

// Fetch rebuilds and returns the caller's resolved cart.
func Fetch(provider EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := engineFromRequest(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := engine.Refresh(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessNotices(w, newCartResponse(engine.View()), newNotices(res.Notices))
	}
}

// Refresh forces a projection rebuild, e.g. after the storefront regains
// focus.
func Refresh(provider EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := engineFromRequest(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := engine.Refresh(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessNotices(w, newCartResponse(engine.View()), newNotices(res.Notices))
	}
}

// AddItem adds a product to the cart and returns the rebuilt projection.
func AddItem(provider EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := engineFromRequest(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := engine.AddItem(r.Context(), rawcart.AddInput{
			ProductID:       payload.ProductID,
			VariantID:       payload.VariantID,
			Quantity:        payload.Quantity,
			Price:           payload.Price,
			SelectedOptions: payload.SelectedOptions,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(engine.View()), newNotices(res.Notices))
	}
}

// UpdateItem patches one line optimistically; the upstream write happens
// behind the debounce window.
func UpdateItem(provider EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := engineFromRequest(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := chi.URLParam(r, "key")
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "line key required"))
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := engine.UpdateLine(key, cartengine.UpdateRequest{
			Quantity: payload.Quantity,
			BranchID: payload.BranchID,
			Price:    payload.Price,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessNotices(w, newCartResponse(engine.View()), newNotices(res.Notices))
	}
}

// RemoveItem deletes one line. An already-removed line is a success.
func RemoveItem(provider EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := engineFromRequest(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := chi.URLParam(r, "key")
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "line key required"))
			return
		}

		if err := engine.RemoveLine(r.Context(), key); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(engine.View()))
	}
}

// Clear empties the whole cart.
func Clear(provider EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := engineFromRequest(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := engine.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(engine.View()))
	}
}

// Selection applies one selection action: select, unselect, selectBranch,
// unselectBranch, or clear.
func Selection(provider EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := engineFromRequest(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload selectionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var res cartengine.SelectionResult
		switch payload.Action {
		case actionSelect:
			if payload.Key == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "key is required for select"))
				return
			}
			res, err = engine.Select(payload.Key)
		case actionUnselect:
			if payload.Key == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "key is required for unselect"))
				return
			}
			engine.Unselect(payload.Key)
		case actionSelectBranch:
			if payload.BranchID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "branchId is required for selectBranch"))
				return
			}
			res, err = engine.SelectBranch(payload.BranchID)
		case actionUnselectBranch:
			if payload.BranchID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "branchId is required for unselectBranch"))
				return
			}
			engine.UnselectBranch(payload.BranchID)
		case actionClear:
			engine.ClearSelection()
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessNotices(w, newCartResponse(engine.View()), newNotices(res.Notices))
	}
}

// ApplyVoucher applies a discount code over the current selection.
func ApplyVoucher(provider EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := engineFromRequest(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload voucherRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := engine.ApplyVoucher(r.Context(), payload.Code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartResponse(engine.View()))
	}
}

// RemoveVoucher drops the applied discount.
func RemoveVoucher(provider EngineProvider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, err := engineFromRequest(r, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		engine.ClearVoucher()
		responses.WriteSuccess(w, newCartResponse(engine.View()))
	}
}
