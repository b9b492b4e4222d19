package rawcart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *httpStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewHTTPProvider(server.URL, 0)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	store := provider.ForUser("user-1").(*httpStore)
	store.SetToken("token-abc")
	return store
}

func TestFetchReturnsLines(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
			t.Errorf("unexpected auth header %q", got)
		}
		json.NewEncoder(w).Encode(fetchResponse{Lines: []Line{
			{ProductID: "P1", VariantID: "V1", Quantity: 2, Price: 150000},
		}})
	})

	lines, err := store.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1 || lines[0].VariantID != "V1" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestFetchUnauthorizedMeansEmptyCart(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	lines, err := store.Fetch(context.Background())
	if err != nil {
		t.Fatalf("401 must not surface as an error, got %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", lines)
	}
}

func TestRemoveItemTreats404AsSuccess(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if err := store.RemoveItem(context.Background(), ItemRef{VariantID: "V1"}); err != nil {
		t.Fatalf("404 removal should be success, got %v", err)
	}
}

func TestUpdateItemPathIncludesCombination(t *testing.T) {
	t.Parallel()

	var gotPath string
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	err := store.UpdateItem(context.Background(), ItemRef{ProductID: "P1", VariantID: "V1", CombinationID: "C1"}, UpdateInput{Quantity: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/cart/items/V1:C1" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestVariantlessPathUsesNoneWithProductQuery(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery string
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("productId")
		w.WriteHeader(http.StatusOK)
	})

	err := store.UpdateItem(context.Background(), ItemRef{ProductID: "P1"}, UpdateInput{Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/cart/items/none" || gotQuery != "P1" {
		t.Fatalf("unexpected path %q query %q", gotPath, gotQuery)
	}
}

func TestClassifyRemoteMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status  int
		message string
		want    pkgerrors.Code
	}{
		{422, "requested quantity exceeds stock", pkgerrors.CodeOutOfStock},
		{404, "line not found", pkgerrors.CodeNotFound},
		{400, "invalid quantity", pkgerrors.CodeValidation},
		{500, "upstream exploded", pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		if got := ClassifyRemoteMessage(tc.status, tc.message).Code(); got != tc.want {
			t.Fatalf("classify(%d, %q) = %s, want %s", tc.status, tc.message, got, tc.want)
		}
	}
}

func TestUpdateItemSurfacesRemoteMessage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "out of stock"}})
	})

	err := store.UpdateItem(context.Background(), ItemRef{VariantID: "V1"}, UpdateInput{Quantity: 99})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeOutOfStock {
		t.Fatalf("expected OUT_OF_STOCK, got %v", err)
	}
}
