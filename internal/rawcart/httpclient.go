package rawcart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
)

// HTTPProvider builds per-user clients against a remote cart store.
type HTTPProvider struct {
	baseURL string
	http    *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) (*HTTPProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("cart store base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid cart store base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (p *HTTPProvider) ForUser(userID string) Store {
	return &httpStore{provider: p, userID: userID}
}

type httpStore struct {
	provider *HTTPProvider
	userID   string

	mu    sync.RWMutex
	token string
}

// SetToken records the bearer token forwarded on upstream calls. The engine
// keeps committing after the originating request ends, so the latest token
// seen for the user is retained here.
func (s *httpStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *httpStore) bearer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

type fetchResponse struct {
	Lines []Line `json:"lines"`
}

func (s *httpStore) Fetch(ctx context.Context) ([]Line, error) {
	resp, err := s.do(ctx, http.MethodGet, "/cart", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	// No session upstream means no cart, not a failure.
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remoteError(resp)
	}

	var payload fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cart response")
	}
	return payload.Lines, nil
}

func (s *httpStore) AddItem(ctx context.Context, input AddInput) error {
	resp, err := s.do(ctx, http.MethodPost, "/cart/items", input)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return remoteError(resp)
	}
	return nil
}

func (s *httpStore) UpdateItem(ctx context.Context, ref ItemRef, input UpdateInput) error {
	resp, err := s.do(ctx, http.MethodPatch, itemPath(ref), input)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return remoteError(resp)
	}
	return nil
}

func (s *httpStore) RemoveItem(ctx context.Context, ref ItemRef) error {
	resp, err := s.do(ctx, http.MethodDelete, itemPath(ref), nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	// Already gone counts as removed.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return remoteError(resp)
	}
	return nil
}

func (s *httpStore) Clear(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodDelete, "/cart", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return remoteError(resp)
	}
	return nil
}

// itemPath renders the upstream line address: the variant id or "none",
// optionally suffixed with ":{combinationId}". Variant-less lines carry the
// product id as a query parameter since "none" alone is ambiguous.
func itemPath(ref ItemRef) string {
	segment := ref.VariantID
	if segment == "" {
		segment = "none"
	}
	if ref.CombinationID != "" {
		segment += ":" + ref.CombinationID
	}
	path := "/cart/items/" + url.PathEscape(segment)
	if ref.VariantID == "" && ref.ProductID != "" {
		path += "?productId=" + url.QueryEscape(ref.ProductID)
	}
	return path
}

func (s *httpStore) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.provider.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build cart request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := s.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.provider.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call cart store")
	}
	return resp, nil
}

type remoteErrorPayload struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// remoteError maps an upstream failure to a coded error, inspecting the
// message for the stock/validation/not-found cases the UI distinguishes.
func remoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := ""
	var payload remoteErrorPayload
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error.Message != "" {
			message = payload.Error.Message
		} else {
			message = payload.Message
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = resp.Status
	}

	return ClassifyRemoteMessage(resp.StatusCode, message)
}

// ClassifyRemoteMessage buckets an upstream failure by status and message
// text. Message inspection is deliberate: the upstream contract does not
// define machine-readable codes.
func ClassifyRemoteMessage(status int, message string) *pkgerrors.Error {
	lowered := strings.ToLower(message)
	switch {
	case strings.Contains(lowered, "stock"):
		return pkgerrors.New(pkgerrors.CodeOutOfStock, message)
	case status == http.StatusNotFound || strings.Contains(lowered, "not found"):
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	case status == http.StatusUnauthorized:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, message)
	case status >= 400 && status < 500, strings.Contains(lowered, "invalid"):
		return pkgerrors.New(pkgerrors.CodeValidation, message)
	default:
		return pkgerrors.New(pkgerrors.CodeDependency, message)
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
