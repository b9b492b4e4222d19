package voucher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
)

// Applied is the discount the voucher service computed. The cart engine does
// no discount math of its own; it only carries this result.
type Applied struct {
	DiscountAmount int64  `json:"discountAmount"`
	VoucherID      string `json:"voucherId"`
}

// Applier is the voucher collaborator contract.
type Applier interface {
	Apply(ctx context.Context, code string, baseAmount int64, productIDs []string) (*Applied, error)
}

// Client calls the voucher service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("voucher base url required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid voucher base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type applyRequest struct {
	Code       string   `json:"code"`
	BaseAmount int64    `json:"baseAmount"`
	ProductIDs []string `json:"productIds"`
}

type applyResponse struct {
	Data *Applied `json:"data"`
}

func (c *Client) Apply(ctx context.Context, code string, baseAmount int64, productIDs []string) (*Applied, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher code required")
	}

	body, err := json.Marshal(applyRequest{Code: code, BaseAmount: baseAmount, ProductIDs: productIDs})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode voucher request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vouchers/apply", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build voucher request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call voucher service")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read voucher response")
	}

	if resp.StatusCode != http.StatusOK {
		message := extractMessage(raw)
		if message == "" {
			message = "voucher could not be applied"
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, message)
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, message)
	}

	var envelope applyResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}
	var applied Applied
	if err := json.Unmarshal(raw, &applied); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode voucher response")
	}
	return &applied, nil
}

type errorPayload struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func extractMessage(raw []byte) string {
	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if payload.Error.Message != "" {
		return payload.Error.Message
	}
	return payload.Message
}
