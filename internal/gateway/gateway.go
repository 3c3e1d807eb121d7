// Package gateway is the thin request/response client for the
// authoritative backend. It performs no retries, no backoff and no
// queuing; delivery guarantees live entirely in the sync replayer.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kiospos/kiosk/internal/domain"
)

// Gateway is the authoritative backend contract. Tests substitute a mock
// that always succeeds, always fails, or fails after N calls.
type Gateway interface {
	Ping(ctx context.Context) error
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, product domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	UpdateInvoice(ctx context.Context, id string, invoice domain.Invoice) error
	DeleteInvoice(ctx context.Context, id string) error
	ReturnInvoice(ctx context.Context, id string) error
	FetchProducts(ctx context.Context) ([]domain.Product, error)
	FetchInvoices(ctx context.Context) ([]domain.Invoice, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenSource
}

func New(baseURL string, timeout time.Duration, tokens *TokenSource) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	var created domain.Product
	if err := c.do(ctx, http.MethodPost, "/api/v1/products", product, &created, false); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, product domain.Product) error {
	return c.do(ctx, http.MethodPut, "/api/v1/products/"+id, product, nil, true)
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/products/"+id, nil, nil, true)
}

func (c *Client) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	var created domain.Invoice
	if err := c.do(ctx, http.MethodPost, "/api/v1/invoices", invoice, &created, false); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateInvoice(ctx context.Context, id string, invoice domain.Invoice) error {
	return c.do(ctx, http.MethodPut, "/api/v1/invoices/"+id, invoice, nil, true)
}

func (c *Client) DeleteInvoice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/invoices/"+id, nil, nil, true)
}

// ReturnInvoice is the stock-restoring variant of delete: the backend
// restores stock in the same transaction.
func (c *Client) ReturnInvoice(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/invoices/"+id+"/return", nil, nil, true)
}

func (c *Client) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.do(ctx, http.MethodGet, "/api/v1/products", nil, &products, false); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) FetchInvoices(ctx context.Context) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	if err := c.do(ctx, http.MethodGet, "/api/v1/invoices", nil, &invoices, false); err != nil {
		return nil, err
	}
	return invoices, nil
}

// do issues one request. notFoundOK treats a 404 as success, which makes
// replayed deletes of already-deleted entities idempotent. Every other
// failure collapses into a single "retry later" error class: the engine
// does not distinguish timeouts, refused connections or rejections.
func (c *Client) do(ctx context.Context, method, path string, in any, out any, notFoundOK bool) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("acquire access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && notFoundOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
