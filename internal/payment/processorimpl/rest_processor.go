// Package processorimpl talks to an order-based payment REST API: OAuth2
// client credentials, then create and capture calls on /v2/checkout/orders.
package processorimpl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
)

const (
	tokenPath  = "/v1/oauth2/token"
	ordersPath = "/v2/checkout/orders"

	// refresh the cached token this long before it actually expires
	tokenSlack = 30 * time.Second
)

var ErrUnexpectedStatus = errors.New("unexpected status from payment processor")

type RESTProcessor struct {
	client       *fasthttp.Client
	baseURL      string
	clientID     string
	clientSecret string
	timeout      time.Duration

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewRESTProcessor(baseURL, clientID, clientSecret string, timeout time.Duration) *RESTProcessor {
	return &RESTProcessor{
		client: &fasthttp.Client{
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		timeout:      timeout,
	}
}

type amountBody struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Amount      amountBody `json:"amount"`
	Description string     `json:"description,omitempty"`
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *RESTProcessor) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (string, error) {
	body, err := json.Marshal(&createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount:      amountBody{CurrencyCode: currency, Value: amount.StringFixed(2)},
			Description: description,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode order: %w", err)
	}
	var out orderResponse
	if err := p.call(ctx, fasthttp.MethodPost, ordersPath, body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: order id missing", ErrUnexpectedStatus)
	}
	return out.ID, nil
}

func (p *RESTProcessor) CaptureOrder(ctx context.Context, orderID string) (bool, error) {
	var out orderResponse
	if err := p.call(ctx, fasthttp.MethodPost, ordersPath+"/"+orderID+"/capture", []byte("{}"), &out); err != nil {
		return false, err
	}
	return out.Status == "COMPLETED", nil
}

func (p *RESTProcessor) OrderCaptured(ctx context.Context, orderID string) (bool, error) {
	var out orderResponse
	if err := p.call(ctx, fasthttp.MethodGet, ordersPath+"/"+orderID, nil, &out); err != nil {
		return false, err
	}
	return out.Status == "COMPLETED", nil
}

// call sends a request with a bearer token. POSTs carry a JSON body and a
// fresh idempotency key.
func (p *RESTProcessor) call(ctx context.Context, method, path string, body []byte, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(p.baseURL + path)
	req.Header.Set("Authorization", "Bearer "+token)
	if method == fasthttp.MethodPost {
		req.Header.SetContentType("application/json")
		req.Header.Set("PayPal-Request-Id", uuid.NewString())
		req.SetBody(body)
	}

	if err := p.do(ctx, req, resp); err != nil {
		return err
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnexpectedStatus, path, code, truncate(resp.Body(), 256))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (p *RESTProcessor) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(p.baseURL + tokenPath)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(p.clientID+":"+p.clientSecret)))
	req.SetBodyString("grant_type=client_credentials")

	if err := p.do(ctx, req, resp); err != nil {
		return "", err
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrUnexpectedStatus, code)
	}
	var tok tokenResponse
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUnexpectedStatus)
	}
	p.token = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenSlack)
	return p.token, nil
}

// do honours the earlier of ctx's deadline and the configured timeout.
func (p *RESTProcessor) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return fmt.Errorf("payment processor timed out: %w", err)
		}
		return fmt.Errorf("payment processor request failed: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
