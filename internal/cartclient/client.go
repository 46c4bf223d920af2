// Package cartclient is the storefront-side consumer of the promotional cart
// API. It serializes overlapping evaluations so a slow response for an old
// cart state can never overwrite the result of a newer one.
package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/cart"
)

// ErrSuperseded is returned when a newer evaluation started before this
// one's response arrived. The caller should discard the result; the newer
// call owns the cart state.
var ErrSuperseded = errors.New("evaluation superseded by a newer request")

// Client is a thin HTTP client for the evaluate endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given API base URL, e.g.
// "https://api.ekoe.example". A nil httpClient uses a 10s-timeout default.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

type evaluateRequest struct {
	Items          []cart.Item `json:"items"`
	CustomerID     string      `json:"customerId,omitempty"`
	DiscountCode   string      `json:"discountCode,omitempty"`
	ShippingMethod string      `json:"shippingMethod,omitempty"`
}

type envelope struct {
	Success bool        `json:"success"`
	Data    cart.Result `json:"data"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Evaluate posts the cart snapshot to the evaluate endpoint and decodes the
// enveloped result.
func (c *Client) Evaluate(ctx context.Context, snap cart.Snapshot) (*cart.Result, error) {
	body, err := json.Marshal(evaluateRequest{
		Items:          snap.Items,
		CustomerID:     snap.CustomerID,
		DiscountCode:   snap.DiscountCode,
		ShippingMethod: snap.ShippingMethod,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/cart/promotional/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if !env.Success {
		msg := "evaluation failed"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return nil, errors.Errorf("evaluate: %s (status %d)", msg, resp.StatusCode)
	}
	return &env.Data, nil
}

// Evaluator guards concurrent cart evaluations with a generation counter.
// Every call bumps the generation and cancels the previous in-flight
// request; a response that comes back after being superseded is dropped.
// The last successful result is retained so the UI keeps showing valid
// pricing while a newer evaluation is in flight or has failed.
type Evaluator struct {
	client *Client

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	last   *cart.Result
}

// NewEvaluator wraps client with the stale-response guard.
func NewEvaluator(client *Client) *Evaluator {
	return &Evaluator{client: client}
}

// Evaluate runs one guarded evaluation. It returns ErrSuperseded when a
// newer Evaluate call started before this one finished; the caller should
// ignore that error and wait for the newer call's result.
func (e *Evaluator) Evaluate(ctx context.Context, snap cart.Snapshot) (*cart.Result, error) {
	e.mu.Lock()
	e.gen++
	myGen := e.gen
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	res, err := e.client.Evaluate(ctx, snap)

	e.mu.Lock()
	defer e.mu.Unlock()

	if myGen != e.gen {
		return nil, ErrSuperseded
	}
	cancel()
	e.cancel = nil

	if err != nil {
		return nil, err
	}
	e.last = res
	return res, nil
}

// Last returns the most recent successful evaluation result, or nil when no
// evaluation has succeeded yet.
func (e *Evaluator) Last() *cart.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
