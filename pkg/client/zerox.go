package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"devcamp/pkg/logger"
)

// ErrValidation marks aggregator responses rejected for invalid parameters
// (for example a sell amount too low to route).
var ErrValidation = errors.New("aggregator validation failed")

// Endpoint selects the price or the quote route
type Endpoint string

const (
	EndpointPrice Endpoint = "price"
	EndpointQuote Endpoint = "quote"
)

// APIError is a non-2xx aggregator response
type APIError struct {
	StatusCode       int
	Code             int64
	Reason           string
	ValidationErrors []ValidationError
	Body             string
}

func (e *APIError) Error() string {
	if len(e.ValidationErrors) > 0 {
		reasons := make([]string, 0, len(e.ValidationErrors))
		for _, v := range e.ValidationErrors {
			reasons = append(reasons, v.String())
		}
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, strings.Join(reasons, "; "))
	}
	if e.Reason != "" {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Is lets callers test for ErrValidation with errors.Is
func (e *APIError) Is(target error) bool {
	return target == ErrValidation && len(e.ValidationErrors) > 0
}

// Client talks to a 0x-style swap aggregator
type Client struct {
	baseURL   string
	apiKey    string
	pricePath string
	quotePath string
	http      *http.Client
	log       zerolog.Logger
}

// Options configures a Client
type Options struct {
	BaseURL   string
	APIKey    string
	PricePath string
	QuotePath string
	Timeout   time.Duration
}

// New creates an aggregator client
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	pricePath := opts.PricePath
	if pricePath == "" {
		pricePath = "/swap/v1/price"
	}
	quotePath := opts.QuotePath
	if quotePath == "" {
		quotePath = "/swap/v1/quote"
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		pricePath: pricePath,
		quotePath: quotePath,
		http:      &http.Client{Timeout: timeout},
		log:       logger.For(logger.CategoryNetwork),
	}
}

// Price requests an indicative price
func (c *Client) Price(ctx context.Context, p Params) (*PriceResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	body, err := c.get(ctx, EndpointPrice, p.Values())
	if err != nil {
		return nil, err
	}
	var resp PriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}
	return &resp, nil
}

// Quote requests a firm, executable quote
func (c *Client) Quote(ctx context.Context, p Params) (*QuoteResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	body, err := c.get(ctx, EndpointQuote, p.Values())
	if err != nil {
		return nil, err
	}
	var resp QuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}
	if resp.To == (common.Address{}) || resp.Data == "" {
		return nil, fmt.Errorf("quote response is missing transaction fields")
	}
	return &resp, nil
}

// Forward relays a raw query to the aggregator and returns the upstream
// status and body untouched. Used by the HTTP backend.
func (c *Client) Forward(ctx context.Context, endpoint Endpoint, query url.Values) (int, []byte, error) {
	resp, err := c.do(ctx, endpoint, query)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read aggregator response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) get(ctx context.Context, endpoint Endpoint, query url.Values) ([]byte, error) {
	status, body, err := c.Forward(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		apiErr := decodeAPIError(status, body)
		c.log.Warn().Str("endpoint", string(endpoint)).Int("status", status).Err(apiErr).Msg("aggregator rejected request")
		return nil, apiErr
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, endpoint Endpoint, query url.Values) (*http.Response, error) {
	path := c.pricePath
	if endpoint == EndpointQuote {
		path = c.quotePath
	}
	rawURL := c.baseURL + path
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("0x-api-key", c.apiKey)
	}

	c.log.Debug().Str("endpoint", string(endpoint)).Str("query", query.Encode()).Msg("aggregator request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from API: %w", endpoint, err)
	}
	return resp, nil
}

// decodeAPIError pulls the aggregator's error shape out of a response body
func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}
	if !gjson.ValidBytes(body) {
		return apiErr
	}

	parsed := gjson.ParseBytes(body)
	apiErr.Code = parsed.Get("code").Int()
	apiErr.Reason = parsed.Get("reason").String()
	if apiErr.Reason == "" {
		apiErr.Reason = parsed.Get("message").String()
	}
	parsed.Get("validationErrors").ForEach(func(_, v gjson.Result) bool {
		apiErr.ValidationErrors = append(apiErr.ValidationErrors, ValidationError{
			Field:       v.Get("field").String(),
			Code:        v.Get("code").Int(),
			Reason:      v.Get("reason").String(),
			Description: v.Get("description").String(),
		})
		return true
	})
	return apiErr
}

// amountString renders a smallest-unit amount for query strings
func amountString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
