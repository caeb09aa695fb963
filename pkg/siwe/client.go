package siwe

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	eip4361 "github.com/spruceid/siwe-go"
)

// Client performs the sign-in handshake against a running backend:
// fetch a nonce, build and sign a message, verify it, read the session.
type Client struct {
	endpoint  string
	domain    string
	uri       string
	statement string
	chainID   int64
	key       *ecdsa.PrivateKey
	http      *http.Client
	now       func() time.Time
}

// ClientOptions overrides message fields. Domain and URI default to the
// backend's host and origin.
type ClientOptions struct {
	Domain    string
	URI       string
	Statement string
	Timeout   time.Duration
}

func NewClient(baseURL string, key *ecdsa.PrivateKey, chainID int64, opts ClientOptions) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if opts.Domain == "" {
		opts.Domain = base.Host
	}
	if opts.URI == "" {
		opts.URI = base.Scheme + "://" + base.Host
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	return &Client{
		endpoint:  base.String() + "/api/siwe",
		domain:    opts.Domain,
		uri:       opts.URI,
		statement: opts.Statement,
		chainID:   chainID,
		key:       key,
		http:      &http.Client{Jar: jar, Timeout: opts.Timeout},
		now:       time.Now,
	}, nil
}

// Address is the signing account
func (c *Client) Address() common.Address {
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// Nonce asks the backend for a fresh nonce
func (c *Client) Nonce(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodPut, nil, http.StatusOK)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// NewMessage builds the message the backend expects for nonce
func (c *Client) NewMessage(nonce string) (*eip4361.Message, error) {
	return NewMessage(MessageParams{
		Domain:    c.domain,
		Address:   c.Address(),
		URI:       c.uri,
		Statement: c.statement,
		ChainID:   c.chainID,
		Nonce:     nonce,
		IssuedAt:  c.now(),
	})
}

// SignIn runs the whole handshake and returns the established session
func (c *Client) SignIn(ctx context.Context) (*Session, error) {
	nonce, err := c.Nonce(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := c.NewMessage(nonce)
	if err != nil {
		return nil, err
	}
	message := msg.String()
	signature, err := SignMessage(c.key, message)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(VerifyRequest{Message: message, Signature: signature})
	if err != nil {
		return nil, fmt.Errorf("failed to encode verify request: %w", err)
	}
	if _, err := c.do(ctx, http.MethodPost, payload, http.StatusOK); err != nil {
		return nil, fmt.Errorf("failed to verify signature: %w", err)
	}

	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("backend accepted the signature but reported no session")
	}
	return session, nil
}

// Session returns the current session, or nil when signed out
func (c *Client) Session(ctx context.Context) (*Session, error) {
	body, err := c.do(ctx, http.MethodGet, nil, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s SessionResponse
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.Address == "" {
		return nil, nil
	}
	return &Session{Address: common.HexToAddress(s.Address), ChainID: s.ChainID}, nil
}

// SignOut ends the session
func (c *Client) SignOut(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodDelete, nil, http.StatusOK); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, payload []byte, want int) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// VerifyRequest is the POST /api/siwe body
type VerifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// SessionResponse is the GET /api/siwe body, empty when signed out
type SessionResponse struct {
	Address string `json:"address,omitempty"`
	ChainID int64  `json:"chainId,omitempty"`
}
