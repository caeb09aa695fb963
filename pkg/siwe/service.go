package siwe

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"devcamp/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	eip4361 "github.com/spruceid/siwe-go"
)

var (
	ErrInvalidSignature = errors.New("signature does not match message address")
	ErrDomainMismatch   = errors.New("message domain does not match")
	ErrURIMismatch      = errors.New("message URI does not match")
	ErrChainNotAllowed  = errors.New("chain not allowed")
	ErrExpired          = errors.New("message expired")
	ErrNotYetValid      = errors.New("message not yet valid")
)

// Config describes the relying party
type Config struct {
	Domain string
	// URI must equal the message URI when set
	URI string
	// ChainIDs restricts sign-in to these chains when non-empty
	ChainIDs []int64
	NonceTTL time.Duration
}

// Service issues nonces and turns signed messages into sessions
type Service struct {
	cfg      Config
	nonces   NonceStore
	sessions *Sessions
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(cfg Config, nonces NonceStore, sessions *Sessions) *Service {
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = 10 * time.Minute
	}
	return &Service{
		cfg:      cfg,
		nonces:   nonces,
		sessions: sessions,
		now:      time.Now,
		log:      logger.For(logger.CategoryAuth),
	}
}

// Sessions returns the token issuer backing the service
func (s *Service) Sessions() *Sessions {
	return s.sessions
}

// IssueNonce stores and returns a fresh single-use nonce
func (s *Service) IssueNonce(ctx context.Context) (string, error) {
	nonce := NewNonce()
	if err := s.nonces.Put(ctx, nonce, s.cfg.NonceTTL); err != nil {
		return "", err
	}
	return nonce, nil
}

// Verify checks a signed message and consumes its nonce. On success it
// returns the session and its signed token.
func (s *Service) Verify(ctx context.Context, raw, signature string) (*Session, string, error) {
	msg, err := ParseMessage(raw)
	if err != nil {
		return nil, "", err
	}

	if msg.GetDomain() != s.cfg.Domain {
		return nil, "", fmt.Errorf("%w: got %q", ErrDomainMismatch, msg.GetDomain())
	}
	if uri := msg.GetURI(); s.cfg.URI != "" && uri.String() != s.cfg.URI {
		return nil, "", fmt.Errorf("%w: got %q", ErrURIMismatch, uri.String())
	}
	chainID := int64(msg.GetChainID())
	if len(s.cfg.ChainIDs) > 0 && !lo.Contains(s.cfg.ChainIDs, chainID) {
		return nil, "", fmt.Errorf("%w: %d", ErrChainNotAllowed, chainID)
	}

	signature, err = normalizeSignature(signature)
	if err != nil {
		return nil, "", err
	}
	// the nonce is checked against the store below, not a single expected value
	now := s.now()
	if _, err := msg.Verify(signature, &s.cfg.Domain, nil, &now); err != nil {
		return nil, "", verifyError(err)
	}

	if err := s.nonces.Consume(ctx, msg.GetNonce()); err != nil {
		return nil, "", err
	}

	address := msg.GetAddress()
	token, expires, err := s.sessions.Issue(address, chainID)
	if err != nil {
		return nil, "", err
	}

	s.log.Info().Str("address", address.Hex()).Int64("chain_id", chainID).Msg("wallet signed in")
	return &Session{Address: address, ChainID: chainID, ExpiresAt: expires}, token, nil
}

// verifyError maps siwe-go failures onto this package's errors
func verifyError(err error) error {
	var (
		expired   *eip4361.ExpiredMessage
		badSig    *eip4361.InvalidSignature
		malformed *eip4361.InvalidMessage
	)
	switch {
	case errors.As(err, &expired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.As(err, &badSig):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.As(err, &malformed):
		// domain is checked first, so only the not-before window is left
		return fmt.Errorf("%w: %v", ErrNotYetValid, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}

// normalizeSignature checks the length before siwe-go indexes the recovery
// byte, and rewrites a 0/1 recovery id as 27/28.
func normalizeSignature(signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] < 27 {
		sig[crypto.RecoveryIDOffset] += 27
	}
	return hexutil.Encode(sig), nil
}

// SignMessage produces a personal_sign signature with V as 27/28
func SignMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
