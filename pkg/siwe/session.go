package siwe

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid session")

// Session is what GET /api/siwe reports for a signed-in wallet
type Session struct {
	Address   common.Address `json:"address"`
	ChainID   int64          `json:"chainId"`
	ExpiresAt time.Time      `json:"-"`
}

type sessionClaims struct {
	ChainID int64 `json:"chainId"`
	jwt.RegisteredClaims
}

// Sessions signs and checks HS256 session tokens
type Sessions struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret, issuer string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for the session
func (s *Sessions) Issue(address common.Address, chainID int64) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := sessionClaims{
		ChainID: chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   address.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, expires, nil
}

// Parse validates a token and returns its session
func (s *Sessions) Parse(token string) (*Session, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !parsed.Valid || !common.IsHexAddress(claims.Subject) {
		return nil, ErrInvalidSession
	}

	return &Session{
		Address:   common.HexToAddress(claims.Subject),
		ChainID:   claims.ChainID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
