// Package siwe implements Sign-In-With-Ethereum (EIP-4361) sessions on top
// of spruceid/siwe-go: single-use nonces, signature checks and cookie sessions.
package siwe

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	eip4361 "github.com/spruceid/siwe-go"
)

var ErrMalformedMessage = errors.New("malformed SIWE message")

// MessageParams are the fields a signer fills in for a sign-in request
type MessageParams struct {
	Domain         string
	Address        common.Address
	URI            string
	Statement      string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
}

// NewMessage builds the message a wallet signs
func NewMessage(p MessageParams) (*eip4361.Message, error) {
	issuedAt := p.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	options := map[string]interface{}{
		"chainId":  int(p.ChainID),
		"issuedAt": issuedAt.UTC().Format(time.RFC3339),
	}
	if p.Statement != "" {
		options["statement"] = p.Statement
	}
	if p.ExpirationTime != nil {
		options["expirationTime"] = p.ExpirationTime.UTC().Format(time.RFC3339)
	}
	if p.NotBefore != nil {
		options["notBefore"] = p.NotBefore.UTC().Format(time.RFC3339)
	}

	msg, err := eip4361.InitMessage(p.Domain, p.Address.Hex(), p.URI, p.Nonce, options)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// ParseMessage reads the signed text form back into a message
func ParseMessage(raw string) (*eip4361.Message, error) {
	msg, err := eip4361.ParseMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}
