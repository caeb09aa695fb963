package siwe

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

func TestNewMessageString(t *testing.T) {
	m, err := NewMessage(MessageParams{
		Domain:    "localhost:3000",
		Address:   testAddress,
		URI:       "http://localhost:3000",
		Statement: "Hey Dabbler, sign-in to our cool app!!!",
		ChainID:   137,
		Nonce:     "32891756abcdef12",
		IssuedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	want := "localhost:3000 wants you to sign in with your Ethereum account:\n" +
		"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2\n" +
		"\n" +
		"Hey Dabbler, sign-in to our cool app!!!\n" +
		"\n" +
		"URI: http://localhost:3000\n" +
		"Version: 1\n" +
		"Chain ID: 137\n" +
		"Nonce: 32891756abcdef12\n" +
		"Issued At: 2024-03-01T12:00:00Z"
	assert.Equal(t, want, m.String())
}

func TestParseMessageRoundTrip(t *testing.T) {
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := issued.Add(time.Hour)
	nbf := issued.Add(-time.Hour)

	cases := []MessageParams{
		{
			Domain: "example.com", Address: testAddress, URI: "https://example.com", Statement: "Sign in",
			ChainID: 1, Nonce: "abcdef1234", IssuedAt: issued,
		},
		{
			Domain: "example.com", Address: testAddress, URI: "https://example.com",
			ChainID: 2442, Nonce: "abcdef1234", IssuedAt: issued,
			ExpirationTime: &exp, NotBefore: &nbf,
		},
	}
	for _, p := range cases {
		m, err := NewMessage(p)
		require.NoError(t, err)

		parsed, err := ParseMessage(m.String())
		require.NoError(t, err)
		assert.Equal(t, m.String(), parsed.String())
		assert.Equal(t, p.Domain, parsed.GetDomain())
		assert.Equal(t, p.Address, parsed.GetAddress())
		assert.Equal(t, int(p.ChainID), parsed.GetChainID())
		assert.Equal(t, p.Nonce, parsed.GetNonce())
		uri := parsed.GetURI()
		assert.Equal(t, p.URI, uri.String())
	}
}

func TestParseMessageRejects(t *testing.T) {
	m, err := NewMessage(MessageParams{
		Domain: "example.com", Address: testAddress, URI: "https://example.com",
		ChainID: 1, Nonce: "abcdef1234",
	})
	require.NoError(t, err)

	cases := map[string]string{
		"empty":     "",
		"no header": "hello\n" + m.String(),
		"missing nonce": "example.com wants you to sign in with your Ethereum account:\n" +
			testAddress.Hex() + "\n\n\nURI: https://example.com\nVersion: 1\nChain ID: 1\nIssued At: 2024-03-01T12:00:00Z",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMessage(raw)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}
