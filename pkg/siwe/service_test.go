package siwe

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(Config{
		Domain:   "localhost:3000",
		URI:      "http://localhost:3000",
		ChainIDs: []int64{137, 2442},
		NonceTTL: time.Minute,
	}, NewMemoryStore(0), NewSessions(testSecret, "localhost:3000", time.Hour))
}

func signedMessage(t *testing.T, svc *Service, mutate func(*MessageParams)) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	nonce, err := svc.IssueNonce(context.Background())
	require.NoError(t, err)

	p := MessageParams{
		Domain:    "localhost:3000",
		Address:   crypto.PubkeyToAddress(key.PublicKey),
		URI:       "http://localhost:3000",
		Statement: "Sign in",
		ChainID:   137,
		Nonce:     nonce,
		IssuedAt:  time.Now(),
	}
	if mutate != nil {
		mutate(&p)
	}
	m, err := NewMessage(p)
	require.NoError(t, err)
	raw := m.String()
	sig, err := SignMessage(key, raw)
	require.NoError(t, err)
	return raw, sig
}

func TestVerifyIssuesSession(t *testing.T) {
	svc := newTestService(t)
	raw, sig := signedMessage(t, svc, nil)

	session, token, err := svc.Verify(context.Background(), raw, sig)
	require.NoError(t, err)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.GetAddress(), session.Address)
	assert.Equal(t, int64(137), session.ChainID)

	parsed, err := svc.Sessions().Parse(token)
	require.NoError(t, err)
	assert.Equal(t, msg.GetAddress(), parsed.Address)
	assert.Equal(t, int64(137), parsed.ChainID)
}

func TestVerifyNonceIsSingleUse(t *testing.T) {
	svc := newTestService(t)
	raw, sig := signedMessage(t, svc, nil)

	_, _, err := svc.Verify(context.Background(), raw, sig)
	require.NoError(t, err)

	_, _, err = svc.Verify(context.Background(), raw, sig)
	assert.ErrorIs(t, err, ErrNonceUnknown)
}

func TestVerifyRejects(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	cases := []struct {
		name   string
		mutate func(*MessageParams)
		want   error
	}{
		{"wrong domain", func(p *MessageParams) { p.Domain = "evil.example" }, ErrDomainMismatch},
		{"wrong uri", func(p *MessageParams) { p.URI = "https://evil.example" }, ErrURIMismatch},
		{"wrong chain", func(p *MessageParams) { p.ChainID = 56 }, ErrChainNotAllowed},
		{"expired", func(p *MessageParams) { p.ExpirationTime = &past }, ErrExpired},
		{"not yet valid", func(p *MessageParams) { p.NotBefore = &future }, ErrNotYetValid},
		{"unknown nonce", func(p *MessageParams) { p.Nonce = "deadbeefdeadbeef" }, ErrNonceUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t)
			raw, sig := signedMessage(t, svc, tc.mutate)
			_, _, err := svc.Verify(context.Background(), raw, sig)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	svc := newTestService(t)
	raw, _ := signedMessage(t, svc, nil)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := SignMessage(other, raw)
	require.NoError(t, err)

	_, _, err = svc.Verify(context.Background(), raw, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, _, err = svc.Verify(context.Background(), raw, "0x1234")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// a rejected signature must not burn the nonce
	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.NoError(t, svc.nonces.Consume(context.Background(), msg.GetNonce()))
}

func TestVerifyAcceptsZeroOneRecoveryID(t *testing.T) {
	svc := newTestService(t)
	raw, sig := signedMessage(t, svc, nil)

	// some signers return V as 0/1
	b, err := hexutil.Decode(sig)
	require.NoError(t, err)
	b[crypto.RecoveryIDOffset] -= 27

	session, _, err := svc.Verify(context.Background(), raw, hexutil.Encode(b))
	require.NoError(t, err)
	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.GetAddress(), session.Address)
}

func TestSessionsExpiry(t *testing.T) {
	s := NewSessions(testSecret, "localhost:3000", time.Hour)
	token, expires, err := s.Issue(testAddress, 137)
	require.NoError(t, err)

	s.now = func() time.Time { return expires.Add(time.Second) }
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	other := NewSessions("another-secret-another-secret-xx", "localhost:3000", time.Hour)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = s.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	require.NoError(t, store.Put(ctx, "nonce0001", time.Minute))
	assert.Error(t, store.Put(ctx, "nonce0001", time.Minute))
	assert.NoError(t, store.Consume(ctx, "nonce0001"))
	assert.ErrorIs(t, store.Consume(ctx, "nonce0001"), ErrNonceUnknown)

	require.NoError(t, store.Put(ctx, "nonce0002", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	assert.ErrorIs(t, store.Consume(ctx, "nonce0002"), ErrNonceUnknown)
}

func TestNewNonce(t *testing.T) {
	a, b := NewNonce(), NewNonce()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[a-zA-Z0-9]{8,}$`, a)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("DEVCAMP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DEVCAMP_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := DialRedis(ctx, addr, "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	store := NewRedisStore(rdb)
	nonce := NewNonce()
	require.NoError(t, store.Put(ctx, nonce, time.Minute))
	assert.Error(t, store.Put(ctx, nonce, time.Minute))
	assert.NoError(t, store.Consume(ctx, nonce))
	assert.ErrorIs(t, store.Consume(ctx, nonce), ErrNonceUnknown)
}
