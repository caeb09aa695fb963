package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"devcamp/pkg/client"
	"devcamp/pkg/metrics"
	"devcamp/pkg/siwe"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeForwarder struct {
	mu       sync.Mutex
	endpoint client.Endpoint
	query    url.Values
	status   int
	body     string
	err      error
}

func (f *fakeForwarder) Forward(_ context.Context, endpoint client.Endpoint, query url.Values) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoint, f.query = endpoint, query
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.status, []byte(f.body), nil
}

func newTestServer(t *testing.T, fwd Forwarder) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	svc := siwe.NewService(siwe.Config{
		Domain:   "localhost:3000",
		URI:      "http://localhost:3000",
		ChainIDs: []int64{137},
	}, siwe.NewMemoryStore(0), siwe.NewSessions(testSecret, "localhost:3000", time.Hour))

	m := metrics.New()
	srv := New(Options{Aggregator: fwd, SIWE: svc, Metrics: m})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, m
}

func get(t *testing.T, rawURL string) (int, string) {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, &fakeForwarder{})
	status, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)
}

func TestPriceProxyForwardsKnownParams(t *testing.T) {
	fwd := &fakeForwarder{status: http.StatusOK, body: `{"buyAmount":"9500000"}`}
	ts, _ := newTestServer(t, fwd)

	status, body := get(t, ts.URL+"/api/price?sellToken=0xa&buyToken=0xb&sellAmount=10&takerAddress=0xc&apiKey=leak")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"buyAmount":"9500000"}`, body)

	assert.Equal(t, client.EndpointPrice, fwd.endpoint)
	assert.Equal(t, "0xa", fwd.query.Get("sellToken"))
	assert.Equal(t, "10", fwd.query.Get("sellAmount"))
	assert.Equal(t, "0xc", fwd.query.Get("takerAddress"))
	assert.Empty(t, fwd.query.Get("apiKey"))
}

func TestQuoteProxyPassesUpstreamErrors(t *testing.T) {
	fwd := &fakeForwarder{status: http.StatusBadRequest, body: `{"reason":"Validation Failed"}`}
	ts, _ := newTestServer(t, fwd)

	status, body := get(t, ts.URL+"/api/quote?sellToken=0xa&buyToken=0xb&sellAmount=1")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Validation Failed")
	assert.Equal(t, client.EndpointQuote, fwd.endpoint)
}

func TestProxyRejectsIncompleteQuery(t *testing.T) {
	ts, _ := newTestServer(t, &fakeForwarder{status: http.StatusOK})

	status, _ := get(t, ts.URL+"/api/price?sellToken=0xa&sellAmount=1")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = get(t, ts.URL+"/api/price?sellToken=0xa&buyToken=0xb")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestProxyUnreachableUpstream(t *testing.T) {
	ts, _ := newTestServer(t, &fakeForwarder{err: errors.New("dial tcp: refused")})

	status, body := get(t, ts.URL+"/api/price?sellToken=0xa&buyToken=0xb&sellAmount=1")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.NotContains(t, body, "refused")
}

func TestSIWEHandshake(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ctx := context.Background()

	c, err := siwe.NewClient(ts.URL, key, 137, siwe.ClientOptions{
		Domain:    "localhost:3000",
		URI:       "http://localhost:3000",
		Statement: "Hey Dabbler, sign-in to our cool app!!!",
	})
	require.NoError(t, err)

	session, err := c.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	session, err = c.SignIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), session.Address)
	assert.Equal(t, int64(137), session.ChainID)

	require.NoError(t, c.SignOut(ctx))
	session, err = c.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	_, body := get(t, ts.URL+"/metrics")
	assert.Contains(t, body, `devcamp_siwe_verifications_total{result="ok"} 1`)
}

func TestSIWERejectsWrongChainAndReplay(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ctx := context.Background()
	origin := siwe.ClientOptions{Domain: "localhost:3000", URI: "http://localhost:3000"}

	wrongChain, err := siwe.NewClient(ts.URL, key, 1, origin)
	require.NoError(t, err)
	_, err = wrongChain.SignIn(ctx)
	assert.ErrorContains(t, err, "401")

	wrongURI, err := siwe.NewClient(ts.URL, key, 137, siwe.ClientOptions{Domain: "localhost:3000", URI: "https://evil.example"})
	require.NoError(t, err)
	_, err = wrongURI.SignIn(ctx)
	assert.ErrorContains(t, err, "401")

	_, body := get(t, ts.URL+"/metrics")
	assert.Contains(t, body, `devcamp_siwe_verifications_total{result="wrong_audience"} 2`)

	// replaying a verified message must fail once its nonce is spent
	c, err := siwe.NewClient(ts.URL, key, 137, origin)
	require.NoError(t, err)
	nonce, err := c.Nonce(ctx)
	require.NoError(t, err)
	m, err := c.NewMessage(nonce)
	require.NoError(t, err)
	msg := m.String()
	sig, err := siwe.SignMessage(key, msg)
	require.NoError(t, err)

	payload := `{"message":` + jsonString(msg) + `,"signature":"` + sig + `"}`
	for i, want := range []int{http.StatusOK, http.StatusUnauthorized} {
		resp, err := http.Post(ts.URL+"/api/siwe", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, "attempt %d", i)
	}
}

func TestSIWEBadBody(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/siwe", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func jsonString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
