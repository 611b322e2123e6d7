package payer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megalith-labs/x402-go/clients"
	"github.com/megalith-labs/x402-go/encoding"
	"github.com/megalith-labs/x402-go/signer"
	"github.com/megalith-labs/x402-go/token"
	"github.com/megalith-labs/x402-go/types"
)

const (
	testToken = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testPayee = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
)

var testNetworks = map[string]types.Network{
	"base": {ID: "base", ChainID: 8453},
}

type stubReader struct {
	decimals uint8
	probeErr error
	nonce    *big.Int
}

func (s *stubReader) AuthorizationState(ctx context.Context, token, authorizer common.Address, nonce [32]byte) (bool, error) {
	if s.probeErr != nil {
		return false, s.probeErr
	}
	return false, nil
}

func (s *stubReader) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	return s.decimals, nil
}

func (s *stubReader) TokenName(ctx context.Context, token common.Address) (string, error) {
	return "USD Coin", nil
}

func (s *stubReader) TokenVersion(ctx context.Context, token common.Address) (string, error) {
	return "2", nil
}

func (s *stubReader) ProxyNonce(ctx context.Context, proxy, user, token common.Address) (*big.Int, error) {
	if s.nonce == nil {
		return nil, errors.New("no proxy nonce configured")
	}
	return s.nonce, nil
}

func (s *stubReader) ChainID() *big.Int { return big.NewInt(8453) }

func (s *stubReader) Close() {}

func testSigner(t *testing.T) *signer.Local {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := signer.NewLocal(hexutil.Encode(crypto.FromECDSA(key)))
	require.NoError(t, err)
	return s
}

func readersFor(r clients.ChainReader) map[string]clients.ChainReader {
	return map[string]clients.ChainReader{"base": r}
}

func requirementsBody(t *testing.T, amount string) []byte {
	t.Helper()
	body, err := json.Marshal(types.PaymentRequired{
		X402Version: types.X402Version,
		Accepts: []types.PaymentRequirements{{
			Scheme:            string(types.SchemeNative),
			Network:           "base",
			MaxAmountRequired: amount,
			Resource:          "/api/report",
			PayTo:             testPayee,
			MaxTimeoutSeconds: 60,
			Asset:             testToken,
			Extra:             map[string]string{"name": "USD Coin", "version": "2"},
		}},
	})
	require.NoError(t, err)
	return body
}

// paywall is a minimal payee: 402 without the payment header, 200 with it.
func paywall(t *testing.T, amount string, attempts *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(attempts, 1)

		header := r.Header.Get(types.PaymentHeader)
		if header == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write(requirementsBody(t, amount))
			return
		}

		env, err := encoding.DecodeEnvelope(header)
		require.NoError(t, err)
		assert.Equal(t, string(types.SchemeNative), env.Scheme)
		assert.Equal(t, "base", env.Network)
		assert.Equal(t, amount, env.Payload.Value)

		settled, err := encoding.EncodeSettlement(types.SettlementResult{
			Success: true,
			TxHash:  "0xabc123",
			Network: "base",
		})
		require.NoError(t, err)
		w.Header().Set(types.PaymentResponseHeader, settled)
		w.Write([]byte("the paid report"))
	}
}

func TestRoundTripPaysOn402(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(paywall(t, "10000", &attempts))
	defer srv.Close()

	client, err := NewClient(testSigner(t), "0.50", testNetworks, readersFor(&stubReader{decimals: 6}))
	require.NoError(t, err)

	resp, err := client.Get(srv.URL + "/api/report")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "the paid report", string(body))
	assert.Equal(t, int32(2), attempts)

	res := Settlement(resp)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Equal(t, "0xabc123", res.TxHash)
}

func TestRoundTripPassesNon402Through(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		assert.Empty(t, r.Header.Get(types.PaymentHeader))
		w.Write([]byte("free content"))
	}))
	defer srv.Close()

	client, err := NewClient(testSigner(t), "0.50", testNetworks, readersFor(&stubReader{decimals: 6}))
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), attempts)
	assert.Nil(t, Settlement(resp))
}

func TestRoundTripRetriesAtMostOnce(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write(requirementsBody(t, "10000"))
	}))
	defer srv.Close()

	client, err := NewClient(testSigner(t), "0.50", testNetworks, readersFor(&stubReader{decimals: 6}))
	require.NoError(t, err)

	// A payee that keeps demanding payment gets its second 402 surfaced to
	// the caller instead of another paid attempt.
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, int32(2), attempts)
}

func TestRoundTripCeilingBlocksSigning(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		// 5.00 with 6 decimals against a 0.50 ceiling.
		w.Write(requirementsBody(t, "5000000"))
	}))
	defer srv.Close()

	signCalls := 0
	s := &signer.Func{
		Addr: common.HexToAddress(testPayee),
		Sign: func(digest common.Hash) ([]byte, error) {
			signCalls++
			return make([]byte, 65), nil
		},
	}

	client, err := NewClient(s, "0.50", testNetworks, readersFor(&stubReader{decimals: 6}))
	require.NoError(t, err)

	_, err = client.Get(srv.URL)
	require.Error(t, err)

	var ce *types.CeilingError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "5", ce.Requested.String())
	assert.Equal(t, "0.5", ce.Ceiling.String())
	assert.True(t, errors.Is(err, &types.X402Error{Code: types.ErrCeilingExceeded}))

	assert.Equal(t, 0, signCalls, "ceiling check must run before any signing")
	assert.Equal(t, int32(1), attempts, "a blocked payment must not retry")
}

func TestRoundTripEqualToCeilingPays(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(paywall(t, "500000", &attempts))
	defer srv.Close()

	client, err := NewClient(testSigner(t), "0.50", testNetworks, readersFor(&stubReader{decimals: 6}))
	require.NoError(t, err)

	resp, err := client.Get(srv.URL + "/api/report")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoundTripUnconfiguredNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(types.PaymentRequired{
			X402Version: types.X402Version,
			Accepts: []types.PaymentRequirements{{
				Scheme:            string(types.SchemeNative),
				Network:           "avalanche",
				MaxAmountRequired: "10000",
				PayTo:             testPayee,
				Asset:             testToken,
			}},
		})
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write(body)
	}))
	defer srv.Close()

	client, err := NewClient(testSigner(t), "0.50", testNetworks, readersFor(&stubReader{decimals: 6}))
	require.NoError(t, err)

	_, err = client.Get(srv.URL)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.CodeOf(err))
}

func TestRoundTripMalformed402Body(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("<html>payment required</html>"))
	}))
	defer srv.Close()

	client, err := NewClient(testSigner(t), "0.50", testNetworks, readersFor(&stubReader{decimals: 6}))
	require.NoError(t, err)

	_, err = client.Get(srv.URL)
	require.Error(t, err)
	assert.Equal(t, types.ErrProtocolViolation, types.CodeOf(err))
}

func TestRoundTripReplaysRequestBody(t *testing.T) {
	var attempts int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))

		if r.Header.Get(types.PaymentHeader) == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write(requirementsBody(t, "10000"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client, err := NewClient(testSigner(t), "0.50", testNetworks, readersFor(&stubReader{decimals: 6}))
	require.NoError(t, err)

	resp, err := client.Post(srv.URL, "application/json", bytes.NewReader([]byte(`{"query":"report"}`)))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(2), attempts)
	assert.Equal(t, bodies[0], bodies[1], "the paid retry must carry the same body")
	assert.Equal(t, `{"query":"report"}`, bodies[1])
}

func TestRoundTripProxiedUsesContractNonce(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)

		header := r.Header.Get(types.PaymentHeader)
		if header == "" {
			body, _ := json.Marshal(types.PaymentRequired{
				X402Version: types.X402Version,
				Accepts: []types.PaymentRequirements{{
					Scheme:            string(types.SchemeProxied),
					Network:           "base",
					MaxAmountRequired: "10000",
					PayTo:             testPayee,
					MaxTimeoutSeconds: 60,
					Asset:             testToken,
					Extra:             map[string]string{"proxyContract": "0x4200000000000000000000000000000000000777"},
				}},
			})
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write(body)
			return
		}

		env, err := encoding.DecodeEnvelope(header)
		require.NoError(t, err)
		assert.Equal(t, string(types.SchemeProxied), env.Scheme)
		assert.Equal(t, "7", env.Payload.Nonce)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	reader := &stubReader{
		decimals: 6,
		probeErr: errors.New("execution reverted"),
		nonce:    big.NewInt(7),
	}
	client, err := NewClient(testSigner(t), "0.50", testNetworks, readersFor(reader))
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), attempts)
}

func TestNewClientSharesInjectedCaches(t *testing.T) {
	meta := token.NewMetadataCache(nil)
	schemes := token.NewSchemeResolver(nil)

	// Warm the shared resolver with a failing probe so the token is cached
	// as proxied before the payer ever sees it.
	schemes.Resolve(context.Background(), &stubReader{probeErr: errors.New("execution reverted")},
		"base", testToken, testPayee)

	client, err := NewClient(testSigner(t), "0.50", testNetworks,
		readersFor(&stubReader{decimals: 6, nonce: big.NewInt(3)}),
		WithCaches(meta, schemes))
	require.NoError(t, err)

	tr, ok := client.Transport.(*Transport)
	require.True(t, ok)
	assert.Same(t, meta, tr.Metadata)
	assert.Same(t, schemes, tr.Schemes)

	// The flow must honor the cached classification instead of re-probing:
	// this reader's probe would succeed, yet the envelope stays proxied.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(types.PaymentHeader)
		if header == "" {
			body, _ := json.Marshal(types.PaymentRequired{
				X402Version: types.X402Version,
				Accepts: []types.PaymentRequirements{{
					Scheme:            string(types.SchemeProxied),
					Network:           "base",
					MaxAmountRequired: "10000",
					PayTo:             testPayee,
					Asset:             testToken,
					Extra:             map[string]string{"proxyContract": "0x4200000000000000000000000000000000000777"},
				}},
			})
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write(body)
			return
		}
		env, err := encoding.DecodeEnvelope(header)
		require.NoError(t, err)
		assert.Equal(t, string(types.SchemeProxied), env.Scheme)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoundTripRequiresNetworkDescriptor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write(requirementsBody(t, "10000"))
	}))
	defer srv.Close()

	// A reader without a matching descriptor must not produce an
	// authorization signed against chain id 0.
	client, err := NewClient(testSigner(t), "0.50",
		map[string]types.Network{}, readersFor(&stubReader{decimals: 6}))
	require.NoError(t, err)

	_, err = client.Get(srv.URL)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.CodeOf(err))
}

func TestNewClientRejectsBadCeiling(t *testing.T) {
	for _, ceiling := range []string{"", "abc", "-1"} {
		_, err := NewClient(testSigner(t), ceiling, testNetworks, readersFor(&stubReader{decimals: 6}))
		require.Error(t, err, "ceiling %q", ceiling)
		assert.Equal(t, types.ErrConfiguration, types.CodeOf(err))
	}
}
