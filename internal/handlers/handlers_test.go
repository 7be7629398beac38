package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayushjava07/DripX/internal/config"
	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/logger"
	"github.com/ayushjava07/DripX/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "So11111111111111111111111111111111111111112"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	_ = logger.Initialize(&logger.Config{Level: "info", Environment: "test"})
	os.Exit(m.Run())
}

// stubLedger answers every call from fixed values
type stubLedger struct {
	mu       sync.Mutex
	down     bool
	balance  uint64
	blocking bool
}

func (l *stubLedger) GetSlot(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return 0, context.DeadlineExceeded
	}
	return 7, nil
}

func (l *stubLedger) GetBalance(ctx context.Context, identity models.Identity) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

func (l *stubLedger) RequestAirdrop(ctx context.Context, identity models.Identity, lamports uint64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance += lamports
	return "sig-1", nil
}

func (l *stubLedger) ConfirmTransaction(ctx context.Context, signature string) error {
	l.mu.Lock()
	blocking := l.blocking
	l.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

type testServer struct {
	engine   *gin.Engine
	ledger   *stubLedger
	sessions *services.SessionManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.LoadConfig()
	cfg.RPC.Endpoints = []string{"https://stub.example"}
	cfg.Faucet.MaxAmount = decimal.NewFromInt(2)
	cfg.Faucet.Cooldown = 10 * time.Second
	cfg.Session.FeedSize = 16

	ledger := &stubLedger{balance: 1_500_000_000}
	dial := func(models.Endpoint) (services.LedgerClient, error) { return ledger, nil }

	m := metrics.NewMetricsCollector()
	selector := services.NewSelector(models.EndpointsFromAddresses(cfg.RPC.Endpoints), dial, time.Second, services.WithSelectorMetrics(m))
	sessions := services.NewSessionManager(cfg, selector, m)
	t.Cleanup(sessions.Stop)

	router := NewRouter(sessions, NewHealthHandler(services.NewRPCHealthChecker(selector, time.Second), nil, sessions, m), m)
	engine := gin.New()
	router.SetupRoutes(engine)
	router.SetupHealthRoutes(engine)

	return &testServer{engine: engine, ledger: ledger, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp models.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	w := srv.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.SessionResponse](t, w)
	assert.False(t, resp.Connected)
	assert.Equal(t, "idle", resp.State)

	w = srv.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = srv.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_NOT_FOUND")

	w = srv.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConnectWallet(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	w := srv.do(t, http.MethodPut, "/api/sessions/"+id+"/wallet", models.WalletRequest{Address: "not-a-key"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_WALLET_ADDRESS")

	w = srv.do(t, http.MethodPut, "/api/sessions/"+id+"/wallet", models.WalletRequest{Address: testWallet})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.SessionResponse](t, w)
	assert.True(t, resp.Connected)
	assert.Equal(t, models.Identity(testWallet), resp.Identity)
	assert.True(t, resp.Balance.Known)
	assert.Equal(t, "1.5000", resp.Balance.Display)

	w = srv.do(t, http.MethodDelete, "/api/sessions/"+id+"/wallet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.SessionResponse](t, w).Connected)

	w = srv.do(t, http.MethodDelete, "/api/sessions/"+id+"/wallet", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "WALLET_NOT_CONNECTED")
}

func TestSetAmountFiltersKeystrokes(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	w := srv.do(t, http.MethodPut, "/api/sessions/"+id+"/amount", models.AmountRequest{Value: "1.5"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"amount":"1.5"}`, w.Body.String())

	w = srv.do(t, http.MethodPut, "/api/sessions/"+id+"/amount", models.AmountRequest{Value: "1.5a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_AMOUNT")

	w = srv.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, "1.5", decode[models.SessionResponse](t, w).Amount)

	w = srv.do(t, http.MethodPut, "/api/sessions/"+id+"/amount", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "MALFORMED_JSON")
}

func TestAirdropWaitSucceeds(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	srv.do(t, http.MethodPut, "/api/sessions/"+id+"/wallet", models.WalletRequest{Address: testWallet})
	srv.do(t, http.MethodPut, "/api/sessions/"+id+"/amount", models.AmountRequest{Value: "0.5"})

	w := srv.do(t, http.MethodPost, "/api/sessions/"+id+"/airdrop?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	outcome := decode[models.OutcomeView](t, w)
	assert.Equal(t, "succeeded", outcome.State)
	assert.Equal(t, "sig-1", outcome.Signature)
	assert.Equal(t, "Successfully received 0.5 SOL!", outcome.Message)

	w = srv.do(t, http.MethodGet, "/api/sessions/"+id+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2.0000", decode[models.BalanceSnapshot](t, w).Display)

	w = srv.do(t, http.MethodGet, "/api/sessions/"+id+"/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var messages []string
	for _, n := range decode[models.NotificationsResponse](t, w).Notifications {
		messages = append(messages, n.Message)
	}
	assert.Equal(t, []string{
		"Wallet Connected Successfully!",
		"Requesting airdrop...",
		"Confirming transaction...",
		"Successfully received 0.5 SOL!",
	}, messages)

	w = srv.do(t, http.MethodGet, "/api/sessions/"+id+"/notifications", nil)
	assert.Empty(t, decode[models.NotificationsResponse](t, w).Notifications)

	w = srv.do(t, http.MethodGet, "/api/sessions/"+id+"/notifications?recent=1", nil)
	require.Len(t, decode[models.NotificationsResponse](t, w).Notifications, 1)

	// second request inside the cooldown window
	w = srv.do(t, http.MethodPost, "/api/sessions/"+id+"/airdrop?wait=true", map[string]string{"amount": "0.5"})
	require.Equal(t, http.StatusOK, w.Code)
	outcome = decode[models.OutcomeView](t, w)
	assert.Equal(t, "failed", outcome.State)
	assert.Equal(t, "cooldown", outcome.Category)
	assert.True(t, strings.HasPrefix(outcome.Message, "Please wait "), outcome.Message)
}

func TestAirdropValidationFailure(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	w := srv.do(t, http.MethodPost, "/api/sessions/"+id+"/airdrop?wait=true", map[string]string{"amount": "1"})
	require.Equal(t, http.StatusOK, w.Code)
	outcome := decode[models.OutcomeView](t, w)
	assert.Equal(t, "failed", outcome.State)
	assert.Equal(t, "Please connect your wallet first!", outcome.Message)

	w = srv.do(t, http.MethodPost, "/api/sessions/"+id+"/airdrop", "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAirdropRejectsExponentAmounts(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)
	srv.do(t, http.MethodPut, "/api/sessions/"+id+"/wallet", models.WalletRequest{Address: testWallet})
	srv.do(t, http.MethodPut, "/api/sessions/"+id+"/amount", models.AmountRequest{Value: "0.5"})

	for _, amount := range []string{"1e0", "1e-1000000000"} {
		w := srv.do(t, http.MethodPost, "/api/sessions/"+id+"/airdrop?wait=true", map[string]string{"amount": amount})
		assert.Equal(t, http.StatusBadRequest, w.Code, amount)
		assert.Contains(t, w.Body.String(), "INVALID_AMOUNT", amount)

		w = srv.do(t, http.MethodPost, "/api/sessions/"+id+"/airdrop", map[string]string{"amount": amount})
		assert.Equal(t, http.StatusBadRequest, w.Code, amount)
	}

	w := srv.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[models.SessionResponse](t, w)
	assert.Equal(t, "0.5", view.Amount)
	assert.Equal(t, "idle", view.State)
	assert.Nil(t, view.LastOutcome)
}

func TestAirdropInFlight(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)
	srv.ledger.blocking = true

	srv.do(t, http.MethodPut, "/api/sessions/"+id+"/wallet", models.WalletRequest{Address: testWallet})

	w := srv.do(t, http.MethodPost, "/api/sessions/"+id+"/airdrop", map[string]string{"amount": "1"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, decode[models.SessionResponse](t, w).InFlight)

	w = srv.do(t, http.MethodPost, "/api/sessions/"+id+"/airdrop", map[string]string{"amount": "1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "DISBURSEMENT_IN_FLIGHT")
}

func TestRefreshBalanceWithoutWallet(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)

	w := srv.do(t, http.MethodPost, "/api/sessions/"+id+"/balance/refresh", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "WALLET_NOT_CONNECTED")

	w = srv.do(t, http.MethodGet, "/api/sessions/"+id+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.BalanceSnapshot](t, w).Known)
}

func TestHealthRoutes(t *testing.T) {
	srv := newTestServer(t)
	srv.createSession(t)

	w := srv.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/health/rpc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1 of 1 endpoints reachable")

	w = srv.do(t, http.MethodGet, "/health/db", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sessions":1`)

	srv.ledger.mu.Lock()
	srv.ledger.down = true
	srv.ledger.mu.Unlock()

	w = srv.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = srv.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dripx_faucet_sessions 1")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
