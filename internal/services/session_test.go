package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/pkg/metrics"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *fakeLedger, *clock.Mock) {
	t.Helper()

	ledger := newFakeLedger()
	ledger.balance = 1_234_567_890
	network := fakeNetwork{"https://a.example": ledger}
	selector := NewSelector(models.EndpointsFromAddresses([]string{"https://a.example"}), network.dial, time.Second)
	mock := clock.NewMock()

	sm := NewSessionManager(testConfig(), selector, metrics.NewMetricsCollector(), WithSessionClock(mock))
	t.Cleanup(sm.Stop)
	return sm, ledger, mock
}

func messagesOf(s *Session) []string {
	var out []string
	for _, n := range s.Feed().Drain() {
		out = append(out, n.Message)
	}
	return out
}

func TestSessionConnectAndDisconnect(t *testing.T) {
	sm, _, _ := newTestManager(t)
	s := sm.Create()

	_, connected := s.Identity()
	assert.False(t, connected)

	require.NoError(t, s.ConnectWallet(context.Background(), walletA))
	identity, connected := s.Identity()
	assert.True(t, connected)
	assert.Equal(t, models.Identity(walletA), identity)
	assert.Equal(t, "1.2346", s.Balance().Display)
	assert.Equal(t, []string{"Wallet Connected Successfully!"}, messagesOf(s))

	require.NoError(t, s.DisconnectWallet())
	assert.False(t, s.Balance().Known)
	assert.Equal(t, []string{"Wallet Disconnected!"}, messagesOf(s))

	assert.ErrorIs(t, s.DisconnectWallet(), ErrNoWallet)
	assert.ErrorIs(t, s.RefreshBalance(context.Background()), ErrNoWallet)
}

func TestSessionConnectInvalidAddress(t *testing.T) {
	sm, _, _ := newTestManager(t)
	s := sm.Create()

	err := s.ConnectWallet(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	_, connected := s.Identity()
	assert.False(t, connected)
	assert.Empty(t, s.Feed().Drain())
}

func TestSessionConnectWithUnreachableLedger(t *testing.T) {
	sm, ledger, _ := newTestManager(t)
	ledger.set(func(f *fakeLedger) { f.balanceErr = errors.New("down") })
	s := sm.Create()

	require.NoError(t, s.ConnectWallet(context.Background(), walletA))
	assert.False(t, s.Balance().Known)
	assert.Equal(t, []string{"Unable to fetch balance!", "Wallet Connected Successfully!"}, messagesOf(s))
}

func TestSessionSwitchWallet(t *testing.T) {
	sm, _, _ := newTestManager(t)
	s := sm.Create()

	require.NoError(t, s.ConnectWallet(context.Background(), walletA))
	require.NoError(t, s.ConnectWallet(context.Background(), walletB))

	assert.Equal(t, models.Identity(walletB), s.Balance().Identity)
}

func TestSessionSubmitUsesAmountField(t *testing.T) {
	sm, ledger, _ := newTestManager(t)
	s := sm.Create()
	require.NoError(t, s.ConnectWallet(context.Background(), walletA))

	assert.True(t, s.SetAmount("1.5"))
	assert.False(t, s.SetAmount("1.5x"))

	outcome, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, []uint64{1_500_000_000}, ledger.airdropped)
	assert.Equal(t, "", s.Amount())

	view := s.Describe()
	assert.Equal(t, "succeeded", view.State)
	require.NotNil(t, view.LastOutcome)
	assert.Equal(t, "1.5", view.LastOutcome.Amount)
	assert.Equal(t, "2.7346", view.Balance.Display)
}

func TestSessionSubmitAsync(t *testing.T) {
	sm, _, _ := newTestManager(t)
	s := sm.Create()
	require.NoError(t, s.ConnectWallet(context.Background(), walletA))

	amount := "2"
	ch, err := s.SubmitAsync(&amount)
	require.NoError(t, err)

	outcome := waitOutcome(t, ch)
	assert.True(t, outcome.Succeeded())
}

func TestSessionManagerLifecycle(t *testing.T) {
	sm, _, mock := newTestManager(t)

	s := sm.Create()
	other := sm.Create()
	assert.NotEqual(t, s.ID(), other.ID())
	assert.Equal(t, 2, sm.Count())

	got, err := sm.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = sm.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.True(t, sm.Delete(other.ID()))
	assert.False(t, sm.Delete(other.ID()))
	assert.Error(t, other.Context().Err())

	mock.Add(20 * time.Minute)
	assert.Equal(t, 0, sm.EvictIdle(mock.Now()))

	mock.Add(11 * time.Minute)
	assert.Equal(t, 1, sm.EvictIdle(mock.Now()))
	assert.Equal(t, 0, sm.Count())

	_, err = sm.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionSubmitRejectsFilteredInput(t *testing.T) {
	sm, ledger, _ := newTestManager(t)
	s := sm.Create()
	require.NoError(t, s.ConnectWallet(context.Background(), walletA))
	s.Feed().Drain()
	require.True(t, s.SetAmount("0.5"))

	for _, input := range []string{"1e0", "1e-1000000000", "-1", "1.5x"} {
		amount := input
		outcome, err := s.Submit(context.Background(), &amount)
		assert.Nil(t, outcome, input)
		assert.ErrorIs(t, err, ErrNotANumber, input)

		_, err = s.SubmitAsync(&amount)
		assert.ErrorIs(t, err, ErrNotANumber, input)
	}

	assert.Equal(t, "0.5", s.Amount())
	assert.Equal(t, StateIdle, s.Orchestrator().State())
	assert.False(t, s.Orchestrator().InFlight())
	assert.Equal(t, int32(0), ledger.airdropCalls.Load())
	assert.Empty(t, s.Feed().Drain())

	outcome, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, []uint64{500_000_000}, ledger.airdropped)
}

func TestSessionSubmitWhileInFlightLeavesField(t *testing.T) {
	sm, ledger, _ := newTestManager(t)
	release := make(chan struct{})
	ledger.set(func(f *fakeLedger) {
		f.confirm = func(ctx context.Context, _ string) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	s := sm.Create()
	require.NoError(t, s.ConnectWallet(context.Background(), walletA))
	require.True(t, s.SetAmount("1"))

	ch, err := s.SubmitAsync(nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.Orchestrator().State() == StateConfirming
	}, 5*time.Second, time.Millisecond)

	other := "0.5"
	_, err = s.SubmitAsync(&other)
	assert.ErrorIs(t, err, ErrDisbursementInFlight)
	_, err = s.Submit(context.Background(), &other)
	assert.ErrorIs(t, err, ErrDisbursementInFlight)
	assert.Equal(t, "1", s.Amount())

	close(release)
	outcome := waitOutcome(t, ch)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, []uint64{1_000_000_000}, ledger.airdropped)
}
