package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/notify"
	"github.com/ayushjava07/DripX/pkg/metrics"
	"github.com/ayushjava07/DripX/pkg/mutex"
	"github.com/ayushjava07/DripX/pkg/ratelimiter"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	ledger   *fakeLedger
	network  fakeNetwork
	clock    *clock.Mock
	feed     *notify.Feed
	field    *AmountField
	cooldown *ratelimiter.Cooldown
	balances *BalanceRefresher
	metrics  *metrics.MetricsCollector
	orch     *Orchestrator
}

func newOrchestratorFixture(t *testing.T, identity models.Identity) *orchestratorFixture {
	t.Helper()

	f := &orchestratorFixture{
		ledger:  newFakeLedger(),
		clock:   clock.NewMock(),
		field:   &AmountField{},
		metrics: metrics.NewMetricsCollector(),
	}
	f.network = fakeNetwork{"https://a.example": f.ledger}
	f.feed = notify.NewFeedWithClock(32, f.clock.Now)
	f.cooldown = ratelimiter.NewCooldown(10 * time.Second)

	selector := NewSelector(models.EndpointsFromAddresses([]string{"https://a.example"}), f.network.dial, time.Second)
	f.balances = NewBalanceRefresher(selector, mutex.New(), f.feed, 1_000_000_000, f.clock, f.metrics)
	f.orch = NewOrchestrator(testFaucetConfig(), staticWallet{identity: identity}, f.field, selector, f.cooldown, f.balances, f.feed,
		WithClock(f.clock),
		WithOrchestratorMetrics(f.metrics),
	)
	return f
}

func (f *orchestratorFixture) messages() []string {
	var out []string
	for _, n := range f.feed.Drain() {
		out = append(out, n.Message)
	}
	return out
}

func waitOutcome(t *testing.T, ch <-chan *Outcome) *Outcome {
	t.Helper()
	select {
	case outcome := <-ch:
		require.NotNil(t, outcome)
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("disbursement did not finish")
		return nil
	}
}

func TestOrchestratorSuccess(t *testing.T) {
	f := newOrchestratorFixture(t, walletA)
	f.ledger.balance = 234_567_890
	f.clock.Add(time.Hour)
	f.field.Set("1")

	outcome, err := f.orch.Submit(context.Background(), f.field.Value())
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, StateSucceeded, f.orch.State())
	assert.Equal(t, "Successfully received 1 SOL!", outcome.Message)
	assert.Equal(t, f.ledger.signature, outcome.Signature)
	assert.Equal(t, []uint64{1_000_000_000}, f.ledger.airdropped)

	snapshot := f.balances.Snapshot()
	assert.True(t, snapshot.Known)
	assert.Equal(t, "1.2346", snapshot.Display)

	last, ok := f.cooldown.LastAcceptedAt()
	require.True(t, ok)
	assert.Equal(t, f.clock.Now(), last)
	assert.Equal(t, "", f.field.Value())
	assert.False(t, f.orch.InFlight())
	assert.Same(t, outcome, f.orch.LastOutcome())

	assert.Equal(t, []string{
		"Requesting airdrop...",
		"Confirming transaction...",
		"Successfully received 1 SOL!",
	}, f.messages())
	assert.Equal(t, int64(1), f.metrics.Snapshot().Disbursements)
}

func TestOrchestratorCooldownAfterSuccess(t *testing.T) {
	f := newOrchestratorFixture(t, walletA)

	_, err := f.orch.Submit(context.Background(), "1")
	require.NoError(t, err)
	f.feed.Drain()

	f.clock.Add(3 * time.Second)
	outcome, err := f.orch.Submit(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, CategoryCooldown, outcome.Category)
	assert.Equal(t, "Please wait 7 seconds before next airdrop", outcome.Message)
	assert.Equal(t, int32(1), f.ledger.airdropCalls.Load())

	drained := f.feed.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, models.SeverityWarning, drained[0].Severity)
	assert.Equal(t, notify.ValidationDuration, drained[0].Duration)

	f.clock.Add(7 * time.Second)
	outcome, err = f.orch.Submit(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, outcome.State)
}

func TestOrchestratorConfirmationTimeout(t *testing.T) {
	f := newOrchestratorFixture(t, walletA)
	f.ledger.confirm = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	f.ledger.balance = 750_000_000
	require.NoError(t, f.balances.Refresh(context.Background(), walletA))
	before := f.balances.Snapshot()
	require.True(t, before.Known)
	f.clock.Add(time.Minute)
	f.field.Set("1")

	ch, err := f.orch.SubmitAsync(context.Background(), f.field.Value())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.orch.State() == StateConfirming
	}, 5*time.Second, time.Millisecond)
	f.clock.Add(30 * time.Second)

	outcome := waitOutcome(t, ch)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, CategoryTimeout, outcome.Category)
	assert.Equal(t, "Transaction timed out. Please check your balance and try again.", outcome.Message)
	assert.ErrorIs(t, outcome.Err, ErrConfirmationTimeout)

	after := f.balances.Snapshot()
	assert.True(t, after.Known)
	assert.Equal(t, "0.7500", after.Display)
	assert.Equal(t, before.Display, after.Display)
	assert.Equal(t, before.Lamports, after.Lamports)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, int32(1), f.ledger.balanceCalls.Load())
	_, consumed := f.cooldown.LastAcceptedAt()
	assert.False(t, consumed)
	assert.NoError(t, f.cooldown.Check(f.clock.Now()))
	assert.Equal(t, "1", f.field.Value())

	drained := f.feed.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, models.SeverityError, drained[2].Severity)
	assert.Equal(t, notify.FailureDuration, drained[2].Duration)
}

func TestOrchestratorConfirmationBeatsTimer(t *testing.T) {
	f := newOrchestratorFixture(t, walletA)
	release := make(chan struct{})
	f.ledger.confirm = func(ctx context.Context, _ string) error {
		<-release
		return nil
	}

	ch, err := f.orch.SubmitAsync(context.Background(), "0.5")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.orch.State() == StateConfirming
	}, 5*time.Second, time.Millisecond)

	f.clock.Add(29 * time.Second)
	close(release)

	outcome := waitOutcome(t, ch)
	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, "Successfully received 0.5 SOL!", outcome.Message)
}

func TestOrchestratorReentrancy(t *testing.T) {
	f := newOrchestratorFixture(t, walletA)
	release := make(chan struct{})
	f.ledger.confirm = func(ctx context.Context, _ string) error {
		<-release
		return nil
	}

	first, err := f.orch.SubmitAsync(context.Background(), "1")
	require.NoError(t, err)

	second, err := f.orch.SubmitAsync(context.Background(), "1")
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrDisbursementInFlight)

	_, err = f.orch.Submit(context.Background(), "1")
	assert.ErrorIs(t, err, ErrDisbursementInFlight)
	assert.True(t, f.orch.InFlight())

	close(release)
	outcome := waitOutcome(t, first)
	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, int32(1), f.ledger.airdropCalls.Load())

	for _, msg := range f.messages() {
		assert.NotContains(t, msg, "already")
	}
}

func TestOrchestratorValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{name: "empty", input: "", message: "Please enter an airdrop amount!"},
		{name: "not a number", input: "abc", message: "Please enter a valid positive number!"},
		{name: "too large", input: "3", message: "Maximum airdrop amount is 2 SOL!"},
		{name: "below one lamport", input: "0.0000000001", message: "Please enter a valid positive number!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t, walletA)

			outcome, err := f.orch.Submit(context.Background(), tt.input)
			require.NoError(t, err)

			assert.Equal(t, StateFailed, outcome.State)
			assert.Equal(t, CategoryValidation, outcome.Category)
			assert.Equal(t, tt.message, outcome.Message)
			assert.Nil(t, outcome.Request)
			assert.Equal(t, int32(0), f.ledger.slotCalls.Load())

			drained := f.feed.Drain()
			require.Len(t, drained, 1)
			assert.Equal(t, models.SeverityError, drained[0].Severity)
			assert.Equal(t, notify.ValidationDuration, drained[0].Duration)
		})
	}
}

func TestOrchestratorNoWallet(t *testing.T) {
	f := newOrchestratorFixture(t, "")

	outcome, err := f.orch.Submit(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, CategoryValidation, outcome.Category)
	assert.ErrorIs(t, outcome.Err, ErrNoWallet)
	assert.Equal(t, int32(0), f.ledger.airdropCalls.Load())
}

func TestOrchestratorFailureCategories(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *orchestratorFixture)
		category FailureCategory
		message  string
	}{
		{
			name:     "upstream rate limit",
			setup:    func(f *orchestratorFixture) { f.ledger.airdropErr = errors.New("429 Too Many Requests") },
			category: CategoryRateLimited,
			message:  "Rate limit exceeded. Please wait a few minutes and try again.",
		},
		{
			name:     "faucet exhausted",
			setup:    func(f *orchestratorFixture) { f.ledger.airdropErr = errors.New("airdrop request failed: insufficient funds") },
			category: CategoryFaucetExhausted,
			message:  "Devnet faucet is temporarily empty. Try again later.",
		},
		{
			name:     "unknown submission error",
			setup:    func(f *orchestratorFixture) { f.ledger.airdropErr = errors.New("internal error") },
			category: CategoryGeneric,
			message:  "Airdrop failed. Please try again later.",
		},
		{
			name:     "no endpoint",
			setup:    func(f *orchestratorFixture) { f.ledger.slotErr = errors.New("connection refused") },
			category: CategoryNetworkUnavailable,
			message:  "Network connection issues. Please try again.",
		},
		{
			name: "transaction failed on ledger",
			setup: func(f *orchestratorFixture) {
				f.ledger.confirm = func(context.Context, string) error {
					return fmt.Errorf("%w: %v", ErrTransactionFailed, map[string]interface{}{"InstructionError": 0})
				}
			},
			category: CategoryTransactionFailed,
			message:  "Airdrop failed. Please try again later.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t, walletA)
			tt.setup(f)

			outcome, err := f.orch.Submit(context.Background(), "1")
			require.NoError(t, err)

			assert.Equal(t, StateFailed, outcome.State)
			assert.Equal(t, tt.category, outcome.Category)
			assert.Equal(t, tt.message, outcome.Message)

			_, consumed := f.cooldown.LastAcceptedAt()
			assert.False(t, consumed)
			assert.False(t, f.balances.Snapshot().Known)

			drained := f.feed.Drain()
			require.NotEmpty(t, drained)
			last := drained[len(drained)-1]
			assert.Equal(t, tt.message, last.Message)
			assert.Equal(t, notify.FailureDuration, last.Duration)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureCategory
	}{
		{name: "nil", err: nil, want: CategoryNone},
		{name: "429", err: errors.New("HTTP 429"), want: CategoryRateLimited},
		{name: "too many requests", err: errors.New("Too many requests for a specific RPC call"), want: CategoryRateLimited},
		{name: "rate limit", err: errors.New("airdrop rate limit reached"), want: CategoryRateLimited},
		{name: "insufficient funds", err: errors.New("insufficient funds for airdrop"), want: CategoryFaucetExhausted},
		{name: "timeout text", err: errors.New("Transaction timeout"), want: CategoryTimeout},
		{name: "deadline", err: fmt.Errorf("rpc: %w", context.DeadlineExceeded), want: CategoryTimeout},
		{name: "confirmation timeout", err: ErrConfirmationTimeout, want: CategoryTimeout},
		{name: "endpoints text", err: errors.New("All RPC endpoints are unavailable"), want: CategoryNetworkUnavailable},
		{name: "typed unavailable", err: &AllEndpointsUnavailableError{}, want: CategoryNetworkUnavailable},
		{name: "transaction failed", err: ErrTransactionFailed, want: CategoryTransactionFailed},
		{name: "submission keeps its category", err: &SubmissionError{Category: CategoryFaucetExhausted, Err: errors.New("x")}, want: CategoryFaucetExhausted},
		{name: "cooldown", err: &ratelimiter.CooldownError{RetryAfter: time.Second}, want: CategoryCooldown},
		{name: "validation", err: &ValidationError{Reason: ErrEmptyAmount}, want: CategoryValidation},
		{name: "anything else", err: errors.New("boom"), want: CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "rate_checking", StateRateChecking.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}
