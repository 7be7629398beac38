package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayushjava07/DripX/internal/config"
	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/notify"
	"github.com/ayushjava07/DripX/pkg/logger"
	"github.com/ayushjava07/DripX/pkg/metrics"
	"github.com/ayushjava07/DripX/pkg/ratelimiter"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// ErrDisbursementInFlight is returned when a submit arrives while another one is running
var ErrDisbursementInFlight = errors.New("a disbursement is already in flight")

// State of the disbursement state machine
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateRateChecking
	StateConnecting
	StateSubmitting
	StateConfirming
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateValidating:   "validating",
	StateRateChecking: "rate_checking",
	StateConnecting:   "connecting",
	StateSubmitting:   "submitting",
	StateConfirming:   "confirming",
	StateSucceeded:    "succeeded",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// FailureCategory selects the message shown for a failed disbursement
type FailureCategory string

const (
	CategoryNone               FailureCategory = ""
	CategoryValidation         FailureCategory = "validation"
	CategoryCooldown           FailureCategory = "cooldown"
	CategoryRateLimited        FailureCategory = "rate-limited-upstream"
	CategoryFaucetExhausted    FailureCategory = "faucet-exhausted"
	CategoryTimeout            FailureCategory = "timeout"
	CategoryNetworkUnavailable FailureCategory = "network-unavailable"
	CategoryTransactionFailed  FailureCategory = "transaction-failed"
	CategoryGeneric            FailureCategory = "generic-failure"
)

var failureMessages = map[FailureCategory]string{
	CategoryRateLimited:        "Rate limit exceeded. Please wait a few minutes and try again.",
	CategoryFaucetExhausted:    "Devnet faucet is temporarily empty. Try again later.",
	CategoryTimeout:            "Transaction timed out. Please check your balance and try again.",
	CategoryNetworkUnavailable: "Network connection issues. Please try again.",
}

const genericFailureMessage = "Airdrop failed. Please try again later."

// Message returns the user facing text for a terminal failure category
func (c FailureCategory) Message() string {
	if msg, ok := failureMessages[c]; ok {
		return msg
	}
	return genericFailureMessage
}

// SubmissionError wraps an upstream error returned while requesting the airdrop
type SubmissionError struct {
	Category FailureCategory
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("airdrop submission failed (%s): %v", e.Category, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Classify maps an error from the connect, submit or confirm steps to a category.
// Typed errors win; otherwise the upstream message is matched against known signatures.
func Classify(err error) FailureCategory {
	if err == nil {
		return CategoryNone
	}

	var (
		unavailable *AllEndpointsUnavailableError
		submission  *SubmissionError
		validation  *ValidationError
		cooldown    *ratelimiter.CooldownError
	)
	switch {
	case errors.As(err, &validation):
		return CategoryValidation
	case errors.As(err, &cooldown):
		return CategoryCooldown
	case errors.As(err, &unavailable):
		return CategoryNetworkUnavailable
	case errors.As(err, &submission) && submission.Category != CategoryNone:
		return submission.Category
	case errors.Is(err, ErrConfirmationTimeout), errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, ErrTransactionFailed):
		return CategoryTransactionFailed
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "rate limit"):
		return CategoryRateLimited
	case strings.Contains(msg, "insufficient funds"):
		return CategoryFaucetExhausted
	case strings.Contains(msg, "timeout"):
		return CategoryTimeout
	case strings.Contains(msg, "endpoints"):
		return CategoryNetworkUnavailable
	}
	return CategoryGeneric
}

// Outcome is the terminal result of one disbursement attempt
type Outcome struct {
	State      State
	Category   FailureCategory
	Message    string
	Signature  string
	Request    *models.DisbursementRequest
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the attempt reached StateSucceeded
func (o *Outcome) Succeeded() bool {
	return o != nil && o.State == StateSucceeded
}

// View renders the outcome for the HTTP API
func (o *Outcome) View() *models.OutcomeView {
	if o == nil {
		return nil
	}
	view := &models.OutcomeView{
		State:     o.State.String(),
		Category:  string(o.Category),
		Message:   o.Message,
		Signature: o.Signature,
		Finished:  o.FinishedAt,
	}
	if o.Request != nil {
		view.Amount = o.Request.Amount.String()
	}
	return view
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithClock replaces the wall clock
func WithClock(clk clock.Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		o.clock = clk
	}
}

// WithOrchestratorMetrics records finished disbursements in m
func WithOrchestratorMetrics(m *metrics.MetricsCollector) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator drives one disbursement at a time for a single session
type Orchestrator struct {
	validator       Validator
	lamportsPerUnit uint64
	confirmTimeout  time.Duration

	wallet   IdentitySource
	field    *AmountField
	selector ConnectionSelector
	cooldown *ratelimiter.Cooldown
	balances BalanceRefresherInterface
	notifier notify.Notifier
	clock    clock.Clock
	metrics  *metrics.MetricsCollector

	inFlight atomic.Bool
	state    atomic.Int32

	mu   sync.Mutex
	last *Outcome
	wg   sync.WaitGroup
}

// NewOrchestrator wires the faucet policy to its collaborators
func NewOrchestrator(
	cfg config.FaucetConfig,
	wallet IdentitySource,
	field *AmountField,
	selector ConnectionSelector,
	cooldown *ratelimiter.Cooldown,
	balances BalanceRefresherInterface,
	notifier notify.Notifier,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		validator:       Validator{Max: cfg.MaxAmount, Unit: cfg.UnitSymbol},
		lamportsPerUnit: cfg.LamportsPerUnit,
		confirmTimeout:  cfg.ConfirmationTimeout,
		wallet:          wallet,
		field:           field,
		selector:        selector,
		cooldown:        cooldown,
		balances:        balances,
		notifier:        notifier,
		clock:           clock.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = notify.Discard
	}
	return o
}

// State returns the current state
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// InFlight reports whether a disbursement is running
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// LastOutcome returns the most recent terminal outcome, or nil
func (o *Orchestrator) LastOutcome() *Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Submit runs a disbursement for raw and blocks until it is terminal.
// It returns ErrDisbursementInFlight without side effects if one is already running.
func (o *Orchestrator) Submit(ctx context.Context, raw string) (*Outcome, error) {
	return o.submit(ctx, fixedAmount(raw))
}

// SubmitAsync starts a disbursement in the background. The channel receives
// the outcome once and is then closed.
func (o *Orchestrator) SubmitAsync(ctx context.Context, raw string) (<-chan *Outcome, error) {
	return o.submitAsync(ctx, fixedAmount(raw))
}

// amountSource yields the raw amount once the in-flight guard is held. An
// error releases the guard and is returned to the caller as is.
type amountSource func() (string, error)

func fixedAmount(raw string) amountSource {
	return func() (string, error) { return raw, nil }
}

func (o *Orchestrator) acquire(source amountSource) (string, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return "", ErrDisbursementInFlight
	}
	raw, err := source()
	if err != nil {
		o.inFlight.Store(false)
		return "", err
	}
	return raw, nil
}

func (o *Orchestrator) submit(ctx context.Context, source amountSource) (*Outcome, error) {
	raw, err := o.acquire(source)
	if err != nil {
		return nil, err
	}
	o.wg.Add(1)
	defer o.wg.Done()

	return o.run(ctx, raw), nil
}

func (o *Orchestrator) submitAsync(ctx context.Context, source amountSource) (<-chan *Outcome, error) {
	raw, err := o.acquire(source)
	if err != nil {
		return nil, err
	}
	o.wg.Add(1)

	result := make(chan *Outcome, 1)
	go func() {
		defer o.wg.Done()
		defer close(result)
		result <- o.run(ctx, raw)
	}()
	return result, nil
}

// Wait blocks until no disbursement is running
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, raw string) *Outcome {
	defer o.inFlight.Store(false)

	log := logger.GetLogger().WithContext(ctx)
	outcome := &Outcome{StartedAt: o.clock.Now()}

	o.setState(log, StateValidating)
	identity, connected := o.wallet.Identity()
	if !connected {
		return o.fail(log, outcome, &ValidationError{Reason: ErrNoWallet, Message: "Please connect your wallet first!"})
	}

	amount, err := o.validator.Validate(raw)
	if err != nil {
		return o.fail(log, outcome, err)
	}
	lamports := ToLamports(amount, o.lamportsPerUnit)
	if lamports == 0 {
		return o.fail(log, outcome, &ValidationError{Reason: ErrNonPositive, Message: "Please enter a valid positive number!"})
	}

	o.setState(log, StateRateChecking)
	if err := o.cooldown.Check(o.clock.Now()); err != nil {
		return o.fail(log, outcome, err)
	}

	outcome.Request = &models.DisbursementRequest{
		Amount:    amount,
		Lamports:  lamports,
		Requester: identity,
		CreatedAt: o.clock.Now(),
	}

	o.setState(log, StateConnecting)
	conn, err := o.selector.SelectConnection(ctx)
	if err != nil {
		return o.fail(log, outcome, err)
	}

	o.setState(log, StateSubmitting)
	o.notifier.Notify(models.SeverityInfo, "Requesting airdrop...", notify.RequestingDuration)
	signature, err := conn.Client.RequestAirdrop(ctx, identity, lamports)
	if err != nil {
		return o.fail(log, outcome, &SubmissionError{Category: Classify(err), Err: err})
	}
	outcome.Signature = signature

	// the timer exists before the state is observable as confirming
	timer := o.clock.Timer(o.confirmTimeout)
	defer timer.Stop()

	o.setState(log, StateConfirming)
	o.notifier.Notify(models.SeverityInfo, "Confirming transaction...", notify.ConfirmingDuration)
	if err := o.confirm(ctx, conn.Client, signature, timer); err != nil {
		return o.fail(log, outcome, err)
	}

	return o.succeed(ctx, log, outcome)
}

// confirm races the ledger confirmation against timer. The loser is discarded
// and its context cancelled.
func (o *Orchestrator) confirm(ctx context.Context, client LedgerClient, signature string, timer *clock.Timer) error {
	confirmCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- client.ConfirmTransaction(confirmCtx, signature)
	}()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrConfirmationTimeout, o.confirmTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) succeed(ctx context.Context, log *logger.Logger, outcome *Outcome) *Outcome {
	now := o.clock.Now()
	o.cooldown.Commit(now)
	o.field.Clear()

	outcome.State = StateSucceeded
	outcome.Message = fmt.Sprintf("Successfully received %s %s!", outcome.Request.Amount.String(), o.validator.unit())
	outcome.FinishedAt = now
	o.finish(log, outcome)

	o.notifier.Notify(models.SeveritySuccess, outcome.Message, notify.SuccessDuration)
	log.Info("Disbursement confirmed",
		zap.String("identity", outcome.Request.Requester.String()),
		zap.String("amount", outcome.Request.Amount.String()),
		zap.String("signature", outcome.Signature),
	)

	if err := o.balances.Refresh(ctx, outcome.Request.Requester); err != nil {
		log.Warn("Balance refresh after disbursement failed", zap.Error(err))
	}
	return outcome
}

func (o *Orchestrator) fail(log *logger.Logger, outcome *Outcome, err error) *Outcome {
	category := Classify(err)

	outcome.State = StateFailed
	outcome.Category = category
	outcome.Err = err
	outcome.FinishedAt = o.clock.Now()

	severity := models.SeverityError
	duration := notify.FailureDuration
	var cooldownErr *ratelimiter.CooldownError

	switch {
	case category == CategoryValidation:
		outcome.Message = err.Error()
		duration = notify.ValidationDuration
	case errors.As(err, &cooldownErr):
		outcome.Message = fmt.Sprintf("Please wait %d seconds before next airdrop", cooldownErr.Seconds())
		severity = models.SeverityWarning
		duration = notify.ValidationDuration
	default:
		outcome.Message = category.Message()
	}

	o.finish(log, outcome)
	o.notifier.Notify(severity, outcome.Message, duration)

	if category == CategoryValidation || category == CategoryCooldown {
		log.Debug("Disbursement rejected", zap.String("category", string(category)), zap.Error(err))
	} else {
		log.Warn("Disbursement failed", zap.String("category", string(category)), zap.Error(err))
	}
	return outcome
}

func (o *Orchestrator) finish(log *logger.Logger, outcome *Outcome) {
	o.mu.Lock()
	o.last = outcome
	o.mu.Unlock()

	o.setState(log, outcome.State)

	label := "success"
	if outcome.State == StateFailed {
		label = string(outcome.Category)
	}
	o.metrics.RecordDisbursement(label, outcome.FinishedAt.Sub(outcome.StartedAt))
}

func (o *Orchestrator) setState(log *logger.Logger, s State) {
	o.state.Store(int32(s))
	log.Debug("Disbursement state", zap.String("state", s.String()))
}
