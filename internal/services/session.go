package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayushjava07/DripX/internal/config"
	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/notify"
	"github.com/ayushjava07/DripX/pkg/logger"
	"github.com/ayushjava07/DripX/pkg/metrics"
	"github.com/ayushjava07/DripX/pkg/mutex"
	"github.com/ayushjava07/DripX/pkg/ratelimiter"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidIdentity = errors.New("invalid wallet address")
)

// Session owns the state of one faucet user: the connected wallet, the amount
// field, the cooldown, the balance snapshot and the notification feed
type Session struct {
	id string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	identity  models.Identity
	connected bool
	lastSeen  time.Time

	field        *AmountField
	cooldown     *ratelimiter.Cooldown
	feed         *notify.Feed
	balances     *BalanceRefresher
	orchestrator *Orchestrator
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Context is cancelled when the session is closed. Background work of the session runs under it.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Identity returns the connected wallet
func (s *Session) Identity() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.connected
}

// ConnectWallet connects a wallet by its base58 address, refreshes its balance
// and announces the connection
func (s *Session) ConnectWallet(ctx context.Context, address string) error {
	pubKey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	identity := models.Identity(pubKey.String())

	s.mu.Lock()
	if s.connected && s.identity != identity {
		s.balances.Invalidate()
	}
	s.identity = identity
	s.connected = true
	s.mu.Unlock()

	if err := s.balances.Refresh(ctx, identity); err != nil {
		logger.GetLogger().WithSession(s.id).Warn("Initial balance refresh failed", zap.Error(err))
	}
	s.feed.Notify(models.SeveritySuccess, "Wallet Connected Successfully!", notify.WalletDuration)
	return nil
}

// DisconnectWallet forgets the wallet and its balance
func (s *Session) DisconnectWallet() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrNoWallet
	}
	s.identity = ""
	s.connected = false
	s.mu.Unlock()

	s.balances.Invalidate()
	s.feed.Notify(models.SeverityInfo, "Wallet Disconnected!", notify.WalletDuration)
	return nil
}

// SetAmount types into the amount field. Input failing the keystroke filter is ignored.
func (s *Session) SetAmount(value string) bool {
	return s.field.Set(value)
}

// Amount returns the text of the amount field
func (s *Session) Amount() string {
	return s.field.Value()
}

// Submit runs a disbursement and waits for it. A nil amount uses the amount
// field; otherwise amount is typed into the field once no disbursement is in
// flight, and input the field rejects fails with ErrNotANumber.
func (s *Session) Submit(ctx context.Context, amount *string) (*Outcome, error) {
	return s.orchestrator.submit(ctx, s.amountSource(amount))
}

// SubmitAsync starts a disbursement bound to the session lifetime
func (s *Session) SubmitAsync(amount *string) (<-chan *Outcome, error) {
	ctx := logger.ContextWithSessionID(s.ctx, s.id)
	return s.orchestrator.submitAsync(ctx, s.amountSource(amount))
}

func (s *Session) amountSource(amount *string) amountSource {
	return func() (string, error) {
		if amount == nil {
			return s.field.Value(), nil
		}
		if !s.field.Set(*amount) {
			return "", &ValidationError{Reason: ErrNotANumber, Message: "Please enter a valid positive number!"}
		}
		return *amount, nil
	}
}

// RefreshBalance refreshes the balance of the connected wallet
func (s *Session) RefreshBalance(ctx context.Context) error {
	identity, ok := s.Identity()
	if !ok {
		return ErrNoWallet
	}
	return s.balances.Refresh(ctx, identity)
}

// Balance returns the balance snapshot
func (s *Session) Balance() models.BalanceSnapshot {
	return s.balances.Snapshot()
}

// Feed returns the notification feed of the session
func (s *Session) Feed() *notify.Feed {
	return s.feed
}

// Orchestrator returns the disbursement orchestrator of the session
func (s *Session) Orchestrator() *Orchestrator {
	return s.orchestrator
}

// Cooldown returns the disbursement cooldown of the session
func (s *Session) Cooldown() *ratelimiter.Cooldown {
	return s.cooldown
}

// Describe renders the session for the HTTP API
func (s *Session) Describe() models.SessionResponse {
	identity, connected := s.Identity()
	return models.SessionResponse{
		ID:          s.id,
		Connected:   connected,
		Identity:    identity,
		Amount:      s.field.Value(),
		InFlight:    s.orchestrator.InFlight(),
		State:       s.orchestrator.State().String(),
		Balance:     s.balances.Snapshot(),
		LastOutcome: s.orchestrator.LastOutcome().View(),
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session was last used
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Close cancels background work and waits for a running disbursement to finish
func (s *Session) Close() {
	s.cancel()
	s.orchestrator.Wait()
	s.feed.Close()
}

// SessionOption configures a SessionManager
type SessionOption func(*SessionManager)

// WithSessionClock replaces the wall clock for sessions and their orchestrators
func WithSessionClock(clk clock.Clock) SessionOption {
	return func(m *SessionManager) {
		m.clock = clk
	}
}

// SessionManager creates, finds and evicts sessions
type SessionManager struct {
	cfg      *config.Config
	selector ConnectionSelector
	locks    *mutex.Keyed
	metrics  *metrics.MetricsCollector
	clock    clock.Clock

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCh chan struct{}
	once   sync.Once
}

// NewSessionManager creates a manager. All sessions share the selector and the per wallet locks.
func NewSessionManager(cfg *config.Config, selector ConnectionSelector, m *metrics.MetricsCollector, opts ...SessionOption) *SessionManager {
	sm := &SessionManager{
		cfg:      cfg,
		selector: selector,
		locks:    mutex.New(),
		metrics:  m,
		clock:    clock.New(),
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Create starts a new session
func (sm *SessionManager) Create() *Session {
	now := sm.clock.Now()
	ctx, cancel := context.WithCancel(context.Background())
	feed := notify.NewFeedWithClock(sm.cfg.Session.FeedSize, sm.clock.Now)

	s := &Session{
		id:       uuid.New().String(),
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: now,
		field:    &AmountField{},
		cooldown: ratelimiter.NewCooldown(sm.cfg.Faucet.Cooldown),
		feed:     feed,
	}
	s.balances = NewBalanceRefresher(sm.selector, sm.locks, feed, sm.cfg.Faucet.LamportsPerUnit, sm.clock, sm.metrics)
	s.orchestrator = NewOrchestrator(sm.cfg.Faucet, s, s.field, sm.selector, s.cooldown, s.balances, feed,
		WithClock(sm.clock),
		WithOrchestratorMetrics(sm.metrics),
	)

	sm.mu.Lock()
	sm.sessions[s.id] = s
	count := len(sm.sessions)
	sm.mu.Unlock()

	sm.metrics.SetSessions(count)
	logger.GetLogger().WithSession(s.id).Info("Session created")
	return s
}

// Get returns a session and marks it as used
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(sm.clock.Now())
	return s, nil
}

// Delete closes and removes a session
func (sm *SessionManager) Delete(id string) bool {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	count := len(sm.sessions)
	sm.mu.Unlock()

	if !ok {
		return false
	}
	sm.metrics.SetSessions(count)
	s.Close()
	return true
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// EvictIdle closes sessions unused for longer than the idle TTL. Sessions with
// a disbursement in flight are kept.
func (sm *SessionManager) EvictIdle(now time.Time) int {
	ttl := sm.cfg.Session.IdleTTL
	if ttl <= 0 {
		return 0
	}

	var evicted []*Session
	sm.mu.Lock()
	for id, s := range sm.sessions {
		if now.Sub(s.LastSeen()) > ttl && !s.orchestrator.InFlight() {
			delete(sm.sessions, id)
			evicted = append(evicted, s)
		}
	}
	count := len(sm.sessions)
	sm.mu.Unlock()

	for _, s := range evicted {
		s.Close()
	}
	if len(evicted) > 0 {
		sm.metrics.SetSessions(count)
		logger.GetLogger().Info("Evicted idle sessions", zap.Int("evicted", len(evicted)), zap.Int("remaining", count))
	}
	return len(evicted)
}

// StartCleanup evicts idle sessions every cleanup interval until Stop is called
func (sm *SessionManager) StartCleanup() {
	interval := sm.cfg.Session.CleanupInterval
	if interval <= 0 || sm.cfg.Session.IdleTTL <= 0 {
		return
	}

	ticker := sm.clock.Ticker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sm.EvictIdle(sm.clock.Now())
			case <-sm.stopCh:
				return
			}
		}
	}()
}

// Stop stops the cleanup routine and closes every session
func (sm *SessionManager) Stop() {
	sm.once.Do(func() { close(sm.stopCh) })

	sm.mu.Lock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for id, s := range sm.sessions {
		sessions = append(sessions, s)
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	sm.metrics.SetSessions(0)
}
