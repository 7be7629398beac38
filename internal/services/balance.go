package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/notify"
	"github.com/ayushjava07/DripX/pkg/logger"
	"github.com/ayushjava07/DripX/pkg/metrics"
	"github.com/ayushjava07/DripX/pkg/mutex"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const balanceDisplayPlaces = 4

// BalanceRefresher keeps the balance snapshot of one session in sync with the ledger
type BalanceRefresher struct {
	selector        ConnectionSelector
	locks           *mutex.Keyed
	notifier        notify.Notifier
	lamportsPerUnit uint64
	clock           clock.Clock
	metrics         *metrics.MetricsCollector

	mu         sync.RWMutex
	snapshot   models.BalanceSnapshot
	generation uint64
}

// NewBalanceRefresher creates a refresher. locks may be shared between sessions
// so that refreshes of the same wallet are serialised process wide.
func NewBalanceRefresher(
	selector ConnectionSelector,
	locks *mutex.Keyed,
	notifier notify.Notifier,
	lamportsPerUnit uint64,
	clk clock.Clock,
	m *metrics.MetricsCollector,
) *BalanceRefresher {
	if locks == nil {
		locks = mutex.New()
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	if clk == nil {
		clk = clock.New()
	}
	return &BalanceRefresher{
		selector:        selector,
		locks:           locks,
		notifier:        notifier,
		lamportsPerUnit: lamportsPerUnit,
		clock:           clk,
		metrics:         m,
	}
}

// Refresh fetches the balance of identity and publishes it. On failure the
// previous snapshot is kept and an error notification is emitted.
func (br *BalanceRefresher) Refresh(ctx context.Context, identity models.Identity) error {
	log := logger.GetLogger().WithContext(ctx).WithFields(map[string]interface{}{
		"wallet_address": identity.String(),
		"component":      "balance_refresher",
	})

	br.mu.RLock()
	generation := br.generation
	br.mu.RUnlock()

	unlock, err := br.lock(ctx, identity)
	if err != nil {
		return br.failed(log, fmt.Errorf("waiting for wallet lock: %w", err))
	}
	defer unlock()

	conn, err := br.selector.SelectConnection(ctx)
	if err != nil {
		return br.failed(log, err)
	}

	lamports, err := conn.Client.GetBalance(ctx, identity)
	if err != nil {
		return br.failed(log, err)
	}

	snapshot := models.BalanceSnapshot{
		Known:     true,
		Identity:  identity,
		Lamports:  lamports,
		Display:   FormatUnits(lamports, br.lamportsPerUnit, balanceDisplayPlaces),
		UpdatedAt: br.clock.Now(),
	}

	br.mu.Lock()
	published := br.generation == generation
	if published {
		br.snapshot = snapshot
	}
	br.mu.Unlock()

	br.metrics.RecordBalanceRefresh(true)
	if !published {
		log.Debug("Discarding balance fetched before the wallet changed")
		return nil
	}

	log.Debug("Balance refreshed",
		zap.Uint64("lamports", lamports),
		zap.String("display", snapshot.Display),
		zap.String("endpoint", conn.Endpoint.Address),
	)
	return nil
}

// Snapshot returns the last published balance
func (br *BalanceRefresher) Snapshot() models.BalanceSnapshot {
	br.mu.RLock()
	defer br.mu.RUnlock()
	return br.snapshot
}

// Invalidate resets the balance to unknown. Refreshes started before the call
// do not publish.
func (br *BalanceRefresher) Invalidate() {
	br.mu.Lock()
	defer br.mu.Unlock()

	br.snapshot = models.BalanceSnapshot{}
	br.generation++
}

func (br *BalanceRefresher) lock(ctx context.Context, identity models.Identity) (func(), error) {
	if unlock, ok := br.locks.TryLock(identity.String()); ok {
		return unlock, nil
	}
	br.metrics.RecordMutexWait()
	return br.locks.Lock(ctx, identity.String())
}

func (br *BalanceRefresher) failed(log *logger.Logger, err error) error {
	br.metrics.RecordBalanceRefresh(false)
	br.notifier.Notify(models.SeverityError, "Unable to fetch balance!", notify.BalanceDuration)
	log.Error("Failed to fetch balance", zap.Error(err))
	return fmt.Errorf("balance refresh failed: %w", err)
}
