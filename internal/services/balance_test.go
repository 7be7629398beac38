package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/notify"
	"github.com/ayushjava07/DripX/pkg/mutex"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRefresher(ledger *fakeLedger, feed *notify.Feed, clk clock.Clock) *BalanceRefresher {
	network := fakeNetwork{"https://a.example": ledger}
	selector := NewSelector(models.EndpointsFromAddresses([]string{"https://a.example"}), network.dial, time.Second)
	return NewBalanceRefresher(selector, mutex.New(), feed, 1_000_000_000, clk, nil)
}

func TestBalanceRefresh(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balance = 1_234_567_890
	mock := clock.NewMock()
	mock.Add(time.Minute)
	refresher := newTestRefresher(ledger, notify.NewFeed(8), mock)

	assert.False(t, refresher.Snapshot().Known)
	require.NoError(t, refresher.Refresh(context.Background(), walletA))

	snapshot := refresher.Snapshot()
	assert.True(t, snapshot.Known)
	assert.Equal(t, models.Identity(walletA), snapshot.Identity)
	assert.Equal(t, uint64(1_234_567_890), snapshot.Lamports)
	assert.Equal(t, "1.2346", snapshot.Display)
	assert.Equal(t, mock.Now(), snapshot.UpdatedAt)
}

func TestBalanceRefreshFailureKeepsSnapshot(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balance = 5_000_000_000
	feed := notify.NewFeed(8)
	refresher := newTestRefresher(ledger, feed, clock.NewMock())

	require.NoError(t, refresher.Refresh(context.Background(), walletA))
	before := refresher.Snapshot()

	ledger.set(func(f *fakeLedger) { f.balanceErr = errors.New("node is behind") })
	err := refresher.Refresh(context.Background(), walletA)

	require.Error(t, err)
	assert.Equal(t, before, refresher.Snapshot())
	assert.Equal(t, "5.0000", refresher.Snapshot().Display)

	drained := feed.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, models.SeverityError, drained[0].Severity)
	assert.Equal(t, "Unable to fetch balance!", drained[0].Message)
	assert.Equal(t, notify.BalanceDuration, drained[0].Duration)
}

func TestBalanceRefreshNoEndpoint(t *testing.T) {
	ledger := newFakeLedger()
	ledger.slotErr = errors.New("down")
	feed := notify.NewFeed(8)
	refresher := newTestRefresher(ledger, feed, clock.NewMock())

	err := refresher.Refresh(context.Background(), walletA)

	var unavailable *AllEndpointsUnavailableError
	assert.ErrorAs(t, err, &unavailable)
	assert.False(t, refresher.Snapshot().Known)
	assert.Len(t, feed.Drain(), 1)
}

func TestBalanceInvalidate(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balance = 1
	refresher := newTestRefresher(ledger, notify.NewFeed(8), clock.NewMock())

	require.NoError(t, refresher.Refresh(context.Background(), walletA))
	refresher.Invalidate()

	assert.Equal(t, models.BalanceSnapshot{}, refresher.Snapshot())
}

func TestBalanceConcurrentRefreshes(t *testing.T) {
	ledger := newFakeLedger()
	ledger.balance = 1_000_000_000
	refresher := newTestRefresher(ledger, notify.NewFeed(8), clock.NewMock())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, refresher.Refresh(context.Background(), walletA))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ledger.balanceCalls.Load())
	assert.Equal(t, "1.0000", refresher.Snapshot().Display)
}
