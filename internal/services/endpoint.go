package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/pkg/cache"
	"github.com/ayushjava07/DripX/pkg/logger"
	"github.com/ayushjava07/DripX/pkg/metrics"

	"go.uber.org/zap"
)

const stickyKey = "last-good"

// Connection is a ledger client whose endpoint answered a liveness probe
type Connection struct {
	Endpoint models.Endpoint
	Client   LedgerClient
	Verified bool
	Slot     uint64
}

// EndpointAttempt records why a candidate endpoint was rejected
type EndpointAttempt struct {
	Endpoint models.Endpoint
	Err      error
}

// AllEndpointsUnavailableError is returned when no candidate passed its probe
type AllEndpointsUnavailableError struct {
	Attempts []EndpointAttempt
}

func (e *AllEndpointsUnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "all RPC endpoints are unavailable: no endpoints configured"
	}

	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%v)", a.Endpoint.Address, a.Err))
	}
	return "all RPC endpoints are unavailable: " + strings.Join(parts, "; ")
}

// Addresses lists the attempted endpoints in probe order
func (e *AllEndpointsUnavailableError) Addresses() []string {
	out := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Endpoint.Address)
	}
	return out
}

// Selector picks the first live endpoint among unreliable candidates
type Selector struct {
	endpoints    []models.Endpoint
	dial         Dialer
	probeTimeout time.Duration
	sticky       *cache.Cache[string, models.Endpoint]
	metrics      *metrics.MetricsCollector
}

// SelectorOption configures a Selector
type SelectorOption func(*Selector)

// WithStickyTTL makes the selector probe the last good endpoint first for ttl
func WithStickyTTL(ttl time.Duration) SelectorOption {
	return func(s *Selector) {
		s.sticky = cache.NewWithClock[string, models.Endpoint](ttl, time.Now)
	}
}

// WithSelectorMetrics records every probe in m
func WithSelectorMetrics(m *metrics.MetricsCollector) SelectorOption {
	return func(s *Selector) {
		s.metrics = m
	}
}

// NewSelector creates a selector over the configured endpoints
func NewSelector(endpoints []models.Endpoint, dial Dialer, probeTimeout time.Duration, opts ...SelectorOption) *Selector {
	s := &Selector{
		endpoints:    endpoints,
		dial:         dial,
		probeTimeout: probeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Endpoints returns the configured candidates
func (s *Selector) Endpoints() []models.Endpoint {
	return append([]models.Endpoint(nil), s.endpoints...)
}

// SelectConnection selects among the configured endpoints
func (s *Selector) SelectConnection(ctx context.Context) (*Connection, error) {
	return s.Select(ctx, s.endpoints)
}

// Select probes candidates in priority order and returns the first live one.
// Later candidates are not probed once one succeeds.
func (s *Selector) Select(ctx context.Context, candidates []models.Endpoint) (*Connection, error) {
	log := logger.GetLogger().WithContext(ctx)
	ordered := s.order(candidates)
	attempts := make([]EndpointAttempt, 0, len(ordered))

	for _, endpoint := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("endpoint selection cancelled: %w", err)
		}

		conn, err := s.Probe(ctx, endpoint)
		if err != nil {
			log.Debug("Endpoint failed liveness probe, trying next",
				zap.String("endpoint", endpoint.Address),
				zap.Error(err),
			)
			attempts = append(attempts, EndpointAttempt{Endpoint: endpoint, Err: err})
			continue
		}

		s.sticky.Set(stickyKey, endpoint)
		log.Debug("Selected endpoint",
			zap.String("endpoint", endpoint.Address),
			zap.Uint64("slot", conn.Slot),
		)
		return conn, nil
	}

	s.sticky.Delete(stickyKey)
	return nil, &AllEndpointsUnavailableError{Attempts: attempts}
}

// Probe dials one endpoint and checks it answers GetSlot within the probe timeout
func (s *Selector) Probe(ctx context.Context, endpoint models.Endpoint) (*Connection, error) {
	client, err := s.dial(endpoint)
	if err != nil {
		s.metrics.RecordProbe(endpoint.Address, false)
		return nil, fmt.Errorf("dial: %w", err)
	}

	probeCtx := ctx
	if s.probeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, s.probeTimeout)
		defer cancel()
	}

	slot, err := client.GetSlot(probeCtx)
	s.metrics.RecordProbe(endpoint.Address, err == nil)
	if err != nil {
		return nil, fmt.Errorf("liveness probe: %w", err)
	}

	return &Connection{Endpoint: endpoint, Client: client, Verified: true, Slot: slot}, nil
}

// order sorts candidates by priority and moves a still valid sticky endpoint to the front
func (s *Selector) order(candidates []models.Endpoint) []models.Endpoint {
	ordered := append([]models.Endpoint(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	last, ok := s.sticky.Get(stickyKey)
	if !ok {
		return ordered
	}
	for i, endpoint := range ordered {
		if endpoint.Address == last.Address {
			copy(ordered[1:i+1], ordered[:i])
			ordered[0] = endpoint
			break
		}
	}
	return ordered
}
