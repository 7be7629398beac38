package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ayushjava07/DripX/internal/config"
	"github.com/ayushjava07/DripX/internal/models"

	"github.com/carlmjohnson/flowmatic"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthStatus represents the health status of a service
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

const maxProbeConcurrency = 8

// HealthCheck represents a health check result
type HealthCheck struct {
	Service      string        `json:"service"`
	Status       HealthStatus  `json:"status"`
	Message      string        `json:"message,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	Timestamp    time.Time     `json:"timestamp"`
}

// RPCHealthChecker probes every configured ledger endpoint
type RPCHealthChecker struct {
	selector *Selector
	timeout  time.Duration
}

// NewRPCHealthChecker creates a checker probing the selector's endpoints
func NewRPCHealthChecker(selector *Selector, timeout time.Duration) *RPCHealthChecker {
	return &RPCHealthChecker{selector: selector, timeout: timeout}
}

// CheckEndpoints probes all endpoints concurrently and returns one check per endpoint, in priority order
func (r *RPCHealthChecker) CheckEndpoints(ctx context.Context) []*HealthCheck {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	endpoints := r.selector.Endpoints()
	checks := make([]*HealthCheck, len(endpoints))
	indexes := make([]int, len(endpoints))
	for i := range indexes {
		indexes[i] = i
	}

	_ = flowmatic.Each(maxProbeConcurrency, indexes, func(i int) error {
		checks[i] = r.check(ctx, endpoints[i])
		return nil
	})

	return checks
}

// Summary folds endpoint checks into one: healthy if all are up, degraded if some are, unhealthy otherwise
func (r *RPCHealthChecker) Summary(checks []*HealthCheck) *HealthCheck {
	summary := &HealthCheck{Service: "solana_rpc", Timestamp: time.Now()}

	up := 0
	for _, c := range checks {
		if c.Status == HealthStatusHealthy {
			up++
		}
		if c.ResponseTime > summary.ResponseTime {
			summary.ResponseTime = c.ResponseTime
		}
	}

	switch {
	case len(checks) > 0 && up == len(checks):
		summary.Status = HealthStatusHealthy
	case up > 0:
		summary.Status = HealthStatusDegraded
	default:
		summary.Status = HealthStatusUnhealthy
	}
	summary.Message = fmt.Sprintf("%d of %d endpoints reachable", up, len(checks))
	return summary
}

func (r *RPCHealthChecker) check(ctx context.Context, endpoint models.Endpoint) *HealthCheck {
	start := time.Now()
	hc := &HealthCheck{Service: endpoint.Address, Timestamp: start}

	conn, err := r.selector.Probe(ctx, endpoint)
	hc.ResponseTime = time.Since(start)
	if err != nil {
		hc.Status = HealthStatusUnhealthy
		hc.Message = err.Error()
		return hc
	}

	hc.Status = HealthStatusHealthy
	hc.Message = fmt.Sprintf("slot %d", conn.Slot)
	return hc
}

// DatabaseHealthChecker provides health check functionality for MongoDB
type DatabaseHealthChecker struct {
	client *mongo.Client
	db     *mongo.Database
	config *config.MongoDBConfig
}

// NewDatabaseHealthChecker creates a health checker over an existing client
func NewDatabaseHealthChecker(client *mongo.Client, cfg *config.MongoDBConfig) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{
		client: client,
		db:     client.Database(cfg.Database),
		config: cfg,
	}
}

// CheckHealth pings MongoDB and checks the API key collection is readable
func (dhc *DatabaseHealthChecker) CheckHealth(ctx context.Context) *HealthCheck {
	start := time.Now()
	hc := &HealthCheck{Service: "mongodb", Timestamp: start}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := dhc.client.Ping(ctx, nil); err != nil {
		hc.Status = HealthStatusUnhealthy
		hc.Message = fmt.Sprintf("ping failed: %v", err)
		hc.ResponseTime = time.Since(start)
		return hc
	}

	if _, err := dhc.db.Collection(dhc.config.APIKeyCollection).EstimatedDocumentCount(ctx); err != nil {
		hc.Status = HealthStatusDegraded
		hc.Message = fmt.Sprintf("collection access failed: %v", err)
		hc.ResponseTime = time.Since(start)
		return hc
	}

	hc.Status = HealthStatusHealthy
	hc.Message = "all checks passed"
	hc.ResponseTime = time.Since(start)
	return hc
}

// CheckIndexes verifies that the API key indexes exist
func (dhc *DatabaseHealthChecker) CheckIndexes(ctx context.Context) *HealthCheck {
	start := time.Now()
	hc := &HealthCheck{Service: "mongodb_indexes", Timestamp: start}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := dhc.db.Collection(dhc.config.APIKeyCollection).Indexes().List(ctx)
	if err != nil {
		hc.Status = HealthStatusUnhealthy
		hc.Message = fmt.Sprintf("failed to list indexes: %v", err)
		hc.ResponseTime = time.Since(start)
		return hc
	}
	defer cursor.Close(ctx)

	var indexes []bson.M
	if err := cursor.All(ctx, &indexes); err != nil {
		hc.Status = HealthStatusUnhealthy
		hc.Message = fmt.Sprintf("failed to decode indexes: %v", err)
		hc.ResponseTime = time.Since(start)
		return hc
	}

	present := make(map[string]bool, len(indexes))
	for _, index := range indexes {
		if name, ok := index["name"].(string); ok {
			present[name] = true
		}
	}

	var missing []string
	for _, name := range []string{"key_1", "active_1", "name_1"} {
		if !present[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		hc.Status = HealthStatusDegraded
		hc.Message = fmt.Sprintf("missing indexes: %v", missing)
	} else {
		hc.Status = HealthStatusHealthy
		hc.Message = "all required indexes present"
	}
	hc.ResponseTime = time.Since(start)
	return hc
}
