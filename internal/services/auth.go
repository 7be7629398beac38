package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayushjava07/DripX/internal/config"
	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/pkg/cache"
	"github.com/ayushjava07/DripX/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrInactiveAPIKey = errors.New("API key is inactive")
	ErrExpiredAPIKey  = errors.New("API key has expired")
	ErrDatabaseError  = errors.New("database error")
)

const apiKeyCacheTTL = 30 * time.Second

// AuthService handles API key authentication using MongoDB
type AuthService struct {
	collection *mongo.Collection
	known      *cache.Cache[string, *models.APIKey]
	now        func() time.Time
}

// NewAuthService creates an authentication service over the API key collection
func NewAuthService(client *mongo.Client, cfg *config.MongoDBConfig) *AuthService {
	return &AuthService{
		collection: client.Database(cfg.Database).Collection(cfg.APIKeyCollection),
		known:      cache.New[string, *models.APIKey](apiKeyCacheTTL),
		now:        time.Now,
	}
}

// EnsureIndexes creates the indexes key lookups rely on
func (a *AuthService) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "name", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create API key indexes: %w", err)
	}
	return nil
}

// ValidateAPIKey validates an API key against the MongoDB database.
// Valid keys are remembered briefly so bursts of requests hit the database once.
func (a *AuthService) ValidateAPIKey(ctx context.Context, key string) (*models.APIKey, error) {
	if key == "" {
		return nil, ErrInvalidAPIKey
	}

	if apiKey, ok := a.known.Get(key); ok && !apiKey.Expired(a.now()) {
		return apiKey, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var apiKey models.APIKey
	err := a.collection.FindOne(ctx, bson.M{"key": key}).Decode(&apiKey)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if !apiKey.Active {
		return nil, ErrInactiveAPIKey
	}
	if apiKey.Expired(a.now()) {
		return nil, ErrExpiredAPIKey
	}

	a.known.Set(key, &apiKey)
	go a.updateLastUsed(apiKey.ID)

	return &apiKey, nil
}

// IssueAPIKey stores a new active key. A zero ttl issues a key that never expires.
func (a *AuthService) IssueAPIKey(ctx context.Context, name string, ttl time.Duration) (*models.APIKey, error) {
	now := a.now().UTC()
	apiKey := &models.APIKey{
		Key:       "dripx_" + uuid.New().String(),
		Name:      name,
		Active:    true,
		CreatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		apiKey.ExpiresAt = &expires
	}

	res, err := a.collection.InsertOne(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if id, ok := res.InsertedID.(interface{ Hex() string }); ok {
		logger.GetLogger().Info("Issued API key", zap.String("name", name), zap.String("id", id.Hex()))
	}
	return apiKey, nil
}

// ListAPIKeys returns every stored key, newest first
func (a *AuthService) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	cursor, err := a.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer cursor.Close(ctx)

	var keys []models.APIKey
	if err := cursor.All(ctx, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return keys, nil
}

// RevokeAPIKeys deactivates every key with the given name and returns how many changed
func (a *AuthService) RevokeAPIKeys(ctx context.Context, name string) (int64, error) {
	res, err := a.collection.UpdateMany(ctx,
		bson.M{"name": name, "active": true},
		bson.M{"$set": bson.M{"active": false}},
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return res.ModifiedCount, nil
}

// updateLastUsed updates the last_used timestamp for an API key
func (a *AuthService) updateLastUsed(id interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"last_used": a.now().UTC()}}
	if _, err := a.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		logger.GetLogger().Debug("Failed to update API key last_used", zap.Error(err))
	}
}

// Close stops the key cache
func (a *AuthService) Close() {
	a.known.Stop()
}
