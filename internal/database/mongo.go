package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/rdxz2/t3dapi/pkg/interfaces"
	"github.com/rdxz2/t3dapi/pkg/types"
)

// MongoConfig points the broker at the tracker's own project collection
type MongoConfig struct {
	URI            string        `json:"uri" yaml:"uri"`
	Database       string        `json:"database" yaml:"database"`
	Collection     string        `json:"collection" yaml:"collection"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// DefaultMongoConfig leaves URI empty, which disables the Mongo lookup
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		Database:       "t3d",
		Collection:     "projects",
		ConnectTimeout: 10 * time.Second,
	}
}

// MongoLookup resolves project codes against the tracker's MongoDB.
// ARCHITECTURAL DISCOVERY: Lets the broker share the CRUD service's project
// collection instead of keeping its own copy in SQLite
type MongoLookup struct {
	client *mongo.Client
	col    *mongo.Collection
	logger *zap.Logger
}

var _ interfaces.ProjectLookup = (*MongoLookup)(nil)

// NewMongoLookup connects and pings the server
func NewMongoLookup(ctx context.Context, cfg *MongoConfig, logger *zap.Logger) (*MongoLookup, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	col := client.Database(cfg.Database).Collection(cfg.Collection)
	return &MongoLookup{client: client, col: col, logger: logger.Named("mongo")}, nil
}

// FindProjectByCode looks up {code} and rejects documents with is_active false.
// Documents without is_active count as active.
func (l *MongoLookup) FindProjectByCode(ctx context.Context, code string) (*types.Project, error) {
	filter := bson.M{"code": code, "is_active": bson.M{"$ne": false}}

	var project types.Project
	project.IsActive = true
	err := l.col.FindOne(ctx, filter).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("project %s: %w", code, interfaces.ErrProjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project %s: %w", code, err)
	}
	return &project, nil
}

// HealthCheck pings the primary
func (l *MongoLookup) HealthCheck(ctx context.Context) error {
	return l.client.Ping(ctx, nil)
}

// Close disconnects the client
func (l *MongoLookup) Close(ctx context.Context) error {
	return l.client.Disconnect(ctx)
}
