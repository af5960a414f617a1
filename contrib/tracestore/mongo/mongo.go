// Package mongo stores run traces in a MongoDB collection keyed by run id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/tracestore"
)

// Config holds MongoDB connection configuration.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// DefaultConfig returns local defaults.
func DefaultConfig() *Config {
	return &Config{
		URI:        "mongodb://localhost:27017",
		Database:   "hybrid_analyst",
		Collection: "traces",
	}
}

// Store implements tracestore.Store on MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ tracestore.Store = (*Store)(nil)

type mongoRecord struct {
	RunID          string    `bson:"_id"`
	Fingerprint    string    `bson:"fingerprint"`
	Question       string    `bson:"question"`
	FormatHint     string    `bson:"format_hint"`
	Classification string    `bson:"classification"`
	Plan           string    `bson:"plan"`
	Query          string    `bson:"query"`
	Error          string    `bson:"error,omitempty"`
	RepairCount    int       `bson:"repair_count"`
	FinalAnswer    any       `bson:"final_answer"`
	Explanation    string    `bson:"explanation"`
	Citations      []string  `bson:"citations"`
	Confidence     float64   `bson:"confidence"`
	Degraded       bool      `bson:"degraded,omitempty"`
	Trail          []string  `bson:"trail"`
	CreatedAt      time.Time `bson:"created_at"`
}

func toMongo(r *tracestore.Record) mongoRecord {
	return mongoRecord{
		RunID:          r.RunID,
		Fingerprint:    r.Fingerprint,
		Question:       r.Question,
		FormatHint:     r.FormatHint,
		Classification: r.Classification,
		Plan:           r.Plan,
		Query:          r.Query,
		Error:          r.Error,
		RepairCount:    r.RepairCount,
		FinalAnswer:    r.FinalAnswer,
		Explanation:    r.Explanation,
		Citations:      r.Citations,
		Confidence:     r.Confidence,
		Degraded:       r.Degraded,
		Trail:          r.Trail,
		CreatedAt:      r.CreatedAt,
	}
}

func (m mongoRecord) record() *tracestore.Record {
	return &tracestore.Record{
		RunID:          m.RunID,
		Fingerprint:    m.Fingerprint,
		Question:       m.Question,
		FormatHint:     m.FormatHint,
		Classification: m.Classification,
		Plan:           m.Plan,
		Query:          m.Query,
		Error:          m.Error,
		RepairCount:    m.RepairCount,
		FinalAnswer:    m.FinalAnswer,
		Explanation:    m.Explanation,
		Citations:      m.Citations,
		Confidence:     m.Confidence,
		Degraded:       m.Degraded,
		Trail:          m.Trail,
		CreatedAt:      m.CreatedAt,
	}
}

// New connects to MongoDB and ensures the fingerprint index exists.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &Store{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := store.createIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "fingerprint", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// Save upserts the record.
func (s *Store) Save(ctx context.Context, record *tracestore.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": record.RunID}, toMongo(record), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save trace record: %w", err)
	}
	return nil
}

// Get loads the record for a run.
func (s *Store) Get(ctx context.Context, runID string) (*tracestore.Record, error) {
	return s.findOne(ctx, bson.M{"_id": runID}, nil, "run "+runID)
}

// FindByFingerprint returns the newest record with the fingerprint.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*tracestore.Record, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.findOne(ctx, bson.M{"fingerprint": fingerprint}, opts, "fingerprint "+fingerprint)
}

func (s *Store) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions, what string) (*tracestore.Record, error) {
	var doc mongoRecord
	var err error
	if opts != nil {
		err = s.collection.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = s.collection.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
		}
		return nil, fmt.Errorf("failed to load trace record: %w", err)
	}
	return doc.record(), nil
}

// Clear removes every record in the collection.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear trace records: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
