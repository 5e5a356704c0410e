// Package mongodb implements the durable queue store using MongoDB.
//
// The PENDING to IN_FLIGHT claim runs as a single FindOneAndUpdate with a
// status precondition, so concurrent scheduler instances sharing the
// database never double-send an entry.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/queue"
)

// Store implements queue.Store using MongoDB
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	entries *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI      string
	Database string
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:  client,
		db:      db,
		entries: db.Collection("queue_entries"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextAttemptAt", Value: 1}}},
		{Keys: bson.D{{Key: "conversationId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating entry indexes: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

var activeStatuses = bson.A{queue.StatusPending, queue.StatusInFlight}

func (s *Store) Enqueue(ctx context.Context, e *queue.Entry) (bool, error) {
	_, err := s.entries.InsertOne(ctx, e)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("inserting entry: %w", err)
	}

	// An entry with this id exists. Re-activating a terminal entry is
	// allowed; an active one makes the enqueue a no-op.
	res, err := s.entries.ReplaceOne(ctx, bson.M{
		"_id":    e.ID,
		"status": bson.M{"$nin": activeStatuses},
	}, e)
	if err != nil {
		return false, fmt.Errorf("replacing terminal entry: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]*queue.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "nextAttemptAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.entries.Find(ctx, bson.M{
		"status":        queue.StatusPending,
		"nextAttemptAt": bson.M{"$lte": now},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("finding due entries: %w", err)
	}
	defer cursor.Close(ctx)

	var due []*queue.Entry
	if err := cursor.All(ctx, &due); err != nil {
		return nil, fmt.Errorf("decoding due entries: %w", err)
	}
	return due, nil
}

func (s *Store) MarkInFlight(ctx context.Context, id string) (*queue.Entry, bool, error) {
	var e queue.Entry
	err := s.entries.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": queue.StatusPending},
		bson.M{"$set": bson.M{"status": queue.StatusInFlight}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&e)
	if err == nil {
		return &e, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("claiming entry: %w", err)
	}

	// Not PENDING, or gone entirely.
	exists, err := s.exists(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, queue.ErrNotFound
	}
	return nil, false, nil
}

func (s *Store) Complete(ctx context.Context, id, externalID string) error {
	return s.applyOutcome(ctx, id, bson.M{
		"status":     queue.StatusSent,
		"externalId": externalID,
		"lastError":  "",
	})
}

func (s *Store) Reschedule(ctx context.Context, id string, attemptCount int, lastAttemptAt, nextAttemptAt time.Time, lastError string) error {
	return s.applyOutcome(ctx, id, bson.M{
		"status":        queue.StatusPending,
		"attemptCount":  attemptCount,
		"lastAttemptAt": lastAttemptAt,
		"nextAttemptAt": nextAttemptAt,
		"lastError":     lastError,
	})
}

func (s *Store) Abandon(ctx context.Context, id, reason string) error {
	return s.applyOutcome(ctx, id, bson.M{
		"status":    queue.StatusAbandoned,
		"lastError": reason,
	})
}

func (s *Store) Fail(ctx context.Context, id, reason string) error {
	return s.applyOutcome(ctx, id, bson.M{
		"status":    queue.StatusFailed,
		"lastError": reason,
	})
}

// applyOutcome updates an IN_FLIGHT entry. Outcomes for entries in any
// other state are stale and dropped.
func (s *Store) applyOutcome(ctx context.Context, id string, set bson.M) error {
	res, err := s.entries.UpdateOne(ctx,
		bson.M{"_id": id, "status": queue.StatusInFlight},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("updating entry: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	exists, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return queue.ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*queue.Entry, error) {
	var e queue.Entry
	err := s.entries.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, queue.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	return &e, nil
}

func (s *Store) FindByConversation(ctx context.Context, conversationID string) ([]*queue.Entry, error) {
	cursor, err := s.entries.Find(ctx,
		bson.M{"conversationId": conversationID},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("finding entries: %w", err)
	}
	defer cursor.Close(ctx)

	var found []*queue.Entry
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("decoding entries: %w", err)
	}
	return found, nil
}

func (s *Store) RecordReceipt(ctx context.Context, id string, accepted bool, externalID string) (bool, error) {
	set := bson.M{"status": queue.StatusSent}
	if externalID != "" {
		set["externalId"] = externalID
	}
	if !accepted {
		set = bson.M{
			"status":    queue.StatusAbandoned,
			"lastError": "delivery receipt reported error",
		}
	}

	res, err := s.entries.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": bson.A{queue.StatusSent, queue.StatusInFlight}}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("recording receipt: %w", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	exists, err := s.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, queue.ErrNotFound
	}
	return false, nil
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	count, err := s.entries.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("checking entry existence: %w", err)
	}
	return count > 0, nil
}
