// Package mongo implements store.Store on MongoDB. Atomic stream and event
// writes use multi-document transactions, which require a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/id"
	vestingstore "github.com/xraph/vesting/store"
	"github.com/xraph/vesting/stream"
)

// Collection name constants.
const (
	colStreams  = "vesting_streams"
	colEvents   = "vesting_stream_events"
	colBalances = "vesting_custody_balances"
)

// compile-time interface check
var _ vestingstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	db *mongo.Database
}

// New creates a new MongoDB store on db.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect opens a client for uri and returns a store on database name.
func Connect(ctx context.Context, uri, name string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("vesting/mongo: connect: %w", err)
	}
	s := New(client.Database(name))
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates indexes for all vesting collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("vesting/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("vesting/mongo: ping: %w: %w", vesting.ErrStoreNotReady, err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.db.Client().Disconnect(context.Background())
}

// ==================== Stream Store ====================

func (s *Store) CreateStream(ctx context.Context, st *stream.Stream, events ...*event.Event) error {
	m := toStreamModel(st)
	return s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.db.Collection(colStreams).InsertOne(ctx, m); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return vesting.ErrAlreadyExists
			}
			return fmt.Errorf("vesting/mongo: create stream: %w", err)
		}
		return s.insertEvents(ctx, events)
	})
}

func (s *Store) GetStream(ctx context.Context, streamID id.StreamID) (*stream.Stream, error) {
	var m streamModel
	err := s.db.Collection(colStreams).FindOne(ctx, bson.M{"_id": streamID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, vesting.ErrStreamNotFound
		}
		return nil, fmt.Errorf("vesting/mongo: get stream: %w", err)
	}
	return fromStreamModel(&m)
}

func (s *Store) UpdateStream(ctx context.Context, st *stream.Stream, events ...*event.Event) error {
	m := toStreamModel(st)
	return s.inTx(ctx, func(ctx context.Context) error {
		res, err := s.db.Collection(colStreams).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
		if err != nil {
			return fmt.Errorf("vesting/mongo: update stream: %w", err)
		}
		if res.MatchedCount == 0 {
			return vesting.ErrStreamNotFound
		}
		return s.insertEvents(ctx, events)
	})
}

func (s *Store) ListStreams(ctx context.Context, opts stream.ListOpts) ([]*stream.Stream, error) {
	filter := bson.M{}
	if opts.Sender != "" {
		filter["sender"] = string(opts.Sender)
	}
	if opts.Recipient != "" {
		filter["recipient"] = string(opts.Recipient)
	}
	if opts.Asset != "" {
		filter["asset"] = opts.Asset
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Policy != "" {
		filter["policy"] = string(opts.Policy)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	return s.findStreams(ctx, filter, findOpts)
}

func (s *Store) ListDueWithdrawals(ctx context.Context, now int64, limit int) ([]*stream.Stream, error) {
	filter := bson.M{
		"automatic_withdrawal": true,
		"withdrawal_frequency": bson.M{"$gt": 0},
		"$or": bson.A{
			bson.M{"status": string(stream.StatusStreaming)},
			bson.M{"status": string(stream.StatusScheduled), "start_time": bson.M{"$lte": now}},
		},
		"$expr": bson.M{"$gte": bson.A{
			bson.M{"$subtract": bson.A{now, "$last_mutation_time"}},
			"$withdrawal_frequency",
		}},
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "last_mutation_time", Value: 1},
		{Key: "_id", Value: 1},
	})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	return s.findStreams(ctx, filter, findOpts)
}

func (s *Store) findStreams(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*stream.Stream, error) {
	cur, err := s.db.Collection(colStreams).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("vesting/mongo: list streams: %w", err)
	}
	var models []streamModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("vesting/mongo: list streams: %w", err)
	}

	result := make([]*stream.Stream, 0, len(models))
	for i := range models {
		st, err := fromStreamModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("vesting/mongo: %w", err)
		}
		result = append(result, st)
	}
	return result, nil
}

// ==================== Event Store ====================

func (s *Store) ListEvents(ctx context.Context, streamID id.StreamID, opts event.ListOpts) ([]*event.Event, error) {
	filter := bson.M{"stream_id": streamID.String()}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}

	// Event IDs are time-ordered, which breaks ties between events written
	// at the same ledger time.
	findOpts := options.Find().SetSort(bson.D{
		{Key: "timestamp", Value: 1},
		{Key: "_id", Value: 1},
	})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colEvents).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("vesting/mongo: list events: %w", err)
	}
	var models []eventModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("vesting/mongo: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("vesting/mongo: %w", err)
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) insertEvents(ctx context.Context, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]any, 0, len(events))
	for _, e := range events {
		docs = append(docs, toEventModel(e))
	}
	if _, err := s.db.Collection(colEvents).InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return vesting.ErrAlreadyExists
		}
		return fmt.Errorf("vesting/mongo: insert events: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("vesting/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// migrationIndexes returns the indexes that need to be created for the
// vesting collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colStreams: {
			{Keys: bson.D{{Key: "sender", Value: 1}}},
			{Keys: bson.D{{Key: "recipient", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "automatic_withdrawal", Value: 1}, {Key: "last_mutation_time", Value: 1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "stream_id", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "type", Value: 1}}},
		},
		colBalances: {
			{
				Keys:    bson.D{{Key: "account", Value: 1}, {Key: "asset", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
