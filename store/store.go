// Package store is the MongoDB persistence layer for chat messages.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	messages *mongo.Collection
}

// Connect opens the MongoDB client, verifies connectivity and ensures
// the message indexes. Pool sizing matches the expected fanout of a
// single chat API instance.
func Connect(ctx context.Context, url, database string) (*Store, error) {
	opts := options.Client().
		ApplyURI(url).
		SetMaxPoolSize(50).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(45 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		db:       db,
		messages: db.Collection("messages"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	slog.Info("mongodb connected", "database", database)
	return s, nil
}

// ensureIndexes creates the compound indexes the message queries rely
// on. Creation is idempotent.
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "org_id", Value: 1},
				{Key: "conversation_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("org_conversation_created"),
		},
		{
			Keys: bson.D{
				{Key: "org_id", Value: 1},
				{Key: "sender_id", Value: 1},
			},
			Options: options.Index().SetName("org_sender"),
		},
		{
			Keys: bson.D{
				{Key: "conversation_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("conversation_created"),
		},
	}

	if _, err := s.messages.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

// Ping verifies the connection for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
