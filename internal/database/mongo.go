package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoConnectTimeout = 10 * time.Second

// NewMongoClient connects and pings the primary. appName shows up in the
// server's connection metadata.
func NewMongoClient(ctx context.Context, uri, appName string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	target := redactURI(uri)
	opts := options.Client().ApplyURI(uri).SetAppName(appName).SetServerSelectionTimeout(mongoConnectTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		log.Error().Err(err).Str("uri", target).Msg("Failed to connect to MongoDB")
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		log.Error().Err(err).Str("uri", target).Msg("Failed to ping MongoDB")
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Str("uri", target).Str("app_name", appName).Msg("Successfully connected and pinged MongoDB")
	return client, nil
}

// redactURI drops the password so connection strings can be logged.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable uri>"
	}
	return u.Redacted()
}
