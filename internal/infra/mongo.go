package infra

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoOptions tunes the client behind the mongo user and code stores.
type MongoOptions struct {
	MaxPoolSize    uint64
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
}

// NewMongoClient connects to MongoDB and verifies the primary is reachable.
func NewMongoClient(ctx context.Context, uri string, opts MongoOptions) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}

	client, err := mongo.Connect(ctx, mongoClientOptions(uri, opts))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	ping := func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	closeFn := func() { _ = client.Disconnect(context.Background()) }
	if err := verify(ctx, "mongo", opts.PingTimeout, ping, closeFn); err != nil {
		return nil, err
	}
	return client, nil
}

func mongoClientOptions(uri string, opts MongoOptions) *options.ClientOptions {
	co := options.Client().ApplyURI(uri)
	if opts.MaxPoolSize > 0 {
		co.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.ConnectTimeout > 0 {
		co.SetConnectTimeout(opts.ConnectTimeout)
	}
	return co
}
