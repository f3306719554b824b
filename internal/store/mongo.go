package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"droneops-relay/internal/scan"
)

// Mongo is a RecordStore and credential store on MongoDB. Drones and
// credentials are keyed by _id; scans are an append-only collection.
type Mongo struct {
	client *mongo.Client
	drones *mongo.Collection
	scans  *mongo.Collection
	keys   *mongo.Collection
}

// NewMongoConnection connects to uri and pings the primary.
func NewMongoConnection(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// NewMongo prepares collections and indexes in database.
func NewMongo(ctx context.Context, client *mongo.Client, database string) (*Mongo, error) {
	db := client.Database(database)
	m := &Mongo{
		client: client,
		drones: db.Collection("drones"),
		scans:  db.Collection("scans"),
		keys:   db.Collection("api_keys"),
	}
	idxCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := m.scans.Indexes().CreateOne(idxCtx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "drone_id", Value: 1},
			{Key: "received_at", Value: -1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create scans index: %w", err)
	}
	return m, nil
}

// UpsertDrone implements DroneStore.
func (m *Mongo) UpsertDrone(ctx context.Context, droneID string, seen time.Time) error {
	_, err := m.drones.UpdateOne(ctx,
		bson.M{"_id": droneID},
		bson.M{"$set": bson.M{"last_seen": seen.UTC(), "is_active": true}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// InsertScan implements ScanSink.
func (m *Mongo) InsertScan(ctx context.Context, rec scan.ScanRecord) error {
	_, err := m.scans.InsertOne(ctx, rec)
	return err
}

// ListDrones implements Querier.
func (m *Mongo) ListDrones(ctx context.Context) ([]scan.Drone, error) {
	cur, err := m.drones.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []scan.Drone
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentScans implements Querier.
func (m *Mongo) RecentScans(ctx context.Context, droneID string, limit int) ([]scan.ScanRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.scans.Find(ctx, bson.M{"drone_id": droneID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []scan.ScanRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LookupKey implements CredentialStore.
func (m *Mongo) LookupKey(ctx context.Context, key string) (scan.Credential, error) {
	var c scan.Credential
	err := m.keys.FindOne(ctx, bson.M{"_id": key}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return scan.Credential{}, ErrNotFound
	}
	return c, err
}

// PutCredential implements CredentialWriter.
func (m *Mongo) PutCredential(ctx context.Context, c scan.Credential) error {
	_, err := m.keys.ReplaceOne(ctx, bson.M{"_id": c.Key}, c, options.Replace().SetUpsert(true))
	return err
}

// RevokeCredential implements CredentialWriter.
func (m *Mongo) RevokeCredential(ctx context.Context, key string) error {
	res, err := m.keys.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
