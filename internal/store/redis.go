package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"droneops-relay/internal/scan"
)

const redisKeyPrefix = "relay:apikey:"

// RedisCredentials is a CredentialStore keeping one hash per API key:
// relay:apikey:<key> -> {drone_id, active}.
type RedisCredentials struct {
	rdb *redis.Client
}

// NewRedisCredentials connects to addr and verifies the connection.
func NewRedisCredentials(ctx context.Context, addr, password string, db int) (*RedisCredentials, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisCredentials{rdb: rdb}, nil
}

// LookupKey implements CredentialStore.
func (r *RedisCredentials) LookupKey(ctx context.Context, key string) (scan.Credential, error) {
	fields, err := r.rdb.HGetAll(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return scan.Credential{}, err
	}
	if len(fields) == 0 {
		return scan.Credential{}, ErrNotFound
	}
	return scan.Credential{
		Key:     key,
		DroneID: fields["drone_id"],
		Active:  fields["active"] == "1",
	}, nil
}

// PutCredential implements CredentialWriter.
func (r *RedisCredentials) PutCredential(ctx context.Context, c scan.Credential) error {
	active := "0"
	if c.Active {
		active = "1"
	}
	return r.rdb.HSet(ctx, redisKeyPrefix+c.Key, "drone_id", c.DroneID, "active", active).Err()
}

// RevokeCredential implements CredentialWriter.
func (r *RedisCredentials) RevokeCredential(ctx context.Context, key string) error {
	n, err := r.rdb.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return r.rdb.HSet(ctx, redisKeyPrefix+key, "active", "0").Err()
}

// Close closes the client.
func (r *RedisCredentials) Close() error {
	return r.rdb.Close()
}
