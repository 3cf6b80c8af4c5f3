// Package hotcache is the Redis-backed gateway the read API and the
// orchestrator share: one key holds the latest published snapshot,
// swapped in atomically at the end of every successful run, plus a
// distributed lock that keeps two overlapping scheduler fires from
// running the pipeline at the same time.
package hotcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evaonline/matopiba-pipeline/internal/snapshot"
)

// ErrNotFound is returned when no snapshot has been published yet.
var ErrNotFound = errors.New("hotcache: no snapshot available")

const (
	latestKey  = "matopiba:forecasts:latest"
	metaKey    = "matopiba:metadata:latest"
	runLockKey = "matopiba:lock:run"

	payloadField = "payload"

	// snapshotTTL matches the schedule interval: a run that publishes
	// on time always refreshes both keys before the old TTL expires.
	snapshotTTL = 6 * time.Hour

	// runLockTTL bounds how long a crashed orchestrator run can hold
	// the lock before the next scheduled fire is allowed to retry.
	runLockTTL = 10 * time.Minute
)

// Gateway wraps a redis.Client with the snapshot read/write and
// run-lock operations the rest of the pipeline needs: typed methods
// over a single backing client, no exported fields, the same shape as
// this module's in-memory store gateway before it moved to Redis. The
// Redis call patterns themselves (HSet/Expire/SetNX) follow a
// worker-status gateway pattern adapted from a distributed task queue.
type Gateway struct {
	client *redis.Client
}

// NewGateway wraps an already-configured redis.Client.
func NewGateway(client *redis.Client) *Gateway {
	return &Gateway{client: client}
}

// PutSnapshot best-effort deletes any legacy per-run keys left over
// from older code paths, then encodes and atomically publishes a new
// snapshot, replacing whatever was previously cached. Callers that have
// already probed Status and found the cache under strain should use
// PutSnapshotOnly instead, to skip the extra Scan traffic.
func (g *Gateway) PutSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	g.cleanupLegacyKeys(ctx)
	return g.PutSnapshotOnly(ctx, snap)
}

// PutSnapshotOnly does the same atomic publish as PutSnapshot but
// skips the legacy-key cleanup pass.
func (g *Gateway) PutSnapshotOnly(ctx context.Context, snap snapshot.Snapshot) error {
	payload, err := EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("hotcache: encode snapshot: %w", err)
	}

	pipe := g.client.TxPipeline()
	pipe.HSet(ctx, latestKey, map[string]interface{}{
		payloadField: payload,
	})
	pipe.Expire(ctx, latestKey, snapshotTTL)
	pipe.HSet(ctx, metaKey, metadataFields(snap.Metadata))
	pipe.Expire(ctx, metaKey, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hotcache: publish snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the currently published snapshot, or
// ErrNotFound if the cache is empty or has expired.
func (g *Gateway) GetSnapshot(ctx context.Context) (snapshot.Snapshot, error) {
	payload, err := g.client.HGet(ctx, latestKey, payloadField).Bytes()
	if errors.Is(err, redis.Nil) {
		return snapshot.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("hotcache: read snapshot: %w", err)
	}

	snap, err := DecodeSnapshot(payload)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("hotcache: decode snapshot: %w", err)
	}
	return snap, nil
}

// GetMetadata returns just the run metadata, without paying to decode
// the full forecast payload — used by the lightweight /metadata route.
func (g *Gateway) GetMetadata(ctx context.Context) (snapshot.RunMetadata, error) {
	fields, err := g.client.HGetAll(ctx, metaKey).Result()
	if err != nil {
		return snapshot.RunMetadata{}, fmt.Errorf("hotcache: read metadata: %w", err)
	}
	if len(fields) == 0 {
		return snapshot.RunMetadata{}, ErrNotFound
	}
	return parseMetadataFields(fields)
}

// Status reports whether the backing Redis connection is reachable.
func (g *Gateway) Status(ctx context.Context) error {
	if err := g.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("hotcache: ping: %w", err)
	}
	return nil
}

// AcquireRunLock attempts to take the distributed run lock, returning
// false (not an error) if another run already holds it. The lock
// self-expires after runLockTTL so a crashed holder cannot wedge the
// schedule forever.
func (g *Gateway) AcquireRunLock(ctx context.Context, owner string) (bool, error) {
	ok, err := g.client.SetNX(ctx, runLockKey, owner, runLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("hotcache: acquire run lock: %w", err)
	}
	return ok, nil
}

// ReleaseRunLock drops the run lock. Safe to call even if the lock was
// never held or has already expired.
func (g *Gateway) ReleaseRunLock(ctx context.Context) error {
	if err := g.client.Del(ctx, runLockKey).Err(); err != nil {
		return fmt.Errorf("hotcache: release run lock: %w", err)
	}
	return nil
}

// cleanupLegacyKeys best-effort removes any keys matching the older
// per-run naming scheme (matopiba:forecasts:<run-label> /
// matopiba:metadata:<run-label>) that predate the single
// always-overwritten :latest key. Scan errors are swallowed: this is
// housekeeping, not a correctness requirement, and must never fail a
// publish.
func (g *Gateway) cleanupLegacyKeys(ctx context.Context) {
	for _, pattern := range []string{"matopiba:forecasts:*", "matopiba:metadata:*"} {
		iter := g.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			if key == latestKey || key == metaKey {
				continue
			}
			g.client.Del(ctx, key)
		}
	}
}

func metadataFields(m snapshot.RunMetadata) map[string]interface{} {
	return map[string]interface{}{
		"run_label":          string(m.RunLabel),
		"updated_at_utc":     m.UpdatedAtUTC.UTC().Format(time.RFC3339),
		"next_update_utc":    m.NextUpdateUTC.UTC().Format(time.RFC3339),
		"n_cities_attempted": m.NCitiesAttempted,
		"n_cities_succeeded": m.NCitiesSucceeded,
		"success_rate":       strconv.FormatFloat(m.SuccessRate, 'f', -1, 64),
		"version":            m.Version,
	}
}

func parseMetadataFields(fields map[string]string) (snapshot.RunMetadata, error) {
	var m snapshot.RunMetadata
	m.RunLabel = snapshot.RunLabel(fields["run_label"])
	m.Version = fields["version"]

	var err error
	if m.UpdatedAtUTC, err = time.Parse(time.RFC3339, fields["updated_at_utc"]); err != nil {
		return snapshot.RunMetadata{}, fmt.Errorf("hotcache: parse updated_at_utc: %w", err)
	}
	if m.NextUpdateUTC, err = time.Parse(time.RFC3339, fields["next_update_utc"]); err != nil {
		return snapshot.RunMetadata{}, fmt.Errorf("hotcache: parse next_update_utc: %w", err)
	}
	if m.NCitiesAttempted, err = strconv.Atoi(fields["n_cities_attempted"]); err != nil {
		return snapshot.RunMetadata{}, fmt.Errorf("hotcache: parse n_cities_attempted: %w", err)
	}
	if m.NCitiesSucceeded, err = strconv.Atoi(fields["n_cities_succeeded"]); err != nil {
		return snapshot.RunMetadata{}, fmt.Errorf("hotcache: parse n_cities_succeeded: %w", err)
	}
	if m.SuccessRate, err = strconv.ParseFloat(fields["success_rate"], 64); err != nil {
		return snapshot.RunMetadata{}, fmt.Errorf("hotcache: parse success_rate: %w", err)
	}
	return m, nil
}
