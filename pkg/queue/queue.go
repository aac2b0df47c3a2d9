// Package queue implements the upload-to-worker job queue: publishing one
// message per accepted upload and consuming it at-least-once on the worker
// side. It is built on redis/go-redis's list primitives (LMOVE into an
// in-flight list) so a crashed worker's claimed-but-unacked message is
// recoverable by a reclaim sweep rather than lost, mirroring the
// lease/reclaim pattern already used for processing_jobs rows.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// streamKey and inflightKey are the Redis list keys backing the queue.
const (
	streamKey   = "clarity:jobs:pending"
	inflightKey = "clarity:jobs:inflight"
)

// Message is the job-message wire shape published to the worker tier.
type Message struct {
	ProcessingID string         `json:"processing_id"`
	UserID       string         `json:"user_id"`
	RawBlobPath  string         `json:"raw_blob_path"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	EnqueuedAt   time.Time      `json:"enqueued_at"`
}

// Queue publishes and consumes Messages over a Redis list pair.
type Queue struct {
	client *redis.Client
	log    logr.Logger
}

// New builds a Queue over an already-connected redis client.
func New(client *redis.Client, log logr.Logger) *Queue {
	return &Queue{client: client, log: log}
}

// Publish appends msg to the pending list. Redis LPUSH/LMOVE give
// at-least-once delivery: a message is only removed from inflightKey once
// Ack succeeds.
func (q *Queue) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, streamKey, payload).Err()
}

// claimPollInterval paces Claim's polling loop (see Claim).
const claimPollInterval = 20 * time.Millisecond

// Claim waits up to timeout for one message, atomically moving it from the
// pending list to the in-flight list so a crash between Claim and Ack
// leaves it recoverable by Reclaim rather than dropped. It polls LMOVE
// rather than using a blocking BLMOVE so the same code path works against
// both a live Redis server and miniredis in tests.
func (q *Queue) Claim(ctx context.Context, timeout time.Duration) (*Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		payload, err := q.client.LMove(ctx, streamKey, inflightKey, "right", "left").Result()
		if err == nil {
			var msg Message
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				return nil, err
			}
			return &msg, nil
		}
		if err != redis.Nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(claimPollInterval):
		}
	}
}

// Ack removes a successfully processed message from the in-flight list.
func (q *Queue) Ack(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LRem(ctx, inflightKey, 1, payload).Err()
}

// Reclaim moves every message still sitting in the in-flight list back onto
// the pending list. A worker process calls this on startup (and a
// supervisor calls it periodically) to recover messages claimed by a
// worker that died before acking — at-least-once delivery, same shape as
// the processing_jobs lease/reclaim sweep in pkg/store/structured.
func (q *Queue) Reclaim(ctx context.Context) (int, error) {
	n := 0
	for {
		payload, err := q.client.RPopLPush(ctx, inflightKey, streamKey).Result()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		_ = payload
		n++
	}
}

// Depth reports the number of messages currently pending.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, streamKey).Result()
}
