package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"evstage/internal/model"
)

// Redis stores each event as JSON in one hash keyed by id, plus one set of
// ids per source so ReplaceSource does not scan the hash.
//
//	<prefix>events           HASH  id -> event JSON
//	<prefix>source:<source>  SET   ids
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// maxTxRetries bounds optimistic-lock retries in ReplaceSource.
const maxTxRetries = 5

// OpenRedis parses url, connects and pings before returning.
func OpenRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{rdb: client, prefix: prefix}
}

func (r *Redis) eventsKey() string { return r.prefix + "events" }

func (r *Redis) sourceKey(source string) string { return r.prefix + "source:" + source }

func (r *Redis) List(ctx context.Context) ([]model.Event, error) {
	vals, err := r.rdb.HVals(ctx, r.eventsKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(vals))
	for _, v := range vals {
		var ev model.Event
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			return nil, fmt.Errorf("decoding stored event: %w", err)
		}
		out = append(out, ev)
	}
	sortEvents(out)
	return out, nil
}

func (r *Redis) Get(ctx context.Context, id string) (model.Event, error) {
	v, err := r.rdb.HGet(ctx, r.eventsKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	var ev model.Event
	if err := json.Unmarshal([]byte(v), &ev); err != nil {
		return model.Event{}, fmt.Errorf("decoding stored event: %w", err)
	}
	return ev, nil
}

func (r *Redis) Put(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	prev, err := r.Get(ctx, ev.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	existed := err == nil

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if existed && prev.Source != ev.Source {
			pipe.SRem(ctx, r.sourceKey(prev.Source), ev.ID)
		}
		pipe.HSet(ctx, r.eventsKey(), ev.ID, data)
		pipe.SAdd(ctx, r.sourceKey(ev.Source), ev.ID)
		return nil
	})
	return err
}

func (r *Redis) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	vals, err := r.rdb.HMGet(ctx, r.eventsKey(), ids...).Result()
	if err != nil {
		return 0, err
	}

	var found []model.Event
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			return 0, fmt.Errorf("decoding stored event: %w", err)
		}
		found = append(found, ev)
	}
	if len(found) == 0 {
		return 0, nil
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ev := range found {
			pipe.HDel(ctx, r.eventsKey(), ev.ID)
			pipe.SRem(ctx, r.sourceKey(ev.Source), ev.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(found), nil
}

// ReplaceSource watches the source set so a concurrent import of the same
// source forces a retry instead of leaving a mix of both batches.
func (r *Redis) ReplaceSource(ctx context.Context, source string, events []model.Event) (int, error) {
	events = stamped(source, events)
	payload := make(map[string]any, len(events))
	ids := make([]any, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return 0, err
		}
		payload[ev.ID] = data
		ids = append(ids, ev.ID)
	}

	setKey := r.sourceKey(source)
	var removed int
	txf := func(tx *redis.Tx) error {
		old, err := tx.SMembers(ctx, setKey).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(old) > 0 {
				pipe.HDel(ctx, r.eventsKey(), old...)
			}
			pipe.Del(ctx, setKey)
			if len(events) > 0 {
				pipe.HSet(ctx, r.eventsKey(), payload)
				pipe.SAdd(ctx, setKey, ids...)
			}
			return nil
		})
		if err == nil {
			removed = len(old)
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, setKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return removed, err
	}
	return 0, fmt.Errorf("replacing source %q: too much contention", source)
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
