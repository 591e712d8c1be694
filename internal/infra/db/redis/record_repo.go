package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/bryanwahyu/scribe-notes/internal/domain/notes"
)

const keyPrefix = "scribe"

// RecordRepository stores each session as three keys: a position counter,
// a sorted set of ids scored by position and a hash of JSON records.
// Every write refreshes the session TTL so idle sessions expire.
type RecordRepository struct {
	rdb goredis.UniversalClient
	ttl time.Duration
}

func NewRecordRepository(rdb goredis.UniversalClient, ttl time.Duration) *RecordRepository {
	return &RecordRepository{rdb: rdb, ttl: ttl}
}

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx2).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func seqKey(session string) string   { return fmt.Sprintf("%s:%s:seq", keyPrefix, session) }
func orderKey(session string) string { return fmt.Sprintf("%s:%s:order", keyPrefix, session) }
func dataKey(session string) string  { return fmt.Sprintf("%s:%s:records", keyPrefix, session) }

func (r *RecordRepository) Append(ctx context.Context, rec *domain.Record) error {
	pos, err := r.rdb.Incr(ctx, seqKey(rec.SessionID)).Result()
	if err != nil {
		return err
	}
	rec.Position = pos
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, dataKey(rec.SessionID), string(rec.ID), payload)
		pipe.ZAdd(ctx, orderKey(rec.SessionID), goredis.Z{Score: float64(pos), Member: string(rec.ID)})
		r.touch(ctx, pipe, rec.SessionID)
		return nil
	})
	return err
}

func (r *RecordRepository) Get(ctx context.Context, session string, id domain.RecordID) (*domain.Record, error) {
	raw, err := r.rdb.HGet(ctx, dataKey(session), string(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (r *RecordRepository) List(ctx context.Context, session string) ([]*domain.Record, error) {
	ids, err := r.rdb.ZRange(ctx, orderKey(session), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.Record{}, nil
	}
	vals, err := r.rdb.HMGet(ctx, dataKey(session), ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Record, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// id left in the order set without data; skip it
			continue
		}
		rec, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RecordRepository) UpdateResult(ctx context.Context, session string, id domain.RecordID, res domain.Result) error {
	return r.update(ctx, session, id, func(rec *domain.Record) {
		rec.Notes = res.Notes
		rec.Status = res.Status
		rec.Failure = res.Failure
	})
}

func (r *RecordRepository) UpdateStatus(ctx context.Context, session string, id domain.RecordID, status domain.Status) error {
	return r.update(ctx, session, id, func(rec *domain.Record) {
		rec.Status = status
	})
}

// setIfExists writes the record only while its hash field is still there, so
// an update racing a Delete cannot bring the record back.
var setIfExists = goredis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// update is a read-modify-write; each record is only written by the goroutine
// processing it, deletes are the only concurrent writers.
func (r *RecordRepository) update(ctx context.Context, session string, id domain.RecordID, fn func(*domain.Record)) error {
	rec, err := r.Get(ctx, session, id)
	if err != nil {
		return err
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	n, err := setIfExists.Run(ctx, r.rdb, []string{dataKey(session)}, string(id), payload).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	_, err = r.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		r.touch(ctx, pipe, session)
		return nil
	})
	return err
}

func (r *RecordRepository) Delete(ctx context.Context, session string, id domain.RecordID) error {
	var removed *goredis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		removed = pipe.HDel(ctx, dataKey(session), string(id))
		pipe.ZRem(ctx, orderKey(session), string(id))
		return nil
	})
	if err != nil {
		return err
	}
	if removed.Val() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RecordRepository) Clear(ctx context.Context, session string) error {
	return r.rdb.Del(ctx, seqKey(session), orderKey(session), dataKey(session)).Err()
}

func (r *RecordRepository) touch(ctx context.Context, pipe goredis.Pipeliner, session string) {
	if r.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, seqKey(session), r.ttl)
	pipe.Expire(ctx, orderKey(session), r.ttl)
	pipe.Expire(ctx, dataKey(session), r.ttl)
}

func decode(raw string) (*domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}
