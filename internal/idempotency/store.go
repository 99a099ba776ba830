// Package idempotency remembers responses to requests carrying an
// Idempotency-Key so that client retries do not open duplicate orders.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a key and its response are remembered.
	DefaultTTL = 24 * time.Hour

	keyPrefix = "checkout:idem:"
)

var (
	// ErrInProgress is returned while another request holds the key.
	ErrInProgress = errors.New("request with this idempotency key is in progress")
	// ErrKeyReused is returned when the key was first used with a different payload.
	ErrKeyReused = errors.New("idempotency key reused with a different request")
)

// Response is a stored outcome, replayed verbatim for retries.
type Response struct {
	Status int
	Body   []byte
}

type state string

const (
	statePending state = "pending"
	stateDone    state = "done"
)

type entry struct {
	State       state
	Fingerprint string
	Response    Response
}

// Store keeps idempotency records in Redis.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewStore returns a Store. A non-positive ttl selects DefaultTTL.
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Fingerprint hashes a request payload for reuse detection.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Reserve claims key within scope. It returns (nil, nil) when the caller now
// owns the key and must later call Complete or Release. When a response was
// already stored for the same fingerprint it is returned for replay.
func (s *Store) Reserve(ctx context.Context, scope, key, fingerprint string) (*Response, error) {
	k := redisKey(scope, key)
	pending := encodeEntry(entry{State: statePending, Fingerprint: fingerprint})

	// Two attempts cover a record expiring between SETNX and GET.
	for range 2 {
		ok, err := s.client.SetNX(ctx, k, pending, s.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "reserve key")
		}
		if ok {
			return nil, nil
		}

		raw, err := s.client.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "load key")
		}

		e, err := decodeEntry(raw)
		if err != nil {
			return nil, errors.Wrap(err, "decode entry")
		}
		if e.Fingerprint != fingerprint {
			return nil, ErrKeyReused
		}
		if e.State != stateDone {
			return nil, ErrInProgress
		}
		return &e.Response, nil
	}
	return nil, ErrInProgress
}

// Complete stores the response for a reserved key.
func (s *Store) Complete(ctx context.Context, scope, key, fingerprint string, resp Response) error {
	v := encodeEntry(entry{State: stateDone, Fingerprint: fingerprint, Response: resp})
	if err := s.client.Set(ctx, redisKey(scope, key), v, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "complete key")
	}
	return nil
}

// Release forgets a reserved key so the request may be retried.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return errors.Wrap(err, "release key")
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func redisKey(scope, key string) string {
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + scope + ":" + hex.EncodeToString(sum[:16])
}

func encodeEntry(e entry) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("state")
	enc.Str(string(e.State))
	enc.FieldStart("fp")
	enc.Str(e.Fingerprint)
	if e.State == stateDone {
		enc.FieldStart("status")
		enc.Int(e.Response.Status)
		enc.FieldStart("body")
		enc.Base64(e.Response.Body)
	}
	enc.ObjEnd()
	return enc.Bytes()
}

func decodeEntry(data []byte) (entry, error) {
	var e entry
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "state":
			v, err := d.Str()
			e.State = state(v)
			return err
		case "fp":
			v, err := d.Str()
			e.Fingerprint = v
			return err
		case "status":
			v, err := d.Int()
			e.Response.Status = v
			return err
		case "body":
			v, err := d.Base64()
			e.Response.Body = v
			return err
		default:
			return d.Skip()
		}
	})
	return e, err
}
