// Package cache provides a Redis read-through cache for reserved start
// times. Entries are advisory: a missing or stale entry only affects what
// the calendar shows, never what the ledger accepts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mystic "github.com/phbpx/mystic-services"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// generationTTL bounds how long a date's write counter outlives its last
// write.
const generationTTL = 24 * time.Hour

var errStale = errors.New("reserved times changed while loading")

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Config is the required properties to use Redis.
type Config struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// ReservationStore decorates a mystic.ReservationStore, caching reserved
// times per date. Every write bumps the date's generation and drops its
// entry; a fill started under an older generation is discarded.
type ReservationStore struct {
	mystic.ReservationStore
	rdb redis.UniversalClient
	ttl time.Duration
	log *otelzap.SugaredLogger
}

// New connects to Redis and wraps store with the cache.
func New(ctx context.Context, cfg Config, store mystic.ReservationStore, ttl time.Duration, log *otelzap.SugaredLogger) (*ReservationStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewReservationStore(store, rdb, ttl, log), nil
}

func NewReservationStore(store mystic.ReservationStore, rdb redis.UniversalClient, ttl time.Duration, log *otelzap.SugaredLogger) *ReservationStore {
	return &ReservationStore{
		ReservationStore: store,
		rdb:              rdb,
		ttl:              ttl,
		log:              log,
	}
}

// Close closes the connection to Redis.
func (s *ReservationStore) Close() error {
	return s.rdb.Close()
}

func key(date string) string {
	return "mystic:reserved:" + date
}

func generationKey(date string) string {
	return key(date) + ":gen"
}

func (s *ReservationStore) ReservedTimes(ctx context.Context, date string) ([]string, error) {
	raw, err := s.rdb.Get(ctx, key(date)).Bytes()
	switch {
	case err == nil:
		var times []string
		if err := json.Unmarshal(raw, &times); err == nil {
			return times, nil
		}
	case !errors.Is(err, redis.Nil):
		s.log.Ctx(ctx).Warnw("ReservedTimes", "date", date, "error", err.Error())
		return s.ReservationStore.ReservedTimes(ctx, date)
	}

	gen, err := s.generation(ctx, s.rdb, date)
	if err != nil {
		s.log.Ctx(ctx).Warnw("ReservedTimes", "date", date, "error", err.Error())
		return s.ReservationStore.ReservedTimes(ctx, date)
	}

	times, err := s.ReservationStore.ReservedTimes(ctx, date)
	if err != nil {
		return nil, err
	}

	if err := s.fill(ctx, date, gen, times); err != nil && !errors.Is(err, errStale) && !errors.Is(err, redis.TxFailedErr) {
		s.log.Ctx(ctx).Warnw("ReservedTimes", "date", date, "error", err.Error())
	}

	return times, nil
}

func (s *ReservationStore) generation(ctx context.Context, c getter, date string) (string, error) {
	gen, err := c.Get(ctx, generationKey(date)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return gen, err
}

// fill stores times for date unless a write moved the generation past gen.
func (s *ReservationStore) fill(ctx context.Context, date, gen string, times []string) error {
	raw, err := json.Marshal(times)
	if err != nil {
		return err
	}

	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.generation(ctx, tx, date)
		if err != nil {
			return err
		}
		if cur != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key(date), raw, s.ttl)
			return nil
		})
		return err
	}, generationKey(date))
}

func (s *ReservationStore) CreateReservation(ctx context.Context, r mystic.Reservation) error {
	err := s.ReservationStore.CreateReservation(ctx, r)
	if err == nil || errors.Is(err, mystic.ErrSlotConflict) {
		s.invalidate(ctx, r.Date)
	}
	return err
}

func (s *ReservationStore) invalidate(ctx context.Context, date string) {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey(date))
		p.Expire(ctx, generationKey(date), generationTTL)
		p.Del(ctx, key(date))
		return nil
	})
	if err != nil {
		s.log.Ctx(ctx).Warnw("invalidate", "date", date, "error", err.Error())
	}
}
