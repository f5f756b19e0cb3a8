package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vipul43/tanksync-worker/internal/logging"
	"github.com/vipul43/tanksync-worker/internal/models"
	"github.com/vipul43/tanksync-worker/internal/smartfill"
	"github.com/vipul43/tanksync-worker/internal/transform"
)

// TankLevelFetcher interface for dependency injection
type TankLevelFetcher interface {
	FetchTankLevels(ctx context.Context, apiReference, apiSecret string) (*smartfill.FetchResult, error)
}

// CustomerStore reads syncable customers and stamps their sync bookkeeping
type CustomerStore interface {
	ListSyncable(ctx context.Context, ids []string) ([]models.Customer, error)
	MarkSyncSuccess(ctx context.Context, customerID string, at time.Time) error
	MarkSyncFailure(ctx context.Context, customerID string, at time.Time, syncErr string) error
}

// TankDataStore replaces a customer's locations, tanks and readings
type TankDataStore interface {
	ReplaceCustomerData(ctx context.Context, customerID string, locations []models.Location, tanks []models.Tank, readings []models.Reading) error
}

// CustomerSyncer runs one customer's fetch, transform and refresh cycle.
type CustomerSyncer struct {
	fetcher     TankLevelFetcher
	customers   CustomerStore
	data        TankDataStore
	transformer *transform.Transformer
	locks       *keyedMutex
	now         func() time.Time
	log         zerolog.Logger
}

func NewCustomerSyncer(fetcher TankLevelFetcher, customers CustomerStore, data TankDataStore, transformer *transform.Transformer) *CustomerSyncer {
	return &CustomerSyncer{
		fetcher:     fetcher,
		customers:   customers,
		data:        data,
		transformer: transformer,
		locks:       newKeyedMutex(),
		now:         time.Now,
		log:         logging.WithComponent("syncer"),
	}
}

// SyncCustomer never returns an error: every failure is folded into the result.
// Only one cycle per customer runs at a time within the process.
func (s *CustomerSyncer) SyncCustomer(ctx context.Context, customer models.Customer) models.SyncResult {
	start := s.now()
	result := models.SyncResult{
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
	}
	log := s.log.With().Str("customer_id", customer.ID).Str("customer_name", customer.Name).Logger()

	unlock, err := s.locks.Lock(ctx, customer.ID)
	if err != nil {
		result.Status = models.CustomerSyncSkipped
		result.Error = "sync aborted while waiting for in-flight cycle: " + err.Error()
		result.DurationMs = s.now().Sub(start).Milliseconds()
		log.Warn().Err(err).Msg("Skipped customer sync")
		return result
	}
	defer unlock()

	// Bookkeeping must land even if the run is aborted mid-cycle.
	stampCtx := context.WithoutCancel(ctx)

	log.Info().Msg("Fetching tank levels")
	fetched, err := s.fetcher.FetchTankLevels(ctx, customer.APIReference, customer.APISecret)
	if err != nil {
		return s.fail(stampCtx, log, result, start, err)
	}

	syncTime := s.now().UTC()
	data := s.transformer.Transform(fetched.Payload, customer.ID, customer.Name, syncTime)

	if data.Empty() {
		log.Info().Msg("No locations or tanks returned")
		return s.succeed(stampCtx, log, result, start, syncTime)
	}

	if err := s.data.ReplaceCustomerData(ctx, customer.ID, data.Locations, data.Tanks, data.Readings); err != nil {
		return s.fail(stampCtx, log, result, start, err)
	}

	result.Locations = len(data.Locations)
	result.Tanks = len(data.Tanks)
	result.Readings = len(data.Readings)
	return s.succeed(stampCtx, log, result, start, syncTime)
}

func (s *CustomerSyncer) succeed(ctx context.Context, log zerolog.Logger, result models.SyncResult, start, at time.Time) models.SyncResult {
	if err := s.customers.MarkSyncSuccess(ctx, result.CustomerID, at); err != nil {
		log.Error().Err(err).Msg("Failed to stamp sync success")
	}
	result.Status = models.CustomerSyncSuccess
	result.DurationMs = s.now().Sub(start).Milliseconds()
	log.Info().
		Int("locations", result.Locations).
		Int("tanks", result.Tanks).
		Int("readings", result.Readings).
		Int64("duration_ms", result.DurationMs).
		Msg("Customer sync completed")
	return result
}

func (s *CustomerSyncer) fail(ctx context.Context, log zerolog.Logger, result models.SyncResult, start time.Time, cause error) models.SyncResult {
	msg := cause.Error()
	if err := s.customers.MarkSyncFailure(ctx, result.CustomerID, s.now().UTC(), msg); err != nil {
		log.Error().Err(err).Msg("Failed to stamp sync failure")
	}
	result.Status = models.CustomerSyncFailed
	result.Error = msg
	result.DurationMs = s.now().Sub(start).Milliseconds()
	log.Error().Err(cause).Int64("duration_ms", result.DurationMs).Msg("Customer sync failed")
	return result
}

// keyedMutex hands out one lock per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
