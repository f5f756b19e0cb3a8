package service

import (
	"context"
	"sync"
	"time"

	"github.com/vipul43/tanksync-worker/internal/models"
	"github.com/vipul43/tanksync-worker/internal/smartfill"
)

type mockFetcher struct {
	fetchFunc func(ctx context.Context, apiReference, apiSecret string) (*smartfill.FetchResult, error)
}

func (m *mockFetcher) FetchTankLevels(ctx context.Context, apiReference, apiSecret string) (*smartfill.FetchResult, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, apiReference, apiSecret)
	}
	return &smartfill.FetchResult{Payload: &smartfill.Payload{}, Attempts: 1}, nil
}

type stampCall struct {
	CustomerID string
	Err        string
	CtxErr     error
}

type mockCustomerStore struct {
	listSyncableFunc func(ctx context.Context, ids []string) ([]models.Customer, error)

	mu        sync.Mutex
	successes []stampCall
	failures  []stampCall
}

func (m *mockCustomerStore) ListSyncable(ctx context.Context, ids []string) ([]models.Customer, error) {
	if m.listSyncableFunc != nil {
		return m.listSyncableFunc(ctx, ids)
	}
	return nil, nil
}

func (m *mockCustomerStore) MarkSyncSuccess(ctx context.Context, customerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes = append(m.successes, stampCall{CustomerID: customerID, CtxErr: ctx.Err()})
	return nil
}

func (m *mockCustomerStore) MarkSyncFailure(ctx context.Context, customerID string, at time.Time, syncErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, stampCall{CustomerID: customerID, Err: syncErr, CtxErr: ctx.Err()})
	return nil
}

func (m *mockCustomerStore) failureCount(customerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.failures {
		if c.CustomerID == customerID {
			n++
		}
	}
	return n
}

func (m *mockCustomerStore) successCount(customerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.successes {
		if c.CustomerID == customerID {
			n++
		}
	}
	return n
}

type replaceCall struct {
	CustomerID string
	Locations  []models.Location
	Tanks      []models.Tank
	Readings   []models.Reading
}

type mockTankDataStore struct {
	replaceFunc func(ctx context.Context, customerID string) error

	mu    sync.Mutex
	calls []replaceCall
}

func (m *mockTankDataStore) ReplaceCustomerData(ctx context.Context, customerID string, locations []models.Location, tanks []models.Tank, readings []models.Reading) error {
	m.mu.Lock()
	m.calls = append(m.calls, replaceCall{CustomerID: customerID, Locations: locations, Tanks: tanks, Readings: readings})
	m.mu.Unlock()
	if m.replaceFunc != nil {
		return m.replaceFunc(ctx, customerID)
	}
	return nil
}

func (m *mockTankDataStore) callsFor(customerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.CustomerID == customerID {
			n++
		}
	}
	return n
}

type mockSyncLogStore struct {
	createFunc   func(ctx context.Context, entry *models.SyncLog) error
	completeFunc func(ctx context.Context, entry *models.SyncLog) error

	created   []models.SyncLog
	completed []models.SyncLog
}

func (m *mockSyncLogStore) Create(ctx context.Context, entry *models.SyncLog) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, entry); err != nil {
			return err
		}
	}
	m.created = append(m.created, *entry)
	return nil
}

func (m *mockSyncLogStore) Complete(ctx context.Context, entry *models.SyncLog) error {
	if m.completeFunc != nil {
		if err := m.completeFunc(ctx, entry); err != nil {
			return err
		}
	}
	m.completed = append(m.completed, *entry)
	return nil
}

type mockProcessor struct {
	syncFunc func(ctx context.Context, customer models.Customer) models.SyncResult
}

func (m *mockProcessor) SyncCustomer(ctx context.Context, customer models.Customer) models.SyncResult {
	return m.syncFunc(ctx, customer)
}

func scenarioPayload() *smartfill.Payload {
	return &smartfill.Payload{
		Columns: []string{"Unit Number", "Description", "Volume", "Volume Percent", "Capacity", "Tank SFL", "Status", "Last Updated", "Timezone", "Tank Number"},
		Values: [][]interface{}{
			{"U1", "Diesel", 150.0, 15.0, 1000.0, 950.0, "OK", "2025-01-15 10:00:00", "Australia/Perth", "1"},
			{"U1", "Unleaded", 550.0, 55.0, 1000.0, 950.0, "OK", "2025-01-15 10:05:00", "Australia/Perth", "2"},
		},
	}
}
