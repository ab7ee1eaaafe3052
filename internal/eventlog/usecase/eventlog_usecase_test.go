package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shakamirtskhulava/eventlog/internal/database"
	"github.com/shakamirtskhulava/eventlog/internal/eventlog/domain"

	apperrors "github.com/shakamirtskhulava/eventlog/internal/errors"
)

// accountCreated is a test integration event.
type accountCreated struct {
	domain.BaseEvent
	AccountID string `json:"account_id"`
}

func (accountCreated) EventTypeName() string { return "AccountCreated" }

// testEntity is a test domain entity.
type testEntity struct {
	id string
}

func (e *testEntity) EntityID() string { return e.id }

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	// Execute the function to test the logic inside
	return fn(ctx)
}

// MockEventLogRepository is a mock implementation of EventLogRepository
type MockEventLogRepository struct {
	mock.Mock
}

func (m *MockEventLogRepository) SaveEvent(ctx context.Context, entry *domain.EventLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockEventLogRepository) RetrievePendingEventLogs(
	ctx context.Context,
	batchSize int,
) ([]*domain.EventLogEntry, error) {
	args := m.Called(ctx, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EventLogEntry), args.Error(1)
}

func (m *MockEventLogRepository) MarkEventAsInProgress(ctx context.Context, eventID uuid.UUID) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockEventLogRepository) MarkEventAsPublished(ctx context.Context, eventID uuid.UUID) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockEventLogRepository) MarkEventAsFailed(ctx context.Context, eventID uuid.UUID) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockEventLogRepository) FailedMessageChainExists(ctx context.Context, entityID string) (bool, error) {
	args := m.Called(ctx, entityID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventLogRepository) AddInFailedMessageChain(
	ctx context.Context,
	entityID string,
	message *domain.FailedMessage,
) error {
	args := m.Called(ctx, entityID, message)
	return args.Error(0)
}

func (m *MockEventLogRepository) GetChainsToRepublish(
	ctx context.Context,
	chainBatchSize int,
) ([]*domain.FailedMessageChain, error) {
	args := m.Called(ctx, chainBatchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FailedMessageChain), args.Error(1)
}

func (m *MockEventLogRepository) ListChains(
	ctx context.Context,
	limit int,
) ([]*domain.FailedMessageChain, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FailedMessageChain), args.Error(1)
}

func (m *MockEventLogRepository) SetChainRepublish(
	ctx context.Context,
	entityID string,
	shouldRepublish bool,
) error {
	args := m.Called(ctx, entityID, shouldRepublish)
	return args.Error(0)
}

func (m *MockEventLogRepository) SetMessageSkip(ctx context.Context, messageID uuid.UUID, shouldSkip bool) error {
	args := m.Called(ctx, messageID, shouldSkip)
	return args.Error(0)
}

// MockEntityStore is a mock implementation of EntityStore
type MockEntityStore struct {
	mock.Mock
}

func (m *MockEntityStore) Add(ctx context.Context, entity domain.Entity) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockEntityStore) Update(ctx context.Context, entity domain.Entity) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockEntityStore) Remove(ctx context.Context, entity domain.Entity) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func newTestRegistry(t *testing.T) *domain.TypeRegistry {
	t.Helper()
	registry := domain.NewTypeRegistry("billing")
	registry.Register("AccountCreated", func() domain.IntegrationEvent {
		return &accountCreated{}
	})
	return registry
}

func newTestService(
	txManager *MockTxManager,
	repo *MockEventLogRepository,
	entityStore *MockEntityStore,
	registry *domain.TypeRegistry,
) *IntegrationEventService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIntegrationEventService(
		txManager,
		database.RetryConfig{MaxRetries: 0},
		repo,
		entityStore,
		registry,
		logger,
	)
}

func TestIntegrationEventService_Add_Success(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockEventLogRepository{}
	entityStore := &MockEntityStore{}
	service := newTestService(txManager, repo, entityStore, newTestRegistry(t))

	entity := &testEntity{id: "account-1"}
	event := &accountCreated{BaseEvent: domain.NewBaseEvent(), AccountID: "account-1"}

	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	entityStore.On("Add", mock.Anything, entity).Return(nil)
	repo.On("SaveEvent", mock.Anything, mock.MatchedBy(func(entry *domain.EventLogEntry) bool {
		return entry.EventID == event.EventID() &&
			entry.EventTypeName == "billing.AccountCreated" &&
			entry.EventTypeShortName == "AccountCreated" &&
			entry.EntityID == "account-1" &&
			entry.State == domain.EventStateNotPublished
	})).Return(nil)

	err := service.Add(context.Background(), entity, event)
	assert.NoError(t, err)
	entityStore.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestIntegrationEventService_Add_EntityStoreFailure(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockEventLogRepository{}
	entityStore := &MockEntityStore{}
	service := newTestService(txManager, repo, entityStore, newTestRegistry(t))

	entity := &testEntity{id: "account-1"}
	event := &accountCreated{BaseEvent: domain.NewBaseEvent(), AccountID: "account-1"}
	storeErr := errors.New("constraint violated")

	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	entityStore.On("Add", mock.Anything, entity).Return(storeErr)

	err := service.Add(context.Background(), entity, event)
	assert.ErrorIs(t, err, storeErr)
	repo.AssertNotCalled(t, "SaveEvent", mock.Anything, mock.Anything)
}

func TestIntegrationEventService_Add_NilEntity(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockEventLogRepository{}
	entityStore := &MockEntityStore{}
	service := newTestService(txManager, repo, entityStore, newTestRegistry(t))

	event := &accountCreated{BaseEvent: domain.NewBaseEvent()}

	err := service.Add(context.Background(), nil, event)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	txManager.AssertNotCalled(t, "WithTx", mock.Anything, mock.Anything)
}

func TestIntegrationEventService_Update_Success(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockEventLogRepository{}
	entityStore := &MockEntityStore{}
	service := newTestService(txManager, repo, entityStore, newTestRegistry(t))

	entity := &testEntity{id: "account-2"}
	event := &accountCreated{BaseEvent: domain.NewBaseEvent(), AccountID: "account-2"}

	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	entityStore.On("Update", mock.Anything, entity).Return(nil)
	repo.On("SaveEvent", mock.Anything, mock.Anything).Return(nil)

	err := service.Update(context.Background(), entity, event)
	assert.NoError(t, err)
	entityStore.AssertExpectations(t)
}

func TestIntegrationEventService_Remove_SaveEventFailureRollsBack(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockEventLogRepository{}
	entityStore := &MockEntityStore{}
	service := newTestService(txManager, repo, entityStore, newTestRegistry(t))

	entity := &testEntity{id: "account-3"}
	event := &accountCreated{BaseEvent: domain.NewBaseEvent(), AccountID: "account-3"}
	saveErr := apperrors.ErrConflict

	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	entityStore.On("Remove", mock.Anything, entity).Return(nil)
	repo.On("SaveEvent", mock.Anything, mock.Anything).Return(saveErr)

	err := service.Remove(context.Background(), entity, event)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestIntegrationEventService_GetPendingEvents(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockEventLogRepository{}
	entityStore := &MockEntityStore{}
	registry := newTestRegistry(t)
	service := newTestService(txManager, repo, entityStore, registry)

	event := &accountCreated{BaseEvent: domain.NewBaseEvent(), AccountID: "account-1"}
	entry, err := domain.NewEventLogEntry(event, "billing", "account-1")
	require.NoError(t, err)

	repo.On("RetrievePendingEventLogs", mock.Anything, 50).
		Return([]*domain.EventLogEntry{entry}, nil)

	events, err := service.GetPendingEvents(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.EventID(), events[0].EventID)
	assert.Equal(t, "AccountCreated", events[0].EventTypeShortName)
	assert.Equal(t, "account-1", events[0].EntityID)
	assert.Nil(t, events[0].FailedMessageID)

	decoded, ok := events[0].Event.(*accountCreated)
	require.True(t, ok)
	assert.Equal(t, "account-1", decoded.AccountID)
}

func TestIntegrationEventService_GetPendingEvents_SkipsUndecodableEntries(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockEventLogRepository{}
	entityStore := &MockEntityStore{}
	service := newTestService(txManager, repo, entityStore, newTestRegistry(t))

	event := &accountCreated{BaseEvent: domain.NewBaseEvent(), AccountID: "account-1"}
	good, err := domain.NewEventLogEntry(event, "billing", "account-1")
	require.NoError(t, err)

	unknown := &domain.EventLogEntry{
		EventID:            uuid.Must(uuid.NewV7()),
		EventTypeName:      "billing.AccountClosed",
		EventTypeShortName: "AccountClosed",
		EntityID:           "account-9",
		Content:            `{"id":"x"}`,
		State:              domain.EventStateNotPublished,
	}

	repo.On("RetrievePendingEventLogs", mock.Anything, 10).
		Return([]*domain.EventLogEntry{unknown, good}, nil)

	events, err := service.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.EventID(), events[0].EventID)
}

func TestIntegrationEventService_RetrieveFailedEventsToRepublish(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockEventLogRepository{}
	entityStore := &MockEntityStore{}
	service := newTestService(txManager, repo, entityStore, newTestRegistry(t))

	event := &accountCreated{BaseEvent: domain.NewBaseEvent(), AccountID: "account-1"}
	entry, err := domain.NewEventLogEntry(event, "billing", "account-1")
	require.NoError(t, err)

	message := domain.NewFailedMessage(
		"AccountCreated", entry.Content, "broker unavailable", "",
		uuid.NullUUID{UUID: event.EventID(), Valid: true},
	)
	chain := &domain.FailedMessageChain{
		ID:              uuid.Must(uuid.NewV7()),
		EntityID:        "account-1",
		ShouldRepublish: true,
		FailedMessages:  []*domain.FailedMessage{message},
	}

	repo.On("GetChainsToRepublish", mock.Anything, 5).
		Return([]*domain.FailedMessageChain{chain}, nil)

	events, err := service.RetrieveFailedEventsToRepublish(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "account-1", events[0].EntityID)
	require.NotNil(t, events[0].FailedMessageID)
	assert.Equal(t, message.ID, *events[0].FailedMessageID)
	assert.True(t, events[0].FromChain())
}

func TestIntegrationEventService_RetrieveFailedEventsToRepublish_RepositoryFailure(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockEventLogRepository{}
	entityStore := &MockEntityStore{}
	service := newTestService(txManager, repo, entityStore, newTestRegistry(t))

	repoErr := errors.New("connection reset")
	repo.On("GetChainsToRepublish", mock.Anything, 5).Return(nil, repoErr)

	events, err := service.RetrieveFailedEventsToRepublish(context.Background(), 5)
	assert.Nil(t, events)
	assert.ErrorIs(t, err, repoErr)
}
