package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type memoryIntegrationStore struct {
	mu       sync.Mutex
	nextID   int
	items    map[string]Integration
	now      func() time.Time
	blockDel bool
}

func newMemoryIntegrationStore(now func() time.Time) *memoryIntegrationStore {
	return &memoryIntegrationStore{items: map[string]Integration{}, now: now}
}

func (s *memoryIntegrationStore) Upsert(_ context.Context, in UpsertIntegrationInput) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, existing := range s.items {
		if existing.UserID == in.UserID && existing.ProviderID == in.ProviderID {
			existing.Status = in.Status
			existing.IsActive = in.Status == IntegrationStatusActive
			existing.AccessToken = in.AccessToken
			existing.RefreshToken = in.RefreshToken
			existing.ExpiresAt = in.ExpiresAt
			existing.Scope = in.Scope
			existing.Configuration = in.Configuration
			existing.Fields = in.Fields
			existing.LastUsedAt = in.LastUsedAt
			existing.UpdatedAt = now
			s.items[id] = existing
			return existing, nil
		}
	}
	s.nextID++
	item := Integration{
		ID:            fmt.Sprintf("int_%d", s.nextID),
		UserID:        in.UserID,
		ProviderID:    in.ProviderID,
		Status:        in.Status,
		IsActive:      in.Status == IntegrationStatusActive,
		AccessToken:   in.AccessToken,
		RefreshToken:  in.RefreshToken,
		ExpiresAt:     in.ExpiresAt,
		Scope:         in.Scope,
		Configuration: in.Configuration,
		Fields:        in.Fields,
		LastUsedAt:    in.LastUsedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.items[item.ID] = item
	return item, nil
}

func (s *memoryIntegrationStore) EnsurePending(ctx context.Context, userID string, providerID string) (Integration, error) {
	if existing, err := s.FindByUserProvider(ctx, userID, providerID); err == nil {
		return existing, nil
	}
	return s.Upsert(ctx, UpsertIntegrationInput{UserID: userID, ProviderID: providerID, Status: IntegrationStatusPending})
}

func (s *memoryIntegrationStore) Get(_ context.Context, id string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	return item, nil
}

func (s *memoryIntegrationStore) FindOwned(ctx context.Context, userID string, id string) (Integration, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return Integration{}, err
	}
	if item.UserID != userID {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	return item, nil
}

func (s *memoryIntegrationStore) FindByUserProvider(_ context.Context, userID string, providerID string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.UserID == userID && item.ProviderID == providerID {
			return item, nil
		}
	}
	return Integration{}, fmt.Errorf("%w: %s/%s", ErrIntegrationNotFound, userID, providerID)
}

func (s *memoryIntegrationStore) ListByUser(_ context.Context, userID string) ([]Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Integration{}
	for _, item := range s.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryIntegrationStore) UpdateStatus(_ context.Context, id string, status IntegrationStatus) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	item.Status = status
	item.IsActive = status == IntegrationStatusActive
	item.UpdatedAt = s.now()
	s.items[id] = item
	return item, nil
}

func (s *memoryIntegrationStore) UpdateConfiguration(_ context.Context, id string, cfg ProviderConfiguration) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Integration{}, fmt.Errorf("%w: %s", ErrIntegrationNotFound, id)
	}
	item.Configuration = cfg
	s.items[id] = item
	return item, nil
}

func (s *memoryIntegrationStore) Delete(_ context.Context, userID string, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blockDel {
		return 0, nil
	}
	item, ok := s.items[id]
	if !ok || item.UserID != userID {
		return 0, nil
	}
	delete(s.items, id)
	return 1, nil
}

type fakeExchanger struct {
	mu            sync.Mutex
	token         TokenEnvelope
	exchangeErr   error
	refreshToken  TokenEnvelope
	refreshErr    error
	exchanges     []CodeExchangeRequest
	refreshes     []string
	authorization []AuthorizationRequest
}

func (f *fakeExchanger) BeginAuthorization(cfg ProviderConfig, req AuthorizationRequest) (Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorization = append(f.authorization, req)
	verifier := ""
	if cfg.UsePKCE {
		verifier = "verifier-" + req.State[:8]
	}
	return Authorization{
		URL:          cfg.AuthorizationURL + "?client_id=" + cfg.ClientID + "&state=" + req.State,
		CodeVerifier: verifier,
	}, nil
}

func (f *fakeExchanger) Exchange(_ context.Context, _ ProviderConfig, req CodeExchangeRequest) (TokenEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, req)
	if f.exchangeErr != nil {
		return TokenEnvelope{}, f.exchangeErr
	}
	return f.token, nil
}

func (f *fakeExchanger) Refresh(_ context.Context, _ ProviderConfig, refreshToken string) (TokenEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, refreshToken)
	if f.refreshErr != nil {
		return TokenEnvelope{}, f.refreshErr
	}
	return f.refreshToken, nil
}

type memoryAutomationStore struct {
	items map[string]Automation
}

func (s memoryAutomationStore) FindOwned(_ context.Context, userID string, automationID string) (Automation, error) {
	item, ok := s.items[automationID]
	if !ok || item.UserID != userID {
		return Automation{}, fmt.Errorf("%w: %s", ErrAutomationNotFound, automationID)
	}
	return item, nil
}

type memoryRequestStore struct {
	mu    sync.Mutex
	items map[string]AsyncRequest
	reads int
}

func newMemoryRequestStore() *memoryRequestStore {
	return &memoryRequestStore{items: map[string]AsyncRequest{}}
}

func (s *memoryRequestStore) Create(_ context.Context, in CreateRequestInput) (AsyncRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[in.RequestID]; exists {
		return AsyncRequest{}, fmt.Errorf("%w: %s", ErrRequestExists, in.RequestID)
	}
	item := AsyncRequest{
		ID:             "row_" + in.RequestID,
		RequestID:      in.RequestID,
		UserID:         in.UserID,
		RequestType:    in.RequestType,
		Status:         in.InitialStatus(),
		Metadata:       copyAnyMap(in.Metadata),
		NetworkSuccess: in.NetworkSuccess,
	}
	s.items[in.RequestID] = item
	return item, nil
}

func (s *memoryRequestStore) Get(_ context.Context, requestID string) (AsyncRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	item, ok := s.items[requestID]
	if !ok {
		return AsyncRequest{}, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	return item, nil
}

func (s *memoryRequestStore) UpdateStatus(_ context.Context, requestID string, status string, metadata map[string]any) (AsyncRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[requestID]
	if !ok {
		return AsyncRequest{}, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	item.Status = status
	if item.Metadata == nil {
		item.Metadata = map[string]any{}
	}
	for key, value := range metadata {
		item.Metadata[key] = value
	}
	s.items[requestID] = item
	return item, nil
}

func (s *memoryRequestStore) UpdateNetworkSuccess(_ context.Context, requestID string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	item.NetworkSuccess = &success
	s.items[requestID] = item
	return nil
}

func (s *memoryRequestStore) UpdateResponseFetched(_ context.Context, requestID string, fetched bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	item.ResponseFetched = &fetched
	s.items[requestID] = item
	return nil
}

type memoryCancellationStore struct {
	mu      sync.Mutex
	pending map[string]bool
}

func newMemoryCancellationStore() *memoryCancellationStore {
	return &memoryCancellationStore{pending: map[string]bool{}}
}

func (s *memoryCancellationStore) Create(_ context.Context, userID string, requestID string, metadata map[string]any) (CancellationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[requestID] = true
	return CancellationRequest{
		ID:        "cancel_" + requestID,
		UserID:    userID,
		RequestID: requestID,
		Status:    CancellationStatusPending,
		Metadata:  copyAnyMap(metadata),
	}, nil
}

func (s *memoryCancellationStore) HasPending(_ context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[requestID], nil
}

func (s *memoryCancellationStore) MarkProcessed(_ context.Context, requestID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending[requestID] {
		return 0, nil
	}
	s.pending[requestID] = false
	return 1, nil
}

type fakeExecutionClient struct {
	mu          sync.Mutex
	poll        PollOutcome
	pollErr     error
	process     ProcessOutcome
	processErr  error
	execute     ExecutionOutcome
	executeErr  error
	pollCalls   []string
	processArgs [][2]string
	executions  []ManualExecution
}

func (f *fakeExecutionClient) PollAutomation(_ context.Context, automationID string) (PollOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls = append(f.pollCalls, automationID)
	return f.poll, f.pollErr
}

func (f *fakeExecutionClient) ProcessEvents(_ context.Context, userID string, serviceName string) (ProcessOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processArgs = append(f.processArgs, [2]string{userID, serviceName})
	return f.process, f.processErr
}

func (f *fakeExecutionClient) ExecuteAutomation(_ context.Context, req ManualExecution) (ExecutionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, req)
	return f.execute, f.executeErr
}

type recordingFollowUps struct {
	mu       sync.Mutex
	requests []FollowUpRequest
	err      error
}

func (r *recordingFollowUps) Schedule(_ context.Context, req FollowUpRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.err
}

// fakeClock advances only when a test sleeps through it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type testHarness struct {
	svc           *Service
	clock         *fakeClock
	integrations  *memoryIntegrationStore
	attempts      *MemoryPendingConnectStore
	exchanger     *fakeExchanger
	execution     *fakeExecutionClient
	requests      *memoryRequestStore
	cancellations *memoryCancellationStore
	followUps     *recordingFollowUps
}

func newTestHarness(t testing.TB, automations map[string]Automation, opts ...Option) *testHarness {
	t.Helper()
	clock := newFakeClock()
	h := &testHarness{
		clock:         clock,
		integrations:  newMemoryIntegrationStore(clock.Now),
		attempts:      NewMemoryPendingConnectStore(),
		exchanger:     &fakeExchanger{},
		execution:     &fakeExecutionClient{},
		requests:      newMemoryRequestStore(),
		cancellations: newMemoryCancellationStore(),
		followUps:     &recordingFollowUps{},
	}
	registry, err := NewProviderRegistry(
		ProviderConfig{
			Key:              "notion",
			ClientID:         "notion-client",
			ClientSecret:     "notion-secret",
			AuthorizationURL: "https://notion.example/auth",
			TokenURL:         "https://notion.example/token",
			UseBasicAuth:     true,
		},
		ProviderConfig{
			Key:              "google_calendar",
			ClientID:         "google-client",
			ClientSecret:     "google-secret",
			AuthorizationURL: "https://google.example/auth",
			TokenURL:         "https://google.example/token",
			Scopes:           []string{"calendar.events", "userinfo.email"},
			UsePKCE:          true,
		},
		ProviderConfig{
			Key:              "oura",
			ClientID:         "oura-client",
			ClientSecret:     "oura-secret",
			AuthorizationURL: "https://oura.example/auth",
			TokenURL:         "https://oura.example/token",
			FollowUp:         ProviderFollowUp{BackfillDays: 7},
		},
		ProviderConfig{
			Key:              "todoist",
			AuthorizationURL: "https://todoist.example/auth",
			TokenURL:         "https://todoist.example/token",
		},
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if automations == nil {
		automations = map[string]Automation{}
	}
	base := []Option{
		WithRegistry(registry),
		WithTokenExchanger(h.exchanger),
		WithIntegrationStore(h.integrations),
		WithPendingConnectStore(h.attempts),
		WithAutomationStore(memoryAutomationStore{items: automations}),
		WithRequestStore(h.requests),
		WithCancellationStore(h.cancellations),
		WithExecutionClient(h.execution),
		WithFollowUpScheduler(h.followUps),
		WithClock(clock.Now),
		WithSleeper(clock.Sleep),
		WithLogger(stubLogger{}),
	}
	svc, err := NewService(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}
