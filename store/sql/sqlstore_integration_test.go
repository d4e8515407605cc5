package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	integrationmigrations "github.com/goliatone/go-integrations/migrations"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-integrations-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"integrations", "oauth_connect_attempts", "automations", "async_requests", "cancellation_requests"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestIntegrationStore_UpsertKeepsOneRowPerUserProvider(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.IntegrationStore()

	expiresAt := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	first, err := store.Upsert(ctx, core.UpsertIntegrationInput{
		UserID:       "usr_1",
		ProviderID:   "notion",
		Status:       core.IntegrationStatusActive,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    &expiresAt,
		Scope:        "read",
		Configuration: core.NotionConfiguration{
			Scopes: []string{"read"},
			Owner:  map[string]any{"type": "user"},
		},
		Fields: core.ProviderFields{BotID: "bot_1", WorkspaceName: "Acme"},
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == "" || !first.IsActive {
		t.Fatalf("expected active integration with id, got %#v", first)
	}

	second, err := store.Upsert(ctx, core.UpsertIntegrationInput{
		UserID:      "usr_1",
		ProviderID:  "notion",
		Status:      core.IntegrationStatusActive,
		AccessToken: "access-2",
		Configuration: core.NotionConfiguration{
			Scopes: []string{"read", "write"},
		},
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected upsert to reuse row %q, got %q", first.ID, second.ID)
	}
	if second.AccessToken != "access-2" {
		t.Fatalf("expected access token to be replaced, got %q", second.AccessToken)
	}

	listed, err := store.ListByUser(ctx, "usr_1")
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one integration for user, got %d", len(listed))
	}
	notion, ok := listed[0].Configuration.(core.NotionConfiguration)
	if !ok {
		t.Fatalf("expected notion configuration, got %T", listed[0].Configuration)
	}
	if len(notion.Scopes) != 2 {
		t.Fatalf("expected updated scopes, got %v", notion.Scopes)
	}
}

func TestIntegrationStore_ConcurrentWritesKeepOneRow(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newFileSQLiteClient(t, 4)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IntegrationStore()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		failures  []error
		upserted  int
		resultIDs = map[string]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				integration core.Integration
				err         error
			)
			if i%2 == 0 {
				integration, err = store.Upsert(ctx, core.UpsertIntegrationInput{
					UserID:      "usr_race",
					ProviderID:  "notion",
					Status:      core.IntegrationStatusActive,
					AccessToken: fmt.Sprintf("access-%d", i),
				})
			} else {
				integration, err = store.EnsurePending(ctx, "usr_race", "notion")
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			resultIDs[integration.ID] = true
			if i%2 == 0 {
				upserted++
			}
		}(i)
	}
	wg.Wait()

	for _, err := range failures {
		if mapped := core.MapError(err); mapped == nil || mapped.TextCode == "" {
			t.Fatalf("expected mapped error, got %v", err)
		}
	}
	if upserted == 0 {
		t.Fatalf("expected at least one upsert to succeed, failures: %v", failures)
	}
	if len(resultIDs) != 1 {
		t.Fatalf("expected every caller to see the same row, got %v", resultIDs)
	}

	var count int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM integrations WHERE user_id = ? AND provider_id = ?",
		"usr_race", "notion",
	).Scan(ctx, &count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row, got %d", count)
	}
	stored, err := store.FindByUserProvider(ctx, "usr_race", "notion")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != core.IntegrationStatusActive || stored.AccessToken == "" {
		t.Fatalf("expected pending writes not to clobber an active row, got %#v", stored)
	}
}

func TestIntegrationStore_OwnershipStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.IntegrationStore()

	pending, err := store.EnsurePending(ctx, "usr_2", "fitbit")
	if err != nil {
		t.Fatalf("ensure pending: %v", err)
	}
	if pending.Status != core.IntegrationStatusPending || pending.IsActive {
		t.Fatalf("expected pending inactive integration, got %#v", pending)
	}
	again, err := store.EnsurePending(ctx, "usr_2", "fitbit")
	if err != nil {
		t.Fatalf("ensure pending again: %v", err)
	}
	if again.ID != pending.ID {
		t.Fatalf("expected existing row to be reused")
	}

	if _, err := store.FindOwned(ctx, "someone_else", pending.ID); !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}

	updated, err := store.UpdateStatus(ctx, pending.ID, core.IntegrationStatusInactive)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != core.IntegrationStatusInactive || updated.IsActive {
		t.Fatalf("unexpected status after update: %#v", updated)
	}
	if _, err := store.UpdateStatus(ctx, pending.ID, core.IntegrationStatus("bogus")); !errors.Is(err, core.ErrInvalidStatusTransition) {
		t.Fatalf("expected invalid status error, got %v", err)
	}

	configured, err := store.UpdateConfiguration(ctx, pending.ID, core.FitbitConfiguration{
		Scopes:               []string{"activity"},
		WebhookSubscriptions: []string{"activities"},
	})
	if err != nil {
		t.Fatalf("update configuration: %v", err)
	}
	fitbit, ok := configured.Configuration.(core.FitbitConfiguration)
	if !ok || len(fitbit.WebhookSubscriptions) != 1 {
		t.Fatalf("expected fitbit configuration, got %#v", configured.Configuration)
	}

	removed, err := store.Delete(ctx, "someone_else", pending.ID)
	if err != nil {
		t.Fatalf("delete foreign: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected foreign delete to remove nothing, got %d", removed)
	}
	removed, err = store.Delete(ctx, "usr_2", pending.ID)
	if err != nil {
		t.Fatalf("delete owned: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one row removed, got %d", removed)
	}
	if _, err := store.Get(ctx, pending.ID); !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestPendingConnectStore_ClaimOnceAndResolve(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.PendingConnectStore()

	now := time.Now().UTC()
	attempt := core.ConnectAttempt{
		ID:           "att_1",
		State:        "state-1",
		UserID:       "usr_3",
		ProviderID:   "google_calendar",
		RedirectURI:  "https://app.example.com/callback",
		CodeVerifier: "verifier",
		Status:       core.ConnectAttemptPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(15 * time.Minute),
	}
	if err := store.Save(ctx, attempt); err != nil {
		t.Fatalf("save attempt: %v", err)
	}
	if err := store.Save(ctx, attempt); !errors.Is(err, core.ErrOAuthStateInvalid) {
		t.Fatalf("expected duplicate state rejection, got %v", err)
	}

	claimed, err := store.Claim(ctx, "state-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != core.ConnectAttemptExchanging || claimed.CodeVerifier != "verifier" {
		t.Fatalf("unexpected claimed attempt: %#v", claimed)
	}
	if _, err := store.Claim(ctx, "state-1"); !errors.Is(err, core.ErrOAuthStateInvalid) {
		t.Fatalf("expected second claim to fail, got %v", err)
	}

	resolved, err := store.Resolve(ctx, "state-1", core.ResolveAttemptInput{
		Status:        core.ConnectAttemptCompleted,
		IntegrationID: "int_1",
		At:            now,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != core.ConnectAttemptCompleted || resolved.IntegrationID != "int_1" || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved attempt: %#v", resolved)
	}
	if _, err := store.Resolve(ctx, "state-1", core.ResolveAttemptInput{Status: core.ConnectAttemptFailed, At: now}); !errors.Is(err, core.ErrOAuthStateInvalid) {
		t.Fatalf("expected terminal attempt to stay resolved, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrOAuthStateInvalid) {
		t.Fatalf("expected unknown state error, got %v", err)
	}
}

func TestPendingConnectStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.PendingConnectStore()

	now := time.Now().UTC()
	for i, expiresAt := range []time.Time{now.Add(-time.Minute), now.Add(time.Hour)} {
		if err := store.Save(ctx, core.ConnectAttempt{
			ID:         fmt.Sprintf("att_%d", i),
			State:      fmt.Sprintf("state-%d", i),
			UserID:     "usr_4",
			ProviderID: "slack",
			Status:     core.ConnectAttemptPending,
			CreatedAt:  now.Add(-time.Hour),
			ExpiresAt:  expiresAt,
		}); err != nil {
			t.Fatalf("save attempt %d: %v", i, err)
		}
	}
	purged, err := store.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged attempt, got %d", purged)
	}
	if _, err := store.Get(ctx, "state-1"); err != nil {
		t.Fatalf("expected live attempt to survive purge: %v", err)
	}
}

func TestAutomationStore_FindOwned(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)

	created, err := factory.Automations().Create(ctx, core.Automation{
		UserID:        "usr_5",
		Name:          "Sync inbox",
		TriggerType:   core.TriggerTypePolling,
		TriggerConfig: map[string]any{"service": "Gmail"},
		Active:        true,
	})
	if err != nil {
		t.Fatalf("create automation: %v", err)
	}

	found, err := factory.AutomationStore().FindOwned(ctx, "usr_5", created.ID)
	if err != nil {
		t.Fatalf("find owned automation: %v", err)
	}
	if !found.IsPolling() || found.TriggerConfig["service"] != "Gmail" || !found.Active {
		t.Fatalf("unexpected automation: %#v", found)
	}
	if _, err := factory.AutomationStore().FindOwned(ctx, "usr_other", created.ID); !errors.Is(err, core.ErrAutomationNotFound) {
		t.Fatalf("expected automation not found for other user, got %v", err)
	}
}

func TestRequestStore_LifecycleAndFlags(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.RequestStore()

	created, err := store.Create(ctx, core.CreateRequestInput{
		RequestID:   "req_1",
		UserID:      "usr_6",
		RequestType: "chat",
		Metadata:    map[string]any{"model": "fast"},
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if created.Status != core.RequestStatusPending {
		t.Fatalf("expected pending request, got %q", created.Status)
	}
	if _, err := store.Create(ctx, core.CreateRequestInput{RequestID: "req_1", UserID: "usr_6"}); !errors.Is(err, core.ErrRequestExists) {
		t.Fatalf("expected duplicate request error, got %v", err)
	}

	updated, err := store.UpdateStatus(ctx, "req_1", core.RequestStatusProcessing, map[string]any{"progress": "half"})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != core.RequestStatusProcessing {
		t.Fatalf("expected processing status, got %q", updated.Status)
	}
	if updated.Metadata["model"] != "fast" || updated.Metadata["progress"] != "half" {
		t.Fatalf("expected merged metadata, got %#v", updated.Metadata)
	}

	if err := store.UpdateNetworkSuccess(ctx, "req_1", true); err != nil {
		t.Fatalf("update network success: %v", err)
	}
	if err := store.UpdateResponseFetched(ctx, "req_1", false); err != nil {
		t.Fatalf("update response fetched: %v", err)
	}
	fetched, err := store.Get(ctx, "req_1")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if fetched.NetworkSuccess == nil || !*fetched.NetworkSuccess {
		t.Fatalf("expected network success flag, got %#v", fetched.NetworkSuccess)
	}
	if fetched.ResponseFetched == nil || *fetched.ResponseFetched {
		t.Fatalf("expected response fetched=false, got %#v", fetched.ResponseFetched)
	}

	if err := store.UpdateNetworkSuccess(ctx, "missing", true); !errors.Is(err, core.ErrRequestNotFound) {
		t.Fatalf("expected request not found, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrRequestNotFound) {
		t.Fatalf("expected request not found, got %v", err)
	}
}

func TestRequestStore_CreateWithStatusAndNetworkFlag(t *testing.T) {
	ctx := context.Background()
	store := newFactory(t).RequestStore()

	success := false
	if _, err := store.Create(ctx, core.CreateRequestInput{
		RequestID:      "req_seeded",
		UserID:         "usr_6",
		RequestType:    "chat",
		Status:         core.RequestStatusProcessing,
		NetworkSuccess: &success,
	}); err != nil {
		t.Fatalf("create request: %v", err)
	}
	fetched, err := store.Get(ctx, "req_seeded")
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if fetched.Status != core.RequestStatusProcessing {
		t.Fatalf("expected processing status, got %q", fetched.Status)
	}
	if fetched.NetworkSuccess == nil || *fetched.NetworkSuccess {
		t.Fatalf("expected network success=false, got %#v", fetched.NetworkSuccess)
	}
}

func TestCancellationStore_PendingAndProcessed(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.CancellationStore()

	pending, err := store.HasPending(ctx, "req_7")
	if err != nil {
		t.Fatalf("has pending: %v", err)
	}
	if pending {
		t.Fatalf("expected no pending cancellation")
	}

	if _, err := store.Create(ctx, "usr_7", "req_7", map[string]any{"reason": "user"}); err != nil {
		t.Fatalf("create cancellation: %v", err)
	}
	if _, err := store.Create(ctx, "usr_7", "req_7", nil); err != nil {
		t.Fatalf("create second cancellation: %v", err)
	}
	pending, err = store.HasPending(ctx, "req_7")
	if err != nil {
		t.Fatalf("has pending: %v", err)
	}
	if !pending {
		t.Fatalf("expected pending cancellation")
	}

	processed, err := store.MarkProcessed(ctx, "req_7")
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if processed != 2 {
		t.Fatalf("expected two processed cancellations, got %d", processed)
	}
	pending, err = store.HasPending(ctx, "req_7")
	if err != nil {
		t.Fatalf("has pending: %v", err)
	}
	if pending {
		t.Fatalf("expected cancellations to be processed")
	}

	listed, err := factory.CancellationStore().(*sqlstore.CancellationStore).ListByRequest(ctx, "req_7")
	if err != nil {
		t.Fatalf("list cancellations: %v", err)
	}
	for _, cancellation := range listed {
		if cancellation.Status != core.CancellationStatusProcessed || cancellation.ProcessedAt == nil {
			t.Fatalf("expected processed cancellation, got %#v", cancellation)
		}
	}
}

func TestCachedRequestStore_EvictsOnWrite(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithRequestCache(cacheService))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.RequestStore()
	if _, ok := store.(*sqlstore.CachedRequestStore); !ok {
		t.Fatalf("expected cached request store, got %T", store)
	}

	if _, err := store.Create(ctx, core.CreateRequestInput{RequestID: "req cached", UserID: "usr_8"}); err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := store.Get(ctx, "req cached"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	// A write that bypasses the cache stays invisible until the entry is evicted.
	if _, err := client.DB().NewRaw(
		"UPDATE async_requests SET status = ? WHERE request_id = ?",
		core.RequestStatusFailed, "req cached",
	).Exec(ctx); err != nil {
		t.Fatalf("raw update: %v", err)
	}
	cached, err := store.Get(ctx, "req cached")
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if cached.Status != core.RequestStatusPending {
		t.Fatalf("expected cached pending status, got %q", cached.Status)
	}

	if _, err := store.UpdateStatus(ctx, "req cached", core.RequestStatusCompleted, nil); err != nil {
		t.Fatalf("update status: %v", err)
	}
	fresh, err := store.Get(ctx, "req cached")
	if err != nil {
		t.Fatalf("fresh get: %v", err)
	}
	if fresh.Status != core.RequestStatusCompleted {
		t.Fatalf("expected eviction to expose completed status, got %q", fresh.Status)
	}

	key, err := sqlstore.AsyncRequestCacheKey("req cached")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-integrations::async_request::v1::req%20cached" {
		t.Fatalf("unexpected cache key %q", key)
	}
}

func TestRepositoryFactory_RejectsUnsupportedClient(t *testing.T) {
	if _, err := sqlstore.NewRepositoryFactory().BuildStores("not-a-db"); err == nil {
		t.Fatalf("expected unsupported client error")
	}
	if _, err := sqlstore.NewRepositoryFactory().BuildStores(nil); err == nil {
		t.Fatalf("expected missing client error")
	}
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()
	dsn := fmt.Sprintf(
		"file:integrations-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	return openSQLiteClient(t, dsn, 1)
}

// newFileSQLiteClient opens a WAL database on disk so several connections
// can contend for the same rows.
func newFileSQLiteClient(t *testing.T, maxConns int) (*persistence.Client, func()) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "integrations.db") +
		"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	return openSQLiteClient(t, dsn, maxConns)
}

func openSQLiteClient(t *testing.T, dsn string, maxConns int) (*persistence.Client, func()) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = integrationmigrations.Register(ctx, func(_ context.Context, source integrationmigrations.Source) error {
		client.RegisterSQLMigrations(source.FS)
		return nil
	}, integrationmigrations.DialectSQLite)
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
