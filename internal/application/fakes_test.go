package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/aibroker/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLedger is an in-memory QuotaLedger with injectable failures.
type fakeLedger struct {
	mu         sync.Mutex
	counts     map[string]int
	limits     map[string]int
	reserveErr error
	statusErr  error
	rollbacks  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{counts: map[string]int{}, limits: map[string]int{}}
}

func (f *fakeLedger) key(userID, limitType string) string { return userID + "/" + limitType }

func (f *fakeLedger) Reserve(_ context.Context, userID, limitType string, limit int) (model.QuotaReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return model.QuotaReservation{}, f.reserveErr
	}

	k := f.key(userID, limitType)
	f.limits[k] = limit
	if f.counts[k] >= limit {
		return model.QuotaReservation{Allowed: false, Count: f.counts[k], Limit: limit}, nil
	}
	f.counts[k]++
	return model.QuotaReservation{Allowed: true, Count: f.counts[k], Limit: limit}, nil
}

func (f *fakeLedger) Rollback(_ context.Context, userID, limitType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(userID, limitType)
	if f.counts[k] > 0 {
		f.counts[k]--
	}
	f.rollbacks++
	return nil
}

func (f *fakeLedger) Status(_ context.Context, userID, limitType string, limit int) (model.QuotaStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return model.QuotaStatus{}, f.statusErr
	}

	count := f.counts[f.key(userID, limitType)]
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return model.QuotaStatus{
		LimitType: limitType,
		Used:      count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   model.NextResetTime(time.Now()),
	}, nil
}

func (f *fakeLedger) PurgeBefore(_ context.Context, _ string) (int64, error) { return 0, nil }

func (f *fakeLedger) count(userID, limitType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[f.key(userID, limitType)]
}

// fakeCredStore serves a single canned credential from AcquireForModel and
// records increments.
type fakeCredStore struct {
	mu         sync.Mutex
	cred       *model.Credential
	acquireErr error
	increments []string
	resetCount int64
}

func (f *fakeCredStore) Add(_ context.Context, _ model.Credential, _ string) (string, error) {
	return "", nil
}

func (f *fakeCredStore) Get(_ context.Context, _ string) (*model.Credential, error) {
	return f.cred, nil
}

func (f *fakeCredStore) ListByOwner(_ context.Context, _ string) ([]model.Credential, error) {
	return nil, nil
}

func (f *fakeCredStore) Update(_ context.Context, _, _ string, _ model.CredentialPatch) error {
	return nil
}

func (f *fakeCredStore) Delete(_ context.Context, _, _ string) error { return nil }

func (f *fakeCredStore) AcquireForModel(_ context.Context, _ string) (*model.Credential, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return f.cred, nil
}

func (f *fakeCredStore) IncrementUsage(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments = append(f.increments, id)
	return nil
}

func (f *fakeCredStore) ResetDailyUsage(_ context.Context) (int64, error) {
	return f.resetCount, nil
}

// fakeUsageLog records appended entries.
type fakeUsageLog struct {
	mu        sync.Mutex
	entries   []model.UsageLogEntry
	appendErr error
}

func (f *fakeUsageLog) Append(_ context.Context, entry model.UsageLogEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.entries = append(f.entries, entry)
	return "log-id", nil
}

func (f *fakeUsageLog) ListByCredential(_ context.Context, credentialID string, _ int) ([]model.UsageLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.UsageLogEntry
	for _, e := range f.entries {
		if e.CredentialID == credentialID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeProvider returns a canned result and remembers the last call.
type fakeProvider struct {
	mu          sync.Mutex
	result      model.ProviderResult
	err         error
	calls       int
	lastBaseURL string
	lastSecret  string
	lastReq     model.ProviderRequest
}

func (f *fakeProvider) ChatCompletion(_ context.Context, baseURL, secret string, req model.ProviderRequest) (model.ProviderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastBaseURL = baseURL
	f.lastSecret = secret
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeProvider) TestConnectivity(_ context.Context, _, _, modelName string) model.ConnectivityResult {
	return model.ConnectivityResult{OK: true, AvailableModels: []string{modelName}}
}
