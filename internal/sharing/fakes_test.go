package sharing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/moodshare/internal/model"
	"github.com/hitoshi/moodshare/internal/repository"
)

var errStore = errors.New("store unavailable")

// fakeSharingRepo はSharingRepositoryのインメモリ実装。
type fakeSharingRepo struct {
	mu      sync.Mutex
	records map[string]*model.SharingRecord // key: userID|therapistID
	seq     int

	upsertErr error
	appendErr error
	appends   int
}

func newFakeSharingRepo() *fakeSharingRepo {
	return &fakeSharingRepo{records: map[string]*model.SharingRecord{}}
}

func pairKey(userID, therapistID string) string { return userID + "|" + therapistID }

func cloneRecord(r *model.SharingRecord) *model.SharingRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.AccessLogs = append([]model.AccessLog(nil), r.AccessLogs...)
	c.SharedSnapshots = append([]model.SharedSnapshot(nil), r.SharedSnapshots...)
	if r.LastShared != nil {
		t := *r.LastShared
		c.LastShared = &t
	}
	return &c
}

func (f *fakeSharingRepo) byID(id string) *model.SharingRecord {
	for _, r := range f.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (f *fakeSharingRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeSharingRepo) get(userID, therapistID string) *model.SharingRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRecord(f.records[pairKey(userID, therapistID)])
}

// put はテスト用にレコードを直接保存する。
func (f *fakeSharingRepo) put(r *model.SharingRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[pairKey(r.UserID, r.TherapistID)] = cloneRecord(r)
}

func (f *fakeSharingRepo) FindByPair(_ context.Context, userID, therapistID string) (*model.SharingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRecord(f.records[pairKey(userID, therapistID)]), nil
}

func (f *fakeSharingRepo) Upsert(_ context.Context, p repository.UpsertSharingParams) (*model.SharingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}

	key := pairKey(p.UserID, p.TherapistID)
	if existing, ok := f.records[key]; ok {
		existing.Status = model.SharingStatusActive
		existing.ExpiresAt = p.ExpiresAt
		existing.AccessSettings = p.Patch.ApplyTo(existing.AccessSettings)
		existing.UpdatedAt = p.Now
		return cloneRecord(existing), nil
	}

	f.seq++
	rec := &model.SharingRecord{
		ID:              p.ID,
		UserID:          p.UserID,
		TherapistID:     p.TherapistID,
		Status:          model.SharingStatusActive,
		CreatedAt:       p.Now,
		ExpiresAt:       p.ExpiresAt,
		AccessSettings:  p.Patch.ApplyTo(p.Defaults),
		AccessLogs:      []model.AccessLog{},
		SharedSnapshots: []model.SharedSnapshot{},
		UpdatedAt:       p.Now,
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("rec-%d", f.seq)
	}
	f.records[key] = rec
	return cloneRecord(rec), nil
}

func (f *fakeSharingRepo) UpdateSettings(_ context.Context, id string, settings model.AccessSettings, now time.Time) (*model.SharingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.byID(id)
	if rec == nil {
		return nil, nil
	}
	rec.AccessSettings = settings
	rec.UpdatedAt = now
	return cloneRecord(rec), nil
}

func (f *fakeSharingRepo) UpdateExpiry(_ context.Context, id string, expiresAt, now time.Time) (*model.SharingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.byID(id)
	if rec == nil {
		return nil, nil
	}
	rec.ExpiresAt = expiresAt
	rec.UpdatedAt = now
	return cloneRecord(rec), nil
}

func (f *fakeSharingRepo) AppendShareHistory(_ context.Context, id string, entry model.AccessLog, snapshot model.SharedSnapshot) (*model.SharingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	rec := f.byID(id)
	if rec == nil {
		return nil, nil
	}
	f.appends++
	t := entry.AccessedAt
	rec.LastShared = &t
	rec.AccessLogs = append(rec.AccessLogs, model.AccessLog{
		AccessedAt:     entry.AccessedAt,
		AccessedFields: append([]string(nil), entry.AccessedFields...),
	})
	// 末尾から最新MaxSharedSnapshots件を残す
	rec.SharedSnapshots = append(rec.SharedSnapshots, snapshot)
	if over := len(rec.SharedSnapshots) - model.MaxSharedSnapshots; over > 0 {
		rec.SharedSnapshots = append([]model.SharedSnapshot(nil), rec.SharedSnapshots[over:]...)
	}
	return cloneRecord(rec), nil
}

func (f *fakeSharingRepo) RevokeActiveByUser(_ context.Context, userID string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, rec := range f.records {
		if rec.UserID == userID && rec.Status == model.SharingStatusActive {
			rec.Status = model.SharingStatusRevoked
			rec.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (f *fakeSharingRepo) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]*model.SharingRecord, error) {
	return f.listActive(func(r *model.SharingRecord) bool { return r.UserID == userID }, now), nil
}

func (f *fakeSharingRepo) ListActiveByTherapist(_ context.Context, therapistID string, now time.Time) ([]*model.SharingRecord, error) {
	return f.listActive(func(r *model.SharingRecord) bool { return r.TherapistID == therapistID }, now), nil
}

func (f *fakeSharingRepo) listActive(match func(*model.SharingRecord) bool, now time.Time) []*model.SharingRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.SharingRecord
	for _, rec := range f.records {
		if match(rec) && rec.IsActive(now) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out
}

// fakeUserRepo はUserRepositoryのインメモリ実装。
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	f := &fakeUserRepo{users: map[string]*model.User{}}
	for _, u := range users {
		c := *u
		f.users[u.ID] = &c
	}
	return f
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string, role *model.Role) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) && (role == nil || u.Role == *role) {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) SetTherapist(_ context.Context, userID, therapistID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	u.TherapistID = therapistID
	c := *u
	return &c, nil
}

func (f *fakeUserRepo) ClearTherapist(_ context.Context, userID string) (*model.User, error) {
	return f.SetTherapist(context.Background(), userID, "")
}

// fakeJournal はEmotionRepositoryのインメモリ実装。呼び出し回数を記録する。
type fakeJournal struct {
	mu      sync.Mutex
	entries []model.EmotionEntry

	summarizeErr   error
	findSinceErr   error
	summarizeCalls int
	findSinceCalls int
	lastSince      time.Time
}

func (f *fakeJournal) Summarize(_ context.Context, userID string) (model.EmotionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarizeCalls++
	if f.summarizeErr != nil {
		return model.EmotionSummary{}, f.summarizeErr
	}

	summary := model.EmptyEmotionSummary()
	total := 0
	for _, e := range f.entries {
		if e.UserID != userID {
			continue
		}
		summary.Count++
		total += e.Intensity
		summary.EmotionCounts[e.Emotion]++
	}
	if summary.Count > 0 {
		summary.AverageIntensity = float64(total) / float64(summary.Count)
	}
	return summary, nil
}

func (f *fakeJournal) FindSince(_ context.Context, userID string, since time.Time) ([]model.EmotionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findSinceCalls++
	f.lastSince = since
	if f.findSinceErr != nil {
		return nil, f.findSinceErr
	}

	var out []model.EmotionEntry
	for _, e := range f.entries {
		if e.UserID == userID && !e.Date.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// recordingMetrics は呼び出し回数を記録するMetricsCollector。
type recordingMetrics struct {
	mu               sync.Mutex
	shares           map[string]int
	failures         map[string]int
	assignments      int
	revocations      int64
	settingsRejected int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{shares: map[string]int{}, failures: map[string]int{}}
}

func (r *recordingMetrics) RecordShare(mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shares[mode]++
}

func (r *recordingMetrics) RecordShareFailure(mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[mode]++
}

func (r *recordingMetrics) RecordShareLatency(time.Duration) {}

func (r *recordingMetrics) RecordAssignment() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments++
}

func (r *recordingMetrics) RecordRevocations(count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revocations += count
}

func (r *recordingMetrics) RecordSettingsRejected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settingsRejected++
}

func (r *recordingMetrics) RecordHTTPStatus(int) {}

var (
	_ repository.SharingRepository = (*fakeSharingRepo)(nil)
	_ repository.UserRepository    = (*fakeUserRepo)(nil)
	_ repository.EmotionRepository = (*fakeJournal)(nil)
)
