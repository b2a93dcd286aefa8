package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/form-intake-backend/interfaces"
)

type viewKey struct {
	endpointName string
	username     string
}

// MemoryStore implements interfaces.Store in process memory.
// It is meant for local development and tests; contents are lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]*interfaces.Submission
	views       map[viewKey]time.Time
	lastCreated time.Time
	now         func() time.Time
	log         *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *slog.Logger) *MemoryStore {
	return &MemoryStore{
		submissions: make(map[string]*interfaces.Submission),
		views:       make(map[viewKey]time.Time),
		now:         time.Now,
		log:         log,
	}
}

// WithClock replaces the clock used to assign creation times.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// CreateSubmission stores the submission under a fresh uuid.
// Creation times are strictly increasing even if the clock is not.
func (s *MemoryStore) CreateSubmission(ctx context.Context, sub *interfaces.NewSubmission) (*interfaces.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.now().UTC()
	if !createdAt.After(s.lastCreated) {
		createdAt = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = createdAt

	stored := &interfaces.Submission{
		ID:           uuid.NewString(),
		EndpointName: sub.EndpointName,
		Data:         append(json.RawMessage(nil), sub.Data...),
		BrowserInfo:  copyBrowserInfo(sub.BrowserInfo),
		IPAddress:    sub.IPAddress,
		CreatedAt:    createdAt,
	}
	s.submissions[stored.ID] = stored

	s.log.Debug("Stored submission in memory", "id", stored.ID, "endpoint", stored.EndpointName)
	return copySubmission(stored), nil
}

// GetSubmission returns a copy of the stored submission.
func (s *MemoryStore) GetSubmission(ctx context.Context, id string) (*interfaces.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, interfaces.ErrSubmissionNotFound
	}
	return copySubmission(sub), nil
}

// DeleteSubmission removes a submission.
func (s *MemoryStore) DeleteSubmission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.submissions[id]; !ok {
		return interfaces.ErrSubmissionNotFound
	}
	delete(s.submissions, id)
	return nil
}

// ListSubmissions filters, sorts newest first and paginates.
func (s *MemoryStore) ListSubmissions(ctx context.Context, query interfaces.SubmissionQuery) ([]interfaces.Submission, int, error) {
	query = query.Normalize()

	s.mu.RLock()
	matched := make([]interfaces.Submission, 0)
	for _, sub := range s.submissions {
		if query.Matches(sub) {
			matched = append(matched, *copySubmission(sub))
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	return paginate(matched, query), len(matched), nil
}

// SubmissionsSince returns submissions created at or after since, oldest first.
func (s *MemoryStore) SubmissionsSince(ctx context.Context, since time.Time) ([]interfaces.Submission, error) {
	s.mu.RLock()
	result := make([]interfaces.Submission, 0)
	for _, sub := range s.submissions {
		if !sub.CreatedAt.Before(since) {
			result = append(result, *copySubmission(sub))
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// EndpointStats groups submissions by endpoint name, ordered by name.
func (s *MemoryStore) EndpointStats(ctx context.Context) ([]interfaces.EndpointStat, error) {
	s.mu.RLock()
	byName := make(map[string]*interfaces.EndpointStat)
	for _, sub := range s.submissions {
		stat, ok := byName[sub.EndpointName]
		if !ok {
			stat = &interfaces.EndpointStat{EndpointName: sub.EndpointName}
			byName[sub.EndpointName] = stat
		}
		stat.Count++
		if sub.CreatedAt.After(stat.LatestSubmissionAt) {
			stat.LatestSubmissionAt = sub.CreatedAt
		}
	}
	s.mu.RUnlock()

	stats := make([]interfaces.EndpointStat, 0, len(byName))
	for _, stat := range byName {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].EndpointName < stats[j].EndpointName
	})
	return stats, nil
}

// EndpointViews returns the operator's last-viewed markers.
func (s *MemoryStore) EndpointViews(ctx context.Context, username string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make(map[string]time.Time)
	for key, at := range s.views {
		if key.username == username {
			views[key.endpointName] = at
		}
	}
	return views, nil
}

// UpsertEndpointView creates or overwrites the marker under the store lock.
func (s *MemoryStore) UpsertEndpointView(ctx context.Context, endpointName, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.views[viewKey{endpointName: endpointName, username: username}] = at.UTC()
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func copySubmission(sub *interfaces.Submission) *interfaces.Submission {
	cp := *sub
	cp.Data = append(json.RawMessage(nil), sub.Data...)
	cp.BrowserInfo = copyBrowserInfo(sub.BrowserInfo)
	return &cp
}

func copyBrowserInfo(info interfaces.BrowserInfo) interfaces.BrowserInfo {
	cp := make(interfaces.BrowserInfo, len(info))
	for k, v := range info {
		cp[k] = v
	}
	return cp
}

func sortNewestFirst(subs []interfaces.Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID > subs[j].ID
		}
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
}

func paginate(subs []interfaces.Submission, query interfaces.SubmissionQuery) []interfaces.Submission {
	if query.Offset >= len(subs) {
		return []interfaces.Submission{}
	}
	end := query.Offset + query.Limit
	if end > len(subs) {
		end = len(subs)
	}
	return subs[query.Offset:end]
}
