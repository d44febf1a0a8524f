package messagelog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codesan-git/blasting-be/internal/ids"
)

// MemoryStore is an in-process Store used for tests and database-less runs.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []*MessageLog
	now  func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// SetClock overrides the time source for tests.
func (s *MemoryStore) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

func (s *MemoryStore) Create(ctx context.Context, row *MessageLog) error {
	return s.CreateBulk(ctx, []*MessageLog{row})
}

func (s *MemoryStore) CreateBulk(ctx context.Context, rows []*MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().In(Jakarta)
	for _, row := range rows {
		if row.ID == "" {
			row.ID = ids.New()
		}
		if row.Status == "" {
			row.Status = StatusQueued
		}
		row.CreatedAt = now
		row.UpdatedAt = now
		cp := *row
		s.rows = append(s.rows, &cp)
	}
	return nil
}

func (s *MemoryStore) FindByJobID(ctx context.Context, jobID string) (*MessageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.JobID == jobID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByMessageID(ctx context.Context, messageID string) (*MessageLog, error) {
	if messageID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.MessageID == messageID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateByJobID(ctx context.Context, jobID string, upd Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.JobID == jobID {
			applyUpdate(row, upd, s.now().In(Jakarta))
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) UpdateByMessageID(ctx context.Context, messageID string, upd Update) error {
	if messageID == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.MessageID == messageID {
			applyUpdate(row, upd, s.now().In(Jakarta))
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Query(ctx context.Context, f Filter) ([]*MessageLog, error) {
	s.mu.RLock()
	var matched []*MessageLog
	for _, row := range s.rows {
		if f.Status != "" && row.Status != f.Status {
			continue
		}
		if f.Channel != "" && row.Channel != f.Channel {
			continue
		}
		if f.RecipientEmail != "" && row.RecipientEmail != f.RecipientEmail {
			continue
		}
		cp := *row
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	// Same page-size defaults as the SQL store.
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) Stats(ctx context.Context) ([]StatBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[[2]string]int64)
	for _, row := range s.rows {
		counts[[2]string{string(row.Channel), string(row.Status)}]++
	}
	return statBuckets(counts), nil
}

func (s *MemoryStore) StatsByDate(ctx context.Context, days int) ([]DateStatBucket, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := startOfJakartaDay(s.now()).AddDate(0, 0, -(days - 1))

	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[[3]string]int64)
	for _, row := range s.rows {
		created := row.CreatedAt.In(Jakarta)
		if created.Before(cutoff) {
			continue
		}
		date := created.Format("2006-01-02")
		counts[[3]string{date, string(row.Channel), string(row.Status)}]++
	}
	out := make([]DateStatBucket, 0, len(counts))
	for key, n := range counts {
		out = append(out, DateStatBucket{Date: key[0], Channel: Channel(key[1]), Status: Status(key[2]), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*MessageLog
	var removed int64
	for _, row := range s.rows {
		if row.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return removed, nil
}

func applyUpdate(row *MessageLog, upd Update, now time.Time) {
	if upd.Status != nil {
		row.Status = *upd.Status
	}
	if upd.ErrorMessage != nil {
		row.ErrorMessage = *upd.ErrorMessage
	}
	if upd.MessageID != nil {
		row.MessageID = *upd.MessageID
	}
	if upd.Attempts != nil {
		row.Attempts = *upd.Attempts
	}
	row.UpdatedAt = now
}

func statBuckets(counts map[[2]string]int64) []StatBucket {
	out := make([]StatBucket, 0, len(counts))
	for key, n := range counts {
		out = append(out, StatBucket{Channel: Channel(key[0]), Status: Status(key[1]), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Status < out[j].Status
	})
	return out
}

func startOfJakartaDay(t time.Time) time.Time {
	local := t.In(Jakarta)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Jakarta)
}
