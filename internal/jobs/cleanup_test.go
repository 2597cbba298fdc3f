package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulpoint/shopbot-go/internal/model"
)

type mockJournalRepo struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
}

func (m *mockJournalRepo) Insert(ctx context.Context, entry model.JournalEntry) error {
	return nil
}

func (m *mockJournalRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.deleted, nil
}

func (m *mockJournalRepo) calls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewCleanupJob(nil, 90*24*time.Hour, 6*time.Hour)

		assert.NotNil(t, job)
		assert.Equal(t, 6*time.Hour, job.interval)
		assert.Equal(t, 90*24*time.Hour, job.retention)
	})

	t.Run("runs cleanup on start with the retention cutoff", func(t *testing.T) {
		repo := &mockJournalRepo{deleted: 3}
		job := NewCleanupJob(repo, 24*time.Hour, time.Hour)

		job.Start()
		time.Sleep(20 * time.Millisecond)
		job.Stop()

		calls := repo.calls()
		require.NotEmpty(t, calls, "cleanup should run immediately on start")

		wantCutoff := time.Now().Add(-24 * time.Hour)
		assert.WithinDuration(t, wantCutoff, calls[0], time.Minute)
	})

	t.Run("ticks until stopped", func(t *testing.T) {
		repo := &mockJournalRepo{}
		job := NewCleanupJob(repo, 24*time.Hour, 10*time.Millisecond)

		job.Start()
		time.Sleep(55 * time.Millisecond)
		job.Stop()

		ran := len(repo.calls())
		assert.GreaterOrEqual(t, ran, 2, "the ticker should fire repeatedly")

		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, ran, len(repo.calls()), "no cleanups after Stop")
	})

	t.Run("starts and stops without panic", func(t *testing.T) {
		job := NewCleanupJob(&mockJournalRepo{}, time.Hour, 100*time.Millisecond)

		job.Start()
		time.Sleep(10 * time.Millisecond)
		job.Stop()
	})
}
