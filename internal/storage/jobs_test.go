package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/boq-price-match/internal/batch"
	"github.com/Veraticus/boq-price-match/internal/common"
	"github.com/Veraticus/boq-price-match/internal/model"
)

func TestSaveJob_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	started := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	done := started.Add(2 * time.Minute)
	job := &model.MatchJob{
		ID:          "job-1",
		Method:      "LOCAL",
		Status:      model.JobCompleted,
		Processed:   4,
		Total:       4,
		Progress:    100,
		Matched:     3,
		StartedAt:   started,
		CompletedAt: &done,
		Errors:      []model.ItemError{{Row: 7, Description: "Sundries", Message: "timeout"}},
	}
	require.NoError(t, store.SaveJob(ctx, job))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 3, got.Matched)
	assert.Equal(t, job.Errors, got.Errors)
	assert.True(t, got.StartedAt.Equal(started))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
}

func TestGetJob_NotFound(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveJob_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		job  *model.MatchJob
		name string
	}{
		{name: "missing id", job: &model.MatchJob{Status: model.JobPending}},
		{name: "bad status", job: &model.MatchJob{ID: "j", Status: "running"}},
		{name: "processed beyond total", job: &model.MatchJob{ID: "j", Status: model.JobMatching, Processed: 5, Total: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, store.SaveJob(ctx, tt.job), ErrInvalidJob)
		})
	}
}

func TestListJobs_NewestFirst(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "mid"} {
		offset := map[string]time.Duration{"old": 0, "mid": time.Hour, "new": 2 * time.Hour}[id]
		require.NoError(t, store.SaveJob(ctx, &model.MatchJob{
			ID:        id,
			Method:    "LOCAL",
			Status:    model.JobCompleted,
			Total:     i,
			Processed: i,
			StartedAt: base.Add(offset),
		}))
	}

	jobs, err := store.ListJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}

func TestJobSink_PersistsProgressAndOutcome(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	sink, err := store.NewJobSink(ctx, model.MatchJob{ID: "job-2", Method: "COHERE"}, nil)
	require.NoError(t, err)

	got, err := store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, got.Status)

	sink.Update(ctx, batch.Progress{
		JobID:     "job-2",
		Status:    model.JobMatching,
		Message:   "Matched 5 of 10 items",
		Processed: 5,
		Total:     10,
		Percent:   50,
	})

	got, err = store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, model.JobMatching, got.Status)
	assert.Equal(t, 5, got.Processed)
	assert.Equal(t, 50, got.Progress)

	// Terminal writes survive a cancelled job context.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	now := time.Now()
	sink.Complete(cancelled, &batch.JobOutcome{
		Err: common.ErrJobCancelled,
		Job: model.MatchJob{
			ID:          "job-2",
			Method:      "COHERE",
			Status:      model.JobFailed,
			Message:     common.ErrJobCancelled.Error(),
			Processed:   5,
			Total:       10,
			Progress:    50,
			CompletedAt: &now,
		},
	})

	got, err = store.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, model.JobFailed, sink.Job().Status)
}
