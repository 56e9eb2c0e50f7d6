package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afshinator/BatchSMS/internal/model"
)

func sampleReport(startedAt time.Time, cancelled bool) *model.RunReport {
	return &model.RunReport{
		RunID:        uuid.NewString(),
		StartedAt:    startedAt,
		FinishedAt:   startedAt.Add(3 * time.Second),
		WasCancelled: cancelled,
		Items: []model.RunItemReport{
			{Position: 0, Name: "Ann", Phone: "555-0001", Status: model.RecipientStatusSent},
			{Position: 1, Name: "Bo", Phone: "555-0002", Status: model.RecipientStatusCancelled},
			{Position: 2, Name: "Cy", Phone: "555-0003", Status: model.RecipientStatusError},
		},
	}
}

func TestRunRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewRunRepository(db)
	ctx := context.Background()

	t.Run("create run with items", func(t *testing.T) {
		report := sampleReport(time.Now(), false)

		created, err := repo.Create(ctx, report)
		require.NoError(t, err)
		assert.Equal(t, report.RunID, created.RunID)
		assert.False(t, created.WasCancelled)
		require.Len(t, created.Items, 3)
		assert.Equal(t, model.RecipientStatusSent, created.Items[0].Status)
	})

	t.Run("record satisfies the recorder contract", func(t *testing.T) {
		report := sampleReport(time.Now(), true)
		require.NoError(t, repo.Record(ctx, *report))

		got, err := repo.Get(ctx, report.RunID)
		require.NoError(t, err)
		assert.True(t, got.WasCancelled)
	})
}

func TestRunRepository_Get(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewRunRepository(db)
	ctx := context.Background()

	report := sampleReport(time.Now(), false)
	_, err := repo.Create(ctx, report)
	require.NoError(t, err)

	t.Run("fetch by run id with items ordered by position", func(t *testing.T) {
		got, err := repo.Get(ctx, report.RunID)
		require.NoError(t, err)
		assert.Equal(t, report.RunID, got.RunID)
		require.Len(t, got.Items, 3)
		for i, item := range got.Items {
			assert.Equal(t, i, item.Position)
		}
		sent, cancelled, failed := got.Counts()
		assert.Equal(t, 1, sent)
		assert.Equal(t, 1, cancelled)
		assert.Equal(t, 1, failed)
	})

	t.Run("unknown run id", func(t *testing.T) {
		_, err := repo.Get(ctx, "no-such-run")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRunRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewRunRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		cancelled := i%2 == 1
		_, err := repo.Create(ctx, sampleReport(base.Add(time.Duration(i)*time.Minute), cancelled))
		require.NoError(t, err)
	}

	t.Run("list all runs", func(t *testing.T) {
		runs, total, err := repo.List(ctx, model.RunFilter{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, runs, 5)
	})

	t.Run("filter cancelled runs", func(t *testing.T) {
		cancelled := true
		runs, total, err := repo.List(ctx, model.RunFilter{Cancelled: &cancelled, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		for _, r := range runs {
			assert.True(t, r.WasCancelled)
		}
	})

	t.Run("filter by time window", func(t *testing.T) {
		from := base.Add(90 * time.Second)
		to := base.Add(4 * time.Minute)
		_, total, err := repo.List(ctx, model.RunFilter{From: &from, To: &to, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
	})

	t.Run("pagination and descending order", func(t *testing.T) {
		runs, total, err := repo.List(ctx, model.RunFilter{Limit: 2, Desc: true})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, runs, 2)
		assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
	})

	t.Run("zero limit falls back to default", func(t *testing.T) {
		runs, _, err := repo.List(ctx, model.RunFilter{})
		require.NoError(t, err)
		assert.Len(t, runs, 5)
	})
}
