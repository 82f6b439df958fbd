package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/RigelNana/backdrop/services/compose-service/database"
	"github.com/RigelNana/backdrop/services/compose-service/models"
)

func newTestRepo(t *testing.T) RunRepository {
	t.Helper()
	db, err := database.InitDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	return NewRunRepository(db)
}

func testPairs(n int) []models.Pair {
	pairs := make([]models.Pair, n)
	for i := range pairs {
		pairs[i] = models.Pair{
			Photo:       models.ImageAsset{ID: "p", Encoded: "aGVsbG8="},
			Inspiration: models.ImageAsset{ID: "i", Encoded: "aGVsbG8="},
		}
	}
	return pairs
}

func TestRunRepositoryCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	run := models.NewRun("s1", models.RunSourceSession, "chat", testPairs(2))
	require.NoError(t, repo.Create(run))
	require.NotEqual(t, uuid.Nil, run.ID)

	got, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, got.Status)
	assert.Equal(t, 2, got.Total)
	assert.Len(t, got.Pairs.Data(), 2)
	for _, res := range got.Results.Data() {
		assert.Equal(t, models.StatusQueued, res.Status)
	}

	_, err = repo.GetByID(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunRepositorySaveResultIsForwardOnly(t *testing.T) {
	repo := newTestRepo(t)
	run := models.NewRun("", models.RunSourceKafka, "chat", testPairs(2))
	require.NoError(t, repo.Create(run))

	require.NoError(t, repo.SaveResult(run.ID, 0, models.GenerationResult{Status: models.StatusGenerating}))
	require.NoError(t, repo.SaveResult(run.ID, 0, models.GenerationResult{Status: models.StatusDone, RawText: "ok"}))
	// stale update is dropped
	require.NoError(t, repo.SaveResult(run.ID, 0, models.GenerationResult{Status: models.StatusAnalyzing}))
	require.NoError(t, repo.SaveResult(run.ID, 1, models.GenerationResult{Status: models.StatusError, ErrorMessage: "boom"}))

	got, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	results := got.Results.Data()
	assert.Equal(t, models.StatusDone, results[0].Status)
	assert.Equal(t, "ok", results[0].RawText)
	assert.Equal(t, models.StatusError, results[1].Status)
	assert.Equal(t, 1, got.DoneCount)
	assert.Equal(t, 1, got.ErrorCount)
	assert.Equal(t, models.RunStatusRunning, got.Status)

	assert.Error(t, repo.SaveResult(run.ID, 5, models.GenerationResult{Status: models.StatusDone}))
	assert.ErrorIs(t, repo.SaveResult(uuid.New(), 0, models.GenerationResult{Status: models.StatusDone}), ErrNotFound)
}

func TestRunRepositorySetStatusAndList(t *testing.T) {
	repo := newTestRepo(t)
	first := models.NewRun("s1", models.RunSourceSession, "chat", testPairs(1))
	second := models.NewRun("s1", models.RunSourceSession, "edit", testPairs(1))
	other := models.NewRun("s2", models.RunSourceSession, "chat", testPairs(1))
	for _, r := range []*models.Run{first, second, other} {
		require.NoError(t, repo.Create(r))
	}

	require.NoError(t, repo.SetStatus(first.ID, models.RunStatusCompleted))
	got, err := repo.GetByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.NotNil(t, got.FinishedAt)

	assert.ErrorIs(t, repo.SetStatus(uuid.New(), models.RunStatusCompleted), ErrNotFound)

	runs, err := repo.ListBySession("s1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	all, err := repo.ListBySession("s1", -1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunRepositoryUpdateAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	run := models.NewRun("s1", models.RunSourceKafka, "chat", testPairs(1))
	require.NoError(t, repo.Create(run))

	run.Pairs = datatypes.NewJSONType([]models.Pair{})
	require.NoError(t, repo.Update(run))
	got, err := repo.GetByID(run.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Pairs.Data())
	assert.Len(t, got.Results.Data(), 1)

	require.NoError(t, repo.Delete(run.ID))
	_, err = repo.GetByID(run.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
