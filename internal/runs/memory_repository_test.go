package runs_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorsim/sensorsim/internal/params"
	"github.com/sensorsim/sensorsim/internal/runs"
)

func TestNewRun(t *testing.T) {
	p := params.Defaults()
	run := runs.NewRun("sess_1", runs.KindSimulate, p)

	assert.True(t, strings.HasPrefix(run.ID, "run_"))
	assert.Equal(t, "sess_1", run.SessionID)
	assert.Equal(t, runs.KindSimulate, run.Kind)
	assert.Equal(t, *p, run.Params)
	assert.False(t, run.CreatedAt.IsZero())

	p.TempEnd = 10
	assert.Equal(t, 50.0, run.Params.TempEnd, "run keeps its own copy of the params")
}

func TestInMemoryRepository_CreateAndGet(t *testing.T) {
	repo := runs.NewInMemoryRepository()
	ctx := context.Background()

	run := runs.NewRun("sess_1", runs.KindGraph, params.Defaults())
	run.Status = runs.StatusSucceeded
	run.Location = "/path/to/generated/graphs/g.html"
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Location, got.Location)
	assert.NotSame(t, run, got)

	_, err = repo.Get(ctx, "run_missing")
	assert.ErrorIs(t, err, runs.ErrRunNotFound)
}

func TestInMemoryRepository_ListNewestFirst(t *testing.T) {
	repo := runs.NewInMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		session := "a"
		if i%2 == 1 {
			session = "b"
		}
		run := runs.NewRun(session, runs.KindSimulate, nil)
		run.Error = fmt.Sprint(i)
		require.NoError(t, repo.Create(ctx, run))
	}

	all, err := repo.List(ctx, runs.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "4", all[0].Error)
	assert.Equal(t, "0", all[4].Error)

	limited, err := repo.List(ctx, runs.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "4", limited[0].Error)

	onlyB, err := repo.List(ctx, runs.ListOptions{SessionID: "b"})
	require.NoError(t, err)
	require.Len(t, onlyB, 2)
	assert.Equal(t, "3", onlyB[0].Error)
	assert.Equal(t, "1", onlyB[1].Error)
}
