package coordinator

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-equalize/pkg/common"
)

type memQueue struct {
	jobs []*common.JobMessage
	err  error
}

func (m *memQueue) AddJob(_ context.Context, job *common.JobMessage) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.jobs = append(m.jobs, job)
	return "1-0", nil
}

func TestCoordinator_Enqueue(t *testing.T) {
	t.Run("Should queue one job per directory entry", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/src/a.jpg", []byte("x"), 0o644))
		require.NoError(t, afero.WriteFile(fs, "/src/notes.txt", []byte("y"), 0o644))
		q := &memQueue{}

		runID, n, err := NewCoordinator(fs, q).Enqueue(t.Context(), "/src/", "/dst/")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.NotEmpty(t, runID)

		var names []string
		for _, job := range q.jobs {
			assert.Equal(t, common.JobTypeEntry, job.Type)
			assert.Equal(t, runID, job.Entry.RunID)
			assert.Equal(t, "/src/", job.Entry.SourceDir)
			assert.Equal(t, "/dst/", job.Entry.DestDir)
			names = append(names, job.Entry.Name)
		}
		sort.Strings(names)
		assert.Equal(t, []string{"a.jpg", "notes.txt"}, names)
	})

	t.Run("Should return an IOError for a missing source", func(t *testing.T) {
		_, _, err := NewCoordinator(afero.NewMemMapFs(), &memQueue{}).Enqueue(t.Context(), "/nope/", "/dst/")
		var ioErr *common.IOError
		assert.True(t, errors.As(err, &ioErr))
	})

	t.Run("Should stop on a queue failure", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/src/a.jpg", []byte("x"), 0o644))
		boom := errors.New("redis down")

		_, n, err := NewCoordinator(fs, &memQueue{err: boom}).Enqueue(t.Context(), "/src/", "/dst/")
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, n)
	})
}
