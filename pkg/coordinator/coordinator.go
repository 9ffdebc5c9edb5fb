package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"go-equalize/pkg/common"
	"go-equalize/pkg/dirscan"
	"go-equalize/pkg/logger"
)

// JobQueue accepts entry jobs.
type JobQueue interface {
	AddJob(ctx context.Context, job *common.JobMessage) (string, error)
}

type Coordinator struct {
	fs    afero.Fs
	queue JobQueue
}

func NewCoordinator(fs afero.Fs, q JobQueue) *Coordinator {
	return &Coordinator{fs: fs, queue: q}
}

// Enqueue adds one job per entry of src. Entries are not inspected here;
// workers skip the ones that do not decode. It returns the run id and the
// number of jobs queued.
func (c *Coordinator) Enqueue(ctx context.Context, src, dst string) (string, int, error) {
	dir, err := dirscan.Open(c.fs, src)
	if err != nil {
		return "", 0, common.NewIOError("open", src, err)
	}
	defer dir.Close()

	runID := uuid.NewString()
	startTime := time.Now()
	queued := 0
	for {
		if err := ctx.Err(); err != nil {
			return runID, queued, err
		}
		name, ok, err := dir.Next()
		if err != nil {
			return runID, queued, err
		}
		if !ok {
			break
		}
		job := &common.JobMessage{
			Type: common.JobTypeEntry,
			Entry: &common.EntryJob{
				RunID:     runID,
				SourceDir: src,
				DestDir:   dst,
				Name:      name,
				QueuedAt:  time.Now(),
			},
		}
		if _, err := c.queue.AddJob(ctx, job); err != nil {
			return runID, queued, fmt.Errorf("queue %s: %w", name, err)
		}
		queued++
	}

	logger.FromContext(ctx).Info("entries queued", "run_id", runID, "source", src, "jobs", queued,
		"elapsed", time.Since(startTime).Round(time.Millisecond))
	return runID, queued, nil
}
