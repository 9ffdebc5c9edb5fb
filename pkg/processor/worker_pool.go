package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"go-equalize/pkg/batch"
	"go-equalize/pkg/common"
	"go-equalize/pkg/logger"
	"go-equalize/pkg/queue"
)

// JobStream is the consumer side of the job queue.
type JobStream interface {
	ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error)
	AckJob(ctx context.Context, id string) error
	ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]queue.ClaimedJob, error)
}

type Options struct {
	Workers       int
	WorkerID      string
	Block         time.Duration
	ClaimIdle     time.Duration
	ClaimInterval time.Duration
}

type WorkerPool struct {
	stream      JobStream
	fs          afero.Fs
	transformer batch.Transformer
	opts        Options

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

func NewWorkerPool(stream JobStream, fs afero.Fs, t batch.Transformer, opts Options) *WorkerPool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = 30 * time.Second
	}
	if opts.ClaimInterval <= 0 {
		opts.ClaimInterval = opts.ClaimIdle
	}
	return &WorkerPool{stream: stream, fs: fs, transformer: t, opts: opts}
}

// Start runs the consumers and the stale-job reclaimer until ctx is done.
// It logs through the logger carried by ctx.
func (wp *WorkerPool) Start(ctx context.Context) {
	var wg sync.WaitGroup
	log := logger.FromContext(ctx)

	for i := 0; i < wp.opts.Workers; i++ {
		wg.Add(1)
		go wp.worker(ctx, log, i, &wg)
	}

	wg.Add(1)
	go wp.retryMonitor(ctx, log, &wg)

	log.Info("worker pool started", "workers", wp.opts.Workers, "id", wp.opts.WorkerID)
	wg.Wait()
	log.Info("worker pool stopped",
		"processed", wp.Processed(), "skipped", wp.Skipped(), "failed", wp.Failed())
}

func (wp *WorkerPool) Processed() int64 { return wp.processed.Load() }
func (wp *WorkerPool) Skipped() int64   { return wp.skipped.Load() }
func (wp *WorkerPool) Failed() int64    { return wp.failed.Load() }

func (wp *WorkerPool) worker(ctx context.Context, base logger.Logger, id int, wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("%s-worker-%d", wp.opts.WorkerID, id)
	log := base.With("consumer", consumer)

	for {
		if ctx.Err() != nil {
			return
		}
		msgID, job, err := wp.stream.ReadJob(ctx, consumer, wp.opts.Block)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Warn("read job failed", "err", err)
			if msgID != "" {
				wp.ack(ctx, log, msgID)
			}
			continue
		}
		if job == nil {
			continue
		}
		wp.handle(ctx, log, msgID, job)
	}
}

func (wp *WorkerPool) handle(ctx context.Context, log logger.Logger, msgID string, job *common.JobMessage) {
	if job == nil || job.Type != common.JobTypeEntry || job.Entry == nil {
		log.Warn("dropping invalid job", "id", msgID)
		wp.ack(ctx, log, msgID)
		return
	}

	e := job.Entry
	if !isPlainName(e.Name) {
		wp.failed.Add(1)
		log.Warn("dropping job with unsafe entry name", "id", msgID, "name", e.Name)
		wp.ack(ctx, log, msgID)
		return
	}
	outcome, err := batch.ProcessEntry(wp.fs, wp.transformer, e.SourceDir, e.DestDir, e.Name)
	switch outcome {
	case batch.OutcomeProcessed:
		wp.processed.Add(1)
		log.Debug("equalized", "file", e.Name, "run_id", e.RunID)
	case batch.OutcomeSkipped:
		wp.skipped.Add(1)
		log.Debug("skipped", "file", e.Name, "reason", err)
	default:
		wp.failed.Add(1)
		log.Error("failed to write equalized image", "file", e.Name, "run_id", e.RunID, "err", err)
	}
	// Write failures are not retried; redelivery would hit the same destination.
	wp.ack(ctx, log, msgID)
}

func (wp *WorkerPool) ack(ctx context.Context, log logger.Logger, msgID string) {
	if err := wp.stream.AckJob(ctx, msgID); err != nil {
		log.Warn("ack failed", "id", msgID, "err", err)
	}
}

func (wp *WorkerPool) retryMonitor(ctx context.Context, base logger.Logger, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(wp.opts.ClaimInterval)
	defer ticker.Stop()

	consumer := fmt.Sprintf("%s-retry-monitor", wp.opts.WorkerID)
	log := base.With("consumer", consumer)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimed, err := wp.stream.ClaimStaleJobs(ctx, consumer, wp.opts.ClaimIdle, 50)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("claim stale jobs failed", "err", err)
				}
				continue
			}
			if len(claimed) > 0 {
				log.Info("reclaimed stale jobs", "count", len(claimed))
			}
			for _, c := range claimed {
				if c.Err != nil {
					log.Warn("dropping undecodable job", "id", c.ID, "err", c.Err)
					wp.ack(ctx, log, c.ID)
					continue
				}
				wp.handle(ctx, log, c.ID, c.Job)
			}
		}
	}
}

// isPlainName reports whether name is a single path element, so that
// joining it to a directory cannot escape that directory.
func isPlainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
