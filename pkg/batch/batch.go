// Package batch equalizes every decodable image in a source directory into a
// destination directory under the same file names.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"go-equalize/pkg/common"
	"go-equalize/pkg/dirscan"
	"go-equalize/pkg/logger"
	"go-equalize/pkg/stats"
)

// Transformer turns the raw bytes of a source file into the raw bytes of its
// equalized copy. It returns an error wrapping common.ErrNotImage when data
// is not a decodable image.
type Transformer interface {
	Transform(name string, data []byte) ([]byte, error)
}

type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

const outputPerm = 0o644

type Driver struct {
	fs          afero.Fs
	transformer Transformer
	workers     int
}

func NewDriver(fs afero.Fs, t Transformer, workers int) *Driver {
	if workers < 1 {
		workers = 1
	}
	return &Driver{fs: fs, transformer: t, workers: workers}
}

// Run processes every entry of src. src and dst must already end in a path
// separator. Only a failure to open src is returned as an error; per-entry
// problems are recorded in the summary and logged to the logger carried by
// ctx.
func (d *Driver) Run(ctx context.Context, src, dst string) (*stats.Summary, error) {
	dir, err := dirscan.Open(d.fs, src)
	if err != nil {
		return nil, common.NewIOError("open", src, err)
	}
	defer dir.Close()

	summary := stats.NewSummary(src, dst, d.workers)
	log := logger.FromContext(ctx)
	log.Debug("batch started", "source", src, "dest", dst, "workers", d.workers)

	if d.workers == 1 {
		err = d.runSequential(ctx, log, dir, src, dst, summary)
	} else {
		err = d.runParallel(ctx, log, dir, src, dst, summary)
	}
	summary.Finish()
	return summary, err
}

func (d *Driver) runSequential(ctx context.Context, log logger.Logger, dir *dirscan.Dir, src, dst string, summary *stats.Summary) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, ok, err := dir.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		d.handle(log, src, dst, name, summary)
	}
}

func (d *Driver) runParallel(ctx context.Context, log logger.Logger, dir *dirscan.Dir, src, dst string, summary *stats.Summary) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for {
		if err := gctx.Err(); err != nil {
			_ = g.Wait()
			return err
		}
		name, ok, err := dir.Next()
		if err != nil {
			_ = g.Wait()
			return err
		}
		if !ok {
			break
		}
		g.Go(func() error {
			d.handle(log, src, dst, name, summary)
			return nil
		})
	}
	return g.Wait()
}

func (d *Driver) handle(log logger.Logger, src, dst, name string, summary *stats.Summary) {
	summary.AddEntry()
	outcome, err := ProcessEntry(d.fs, d.transformer, src, dst, name)
	switch outcome {
	case OutcomeProcessed:
		summary.AddProcessed()
		log.Debug("equalized", "file", name)
	case OutcomeSkipped:
		summary.AddSkipped()
		log.Debug("skipped", "file", name, "reason", err)
	default:
		summary.AddFailed(name)
		log.Error("failed to write equalized image", "file", name, "err", err)
	}
}

// ProcessEntry equalizes src+name into dst+name, overwriting any existing
// file. Entries that cannot be read or decoded are skipped; the returned
// error then only explains why.
func ProcessEntry(fs afero.Fs, t Transformer, src, dst, name string) (Outcome, error) {
	if err := sniff(fs, src+name); err != nil {
		return OutcomeSkipped, err
	}
	data, err := afero.ReadFile(fs, src+name)
	if err != nil {
		return OutcomeSkipped, err
	}
	out, err := t.Transform(name, data)
	if errors.Is(err, common.ErrNotImage) {
		return OutcomeSkipped, err
	}
	if err != nil {
		return OutcomeFailed, err
	}
	if err := afero.WriteFile(fs, dst+name, out, outputPerm); err != nil {
		return OutcomeFailed, fmt.Errorf("write %s: %w", dst+name, err)
	}
	return OutcomeProcessed, nil
}

// sniff rejects directories and files whose header identifies them as
// something other than an image, without reading the whole file. Headers
// mimetype does not recognise are left for the decoder to judge.
func sniff(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", path, common.ErrNotImage)
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return err
	}
	if !mayBeImage(mtype) {
		return fmt.Errorf("%s is %s: %w", path, mtype.String(), common.ErrNotImage)
	}
	return nil
}

func mayBeImage(m *mimetype.MIME) bool {
	return strings.HasPrefix(m.String(), "image/") || m.Is("application/octet-stream")
}
