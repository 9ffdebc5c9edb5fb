package stats

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go-equalize/pkg/logger"
)

// Summary counts what a run did with each directory entry. It is safe for
// concurrent use.
type Summary struct {
	SourceDir string
	DestDir   string
	Workers   int
	StartTime time.Time

	entries   atomic.Int64
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64

	mu       sync.Mutex
	duration time.Duration
	failures []string
}

func NewSummary(src, dst string, workers int) *Summary {
	return &Summary{
		SourceDir: src,
		DestDir:   dst,
		Workers:   workers,
		StartTime: time.Now(),
	}
}

func (s *Summary) AddEntry()     { s.entries.Add(1) }
func (s *Summary) AddProcessed() { s.processed.Add(1) }
func (s *Summary) AddSkipped()   { s.skipped.Add(1) }

func (s *Summary) AddFailed(name string) {
	s.failed.Add(1)
	s.mu.Lock()
	s.failures = append(s.failures, name)
	s.mu.Unlock()
}

func (s *Summary) Finish() {
	s.mu.Lock()
	s.duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

func (s *Summary) Entries() int   { return int(s.entries.Load()) }
func (s *Summary) Processed() int { return int(s.processed.Load()) }
func (s *Summary) Skipped() int   { return int(s.skipped.Load()) }
func (s *Summary) Failed() int    { return int(s.failed.Load()) }

func (s *Summary) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Failures returns the names of entries whose output could not be written.
func (s *Summary) Failures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failures...)
}

func (s *Summary) Log(l logger.Logger) {
	l.Info("batch complete",
		"entries", s.Entries(),
		"processed", s.Processed(),
		"skipped", s.Skipped(),
		"failed", s.Failed(),
		"duration", s.Duration().Round(time.Millisecond),
	)
}

// WriteReport writes a plain-text run report.
func (s *Summary) WriteReport(w io.Writer) error {
	avg := 0.0
	if n := s.Processed(); n > 0 {
		avg = s.Duration().Seconds() / float64(n)
	}
	_, err := fmt.Fprintf(w,
		"=== Histogram Equalization Results ===\n"+
			"Timestamp: %s\n"+
			"Source: %s\n"+
			"Destination: %s\n"+
			"Workers: %d\n"+
			"Entries seen: %d\n"+
			"Images processed: %d\n"+
			"Entries skipped: %d\n"+
			"Write failures: %d\n"+
			"Total execution time: %.2fs\n"+
			"Average time per image: %.2fs\n",
		s.StartTime.Format("2006-01-02 15:04:05"),
		s.SourceDir, s.DestDir, s.Workers,
		s.Entries(), s.Processed(), s.Skipped(), s.Failed(),
		s.Duration().Seconds(), avg,
	)
	if err != nil {
		return err
	}
	failures := s.Failures()
	if len(failures) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "\nFailed files:\n"); err != nil {
		return err
	}
	for i, name := range failures {
		if _, err := fmt.Fprintf(w, "  %d. %s\n", i+1, name); err != nil {
			return err
		}
	}
	return nil
}
