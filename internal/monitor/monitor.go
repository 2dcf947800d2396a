// Package monitor polls a source directory and feeds every file it has not
// seen before through the ingestion policy, one at a time.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/andresmejia3/enroll/internal/ingest"
	"github.com/andresmejia3/enroll/internal/processed"
	"github.com/andresmejia3/enroll/internal/utils"
)

// DefaultInterval is how long the loop sleeps when nothing new arrived.
const DefaultInterval = 10 * time.Second

var errListing = errors.New("source folder unreadable")

type Monitor struct {
	ingestor *ingest.Ingestor
	interval time.Duration
	logger   *slog.Logger

	// OnPoll, if set, is called after every poll with the number of files handled.
	OnPoll func(n int)
}

// New wires a monitor around in. The ingestor must carry a processed log; one
// held in memory is attached if it does not.
func New(in *ingest.Ingestor, interval time.Duration, logger *slog.Logger) *Monitor {
	if in.Processed == nil {
		in.Processed = processed.Memory()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{ingestor: in, interval: interval, logger: logger}
}

// Poll lists the source directory once and processes every new image in
// name order. It returns how many images were handled.
func (m *Monitor) Poll(ctx context.Context) (int, error) {
	all, err := utils.ListImages(m.ingestor.SourceDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errListing, err)
	}
	pending := m.ingestor.Processed.Pending(all)
	if len(pending) == 0 {
		return 0, nil
	}

	m.logger.Info("found new images to process", "count", len(pending))
	for i, name := range pending {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := m.ingestor.Process(ctx, name); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

// Run polls until ctx is cancelled, sleeping the interval whenever a poll
// finds nothing new. A listing failure is logged and retried after the
// interval; an engine failure stops the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitoring folder for new files", "dir", m.ingestor.SourceDir, "interval", m.interval)

	for {
		n, err := m.Poll(ctx)
		if m.OnPoll != nil {
			m.OnPoll(n)
		}
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, errListing):
			m.logger.Error("could not list source folder", "dir", m.ingestor.SourceDir, "err", err)
		case err != nil:
			return err
		}

		if n > 0 {
			continue
		}

		m.logger.Debug("no new images to process, waiting", "interval", m.interval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.interval):
		}
	}
}
