package history

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SchedulerOptions tune the periodic flush.
type SchedulerOptions struct {
	BatchSize int
	// Interval is the normal flush period; FastInterval takes over while
	// queue depth exceeds HighWater.
	Interval     time.Duration
	FastInterval time.Duration
	HighWater    int64
}

// Scheduler drives periodic history flushes, decoupled from ingestion rate.
type Scheduler struct {
	writer *Writer
	opts   SchedulerOptions
	logger *zap.Logger
}

// NewScheduler creates a flush scheduler.
func NewScheduler(writer *Writer, opts SchedulerOptions, logger *zap.Logger) *Scheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.FastInterval <= 0 {
		opts.FastInterval = 5 * time.Second
	}
	if opts.HighWater <= 0 {
		opts.HighWater = 1000
	}
	return &Scheduler{writer: writer, opts: opts, logger: logger}
}

// Run flushes on a timer until ctx is cancelled, then drains the queue on a
// best-effort basis.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.interval(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-timer.C:
			if _, err := s.writer.FlushBatch(ctx, s.opts.BatchSize); err != nil {
				s.logger.Error("History flush failed", zap.Error(err))
			}
			timer.Reset(s.interval(ctx))
		}
	}
}

// interval picks the flush period from the current queue depth.
func (s *Scheduler) interval(ctx context.Context) time.Duration {
	depth, err := s.writer.Depth(ctx)
	if err != nil {
		return s.opts.Interval
	}
	if depth > s.opts.HighWater {
		return s.opts.FastInterval
	}
	return s.opts.Interval
}

// drain empties the queue at shutdown without blocking indefinitely.
func (s *Scheduler) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		n, err := s.writer.FlushBatch(ctx, s.opts.BatchSize)
		if err != nil || n == 0 {
			if err != nil {
				s.logger.Error("History drain stopped on error", zap.Error(err))
			}
			return
		}
	}
}
