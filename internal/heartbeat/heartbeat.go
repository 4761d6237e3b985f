// Package heartbeat periodically assembles a snapshot and hands it to the
// configured sinks (HTTP endpoint, NATS).
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stone-age-io/factagent/internal/snapshot"
	"go.uber.org/zap"
)

// Assembler builds snapshot envelopes
type Assembler interface {
	Assemble(ctx context.Context) *snapshot.Envelope
}

// Sink delivers an encoded snapshot
type Sink interface {
	Name() string
	Send(ctx context.Context, payload []byte) error
}

// Recorder counts upload outcomes
type Recorder interface {
	HeartbeatPost(err error)
}

// Service runs the snapshot job on a fixed interval
type Service struct {
	scheduler gocron.Scheduler
	assembler Assembler
	sinks     []Sink
	interval  time.Duration
	recorder  Recorder
	logger    *zap.Logger
}

// New creates the service. recorder may be nil.
func New(assembler Assembler, sinks []Sink, interval time.Duration, recorder Recorder, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Service{
		scheduler: scheduler,
		assembler: assembler,
		sinks:     sinks,
		interval:  interval,
		recorder:  recorder,
		logger:    logger,
	}, nil
}

// Start schedules the job, first run immediately. A tick that fires while
// the previous run is still going is skipped and the job moves on to the
// following interval.
func (s *Service) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.RunOnce(ctx) }),
		gocron.WithName("snapshot"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule snapshot job: %w", err)
	}

	s.scheduler.Start()
	s.logger.Info("Heartbeat started",
		zap.Duration("interval", s.interval),
		zap.Int("sinks", len(s.sinks)))
	return nil
}

// RunOnce assembles one snapshot and sends it to every sink. Sink failures
// are logged and counted, never returned.
func (s *Service) RunOnce(ctx context.Context) {
	env := s.assembler.Assemble(ctx)
	payload, err := env.Bytes()
	if err != nil {
		s.logger.Error("Failed to encode snapshot", zap.Error(err))
		return
	}

	for _, sink := range s.sinks {
		err := sink.Send(ctx, payload)
		if s.recorder != nil {
			s.recorder.HeartbeatPost(err)
		}
		if err != nil {
			s.logger.Warn("Snapshot delivery failed",
				zap.String("sink", sink.Name()),
				zap.Error(err))
			continue
		}
		s.logger.Debug("Snapshot delivered",
			zap.String("sink", sink.Name()),
			zap.Int("bytes", len(payload)))
	}
}

// Shutdown stops the scheduler and waits for a running job
func (s *Service) Shutdown() error {
	return s.scheduler.Shutdown()
}
