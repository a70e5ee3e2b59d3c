// Package tracking is the background location reporter: it turns scheduled
// device fixes into partial-merge writes on the driver's operational
// record, keyed by a durable driver-id slot rather than any in-memory
// session, so reporting keeps working across process restarts.
package tracking

import (
	"context"
	"sync"

	logrus "github.com/sirupsen/logrus"

	"dutysync/internal/metrics"
	"dutysync/internal/store"
)

// Status of a Start call.
type Status string

const (
	StatusTracking Status = "tracking"
	StatusError    Status = "error"
)

const (
	LocationOnline  = "online"
	LocationOffline = "offline"
)

// Recorder is the slice of the store the reporter needs.
type Recorder interface {
	MergeDriver(ctx context.Context, id uint, patch store.Patch) error
}

type Service struct {
	src  Source
	slot Slot
	rec  Recorder
	opts WatchOptions
	log  *logrus.Entry

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewService(src Source, slot Slot, rec Recorder, opts WatchOptions) *Service {
	if opts.Interval <= 0 {
		opts = DefaultWatchOptions
	}
	return &Service{
		src:  src,
		slot: slot,
		rec:  rec,
		opts: opts,
		log:  logrus.WithField("component", "tracking"),
	}
}

// Start requests the foreground then the background grant and begins
// consuming the scheduled watch. Either denial fails closed with a
// PermissionError naming the missing capability. Calling Start while
// already running is a no-op that still reports StatusTracking.
func (s *Service) Start(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return StatusTracking, nil
	}

	if err := s.src.RequestForegroundPermission(ctx); err != nil {
		s.log.WithError(err).Warn("Foreground location permission missing; tracking not started.")
		return StatusError, err
	}
	if err := s.src.RequestBackgroundPermission(ctx); err != nil {
		s.log.WithError(err).Warn("Background location permission missing; tracking not started.")
		return StatusError, err
	}

	wctx, cancel := context.WithCancel(context.Background())
	ch, err := s.src.Watch(wctx, s.opts)
	if err != nil {
		cancel()
		return StatusError, err
	}

	s.cancel = cancel
	s.stopped = make(chan struct{})
	go s.run(wctx, ch, s.stopped)
	s.log.Info("Location tracking started.")
	return StatusTracking, nil
}

func (s *Service) run(ctx context.Context, ch <-chan Sample, stopped chan struct{}) {
	defer close(stopped)
	for sample := range ch {
		s.report(ctx, sample)
	}
}

// report performs one scheduled invocation: read the durable slot and merge
// the position into that driver's record. An empty slot (logout raced with
// a pending callback) is a silent no-op. A failed write is logged and
// dropped; the next invocation supersedes it, there is no retry queue.
func (s *Service) report(ctx context.Context, sample Sample) {
	driverID, ok, err := s.slot.Load()
	if err != nil {
		s.log.WithError(err).Warn("Could not read driver slot; dropping fix.")
		return
	}
	if !ok {
		return
	}

	err = s.rec.MergeDriver(ctx, driverID, store.Patch{
		"latitude":       sample.Latitude,
		"longitude":      sample.Longitude,
		"last_updated":   store.ServerTime{},
		"locationstatus": LocationOnline,
	})
	if err != nil {
		metrics.LocationWrites.WithLabelValues("error").Inc()
		s.log.WithError(err).WithField("driver_id", driverID).Warn("Position write failed; dropping fix.")
		return
	}
	metrics.LocationWrites.WithLabelValues("ok").Inc()
}

// Tracking reports whether the watch is running.
func (s *Service) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Stop cancels the watch and best-effort marks the driver offline. The
// durable slot is cleared by the logout path, not here, so a foregrounded
// relaunch can resume reporting for the same driver.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped

	if driverID, ok, _ := s.slot.Load(); ok {
		if err := s.rec.MergeDriver(ctx, driverID, store.Patch{"locationstatus": LocationOffline}); err != nil {
			s.log.WithError(err).Warn("Could not mark driver offline on stop.")
		}
	}
	s.log.Info("Location tracking stopped.")
}
