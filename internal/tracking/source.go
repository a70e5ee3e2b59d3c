package tracking

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	logrus "github.com/sirupsen/logrus"

	"dutysync/internal/geo"
)

// Sample is one device position fix.
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Speed     float64   `json:"speed"`
	At        time.Time `json:"at"`
}

// WatchOptions is the reporting schedule: a sample is delivered every
// Interval, or sooner once the device has moved MinDistance meters,
// whichever fires first.
type WatchOptions struct {
	Interval    time.Duration
	MinDistance float64
}

// DefaultWatchOptions matches the 30s / 10m schedule duty tracking uses.
var DefaultWatchOptions = WatchOptions{Interval: 30 * time.Second, MinDistance: 10}

// PermissionError reports a denied location grant. Grant names the missing
// capability so the caller can tell the user exactly what to enable.
type PermissionError struct {
	Grant  string // "foreground" or "background"
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s location permission denied: %s", e.Grant, e.Reason)
}

// Source is the device geolocation collaborator: two permission tiers plus
// a scheduled position watch.
type Source interface {
	RequestForegroundPermission(ctx context.Context) error
	RequestBackgroundPermission(ctx context.Context) error
	// Watch delivers samples per opts until ctx is cancelled. The channel
	// closes when the watch ends.
	Watch(ctx context.Context, opts WatchOptions) (<-chan Sample, error)
}

// StreamSource adapts a JSON-lines fix feed (a GPS daemon piped to the
// agent) into a Source. Permission grants are decided by host configuration
// since a headless agent has no consent prompt to show.
type StreamSource struct {
	r                 io.Reader
	allowForeground   bool
	allowBackground   bool
}

func NewStreamSource(r io.Reader, allowForeground, allowBackground bool) *StreamSource {
	return &StreamSource{r: r, allowForeground: allowForeground, allowBackground: allowBackground}
}

func (s *StreamSource) RequestForegroundPermission(context.Context) error {
	if !s.allowForeground {
		return &PermissionError{Grant: "foreground", Reason: "disabled by host configuration"}
	}
	return nil
}

func (s *StreamSource) RequestBackgroundPermission(context.Context) error {
	if !s.allowBackground {
		return &PermissionError{Grant: "background", Reason: "disabled by host configuration"}
	}
	return nil
}

// Watch reads raw fixes off the stream and applies the time/distance
// schedule: a fix is forwarded when MinDistance has been covered since the
// last forwarded fix or Interval has elapsed, whichever happens first.
func (s *StreamSource) Watch(ctx context.Context, opts WatchOptions) (<-chan Sample, error) {
	out := make(chan Sample, 1)
	go func() {
		defer close(out)
		var last *Sample
		var lastSent time.Time
		scanner := bufio.NewScanner(s.r)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var sample Sample
			if err := json.Unmarshal(scanner.Bytes(), &sample); err != nil {
				logrus.WithError(err).Debug("Skipping malformed fix line.")
				continue
			}
			if sample.At.IsZero() {
				sample.At = time.Now()
			}
			if last != nil {
				moved := geo.DistanceMeters(last.Latitude, last.Longitude, sample.Latitude, sample.Longitude)
				if moved < opts.MinDistance && sample.At.Sub(lastSent) < opts.Interval {
					continue
				}
			}
			cp := sample
			last = &cp
			lastSent = sample.At
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
