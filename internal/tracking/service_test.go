package tracking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dutysync/internal/store"
)

type fakeSource struct {
	mu         sync.Mutex
	denyFg     bool
	denyBg     bool
	watchCount int
	ch         chan Sample
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan Sample, 8)}
}

func (f *fakeSource) RequestForegroundPermission(context.Context) error {
	if f.denyFg {
		return &PermissionError{Grant: "foreground", Reason: "denied"}
	}
	return nil
}

func (f *fakeSource) RequestBackgroundPermission(context.Context) error {
	if f.denyBg {
		return &PermissionError{Grant: "background", Reason: "denied"}
	}
	return nil
}

func (f *fakeSource) Watch(ctx context.Context, _ WatchOptions) (<-chan Sample, error) {
	f.mu.Lock()
	f.watchCount++
	f.mu.Unlock()
	out := make(chan Sample)
	go func() {
		defer close(out)
		for {
			select {
			case s, ok := <-f.ch:
				if !ok {
					return
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeSource) watches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchCount
}

type mergeCall struct {
	driverID uint
	patch    store.Patch
}

type fakeRecorder struct {
	mu    sync.Mutex
	fail  bool
	calls []mergeCall
}

func (f *fakeRecorder) MergeDriver(_ context.Context, id uint, patch store.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write refused")
	}
	f.calls = append(f.calls, mergeCall{driverID: id, patch: patch})
	return nil
}

func (f *fakeRecorder) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRecorder) last() mergeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func boundSlot(t *testing.T, driverID uint) Slot {
	t.Helper()
	slot, err := NewFileSlot(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, slot.Store(driverID))
	return slot
}

func TestStartIsIdempotent(t *testing.T) {
	src := newFakeSource()
	rec := &fakeRecorder{}
	svc := NewService(src, boundSlot(t, 7), rec, DefaultWatchOptions)
	defer svc.Stop(context.Background())

	status, err := svc.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusTracking, status)

	// Second start must not register another watch.
	status, err = svc.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusTracking, status)
	assert.Equal(t, 1, src.watches())
	assert.True(t, svc.Tracking())
}

func TestStartFailsClosedOnDeniedPermission(t *testing.T) {
	for _, tc := range []struct {
		name  string
		deny  func(*fakeSource)
		grant string
	}{
		{"foreground", func(s *fakeSource) { s.denyFg = true }, "foreground"},
		{"background", func(s *fakeSource) { s.denyBg = true }, "background"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := newFakeSource()
			tc.deny(src)
			svc := NewService(src, boundSlot(t, 7), &fakeRecorder{}, DefaultWatchOptions)

			status, err := svc.Start(context.Background())
			assert.Equal(t, StatusError, status)
			var perr *PermissionError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.grant, perr.Grant)
			assert.False(t, svc.Tracking())
		})
	}
}

func TestReportMergesPositionIntoSlotDriver(t *testing.T) {
	src := newFakeSource()
	rec := &fakeRecorder{}
	svc := NewService(src, boundSlot(t, 42), rec, DefaultWatchOptions)
	defer svc.Stop(context.Background())

	_, err := svc.Start(context.Background())
	require.NoError(t, err)

	src.ch <- Sample{Latitude: -1.2921, Longitude: 36.8219, At: time.Now()}
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	call := rec.last()
	assert.Equal(t, uint(42), call.driverID)
	assert.Equal(t, -1.2921, call.patch["latitude"])
	assert.Equal(t, 36.8219, call.patch["longitude"])
	assert.Equal(t, LocationOnline, call.patch["locationstatus"])
	assert.IsType(t, store.ServerTime{}, call.patch["last_updated"])
}

// A cleared slot means the driver logged out while a callback was still
// scheduled; the fix is silently discarded.
func TestEmptySlotIsSilentNoOp(t *testing.T) {
	src := newFakeSource()
	rec := &fakeRecorder{}
	slot, err := NewFileSlot(t.TempDir())
	require.NoError(t, err)
	svc := NewService(src, slot, rec, DefaultWatchOptions)
	defer svc.Stop(context.Background())

	_, err = svc.Start(context.Background())
	require.NoError(t, err)

	src.ch <- Sample{Latitude: 1, Longitude: 1, At: time.Now()}
	src.ch <- Sample{Latitude: 2, Longitude: 2, At: time.Now()}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestFailedWriteIsDroppedNotRetried(t *testing.T) {
	src := newFakeSource()
	rec := &fakeRecorder{}
	rec.setFail(true)
	svc := NewService(src, boundSlot(t, 7), rec, DefaultWatchOptions)
	defer svc.Stop(context.Background())

	_, err := svc.Start(context.Background())
	require.NoError(t, err)

	src.ch <- Sample{Latitude: 1, Longitude: 1, At: time.Now()}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	// The next fix supersedes the dropped one once writes recover.
	rec.setFail(false)
	src.ch <- Sample{Latitude: 3, Longitude: 4, At: time.Now()}
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3.0, rec.last().patch["latitude"])
}

func TestStopMarksOfflineAndKeepsSlot(t *testing.T) {
	src := newFakeSource()
	rec := &fakeRecorder{}
	slot := boundSlot(t, 9)
	svc := NewService(src, slot, rec, DefaultWatchOptions)

	_, err := svc.Start(context.Background())
	require.NoError(t, err)

	svc.Stop(context.Background())
	assert.False(t, svc.Tracking())

	require.Equal(t, 1, rec.count())
	call := rec.last()
	assert.Equal(t, uint(9), call.driverID)
	assert.Equal(t, store.Patch{"locationstatus": LocationOffline}, call.patch)

	// Slot survives a stop; only logout clears it.
	id, ok, err := slot.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(9), id)

	// Stop on an already stopped service is a no-op.
	svc.Stop(context.Background())
	assert.Equal(t, 1, rec.count())
}

func TestFileSlotRoundTrip(t *testing.T) {
	slot, err := NewFileSlot(t.TempDir())
	require.NoError(t, err)

	_, ok, err := slot.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, slot.Store(1234))
	id, ok, err := slot.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(1234), id)

	require.NoError(t, slot.Clear())
	_, ok, err = slot.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing an already empty slot is fine.
	require.NoError(t, slot.Clear())
}

func TestStreamSourceSchedule(t *testing.T) {
	feed := `{"latitude":-1.2900,"longitude":36.8200,"at":"2025-01-15T08:00:00Z"}
not json
{"latitude":-1.2900,"longitude":36.8200,"at":"2025-01-15T08:00:05Z"}
{"latitude":-1.2950,"longitude":36.8200,"at":"2025-01-15T08:00:10Z"}
{"latitude":-1.2950,"longitude":36.8200,"at":"2025-01-15T08:01:00Z"}
`
	src := NewStreamSource(strings.NewReader(feed), true, true)
	ch, err := src.Watch(context.Background(), WatchOptions{Interval: 30 * time.Second, MinDistance: 10})
	require.NoError(t, err)

	var got []Sample
	for s := range ch {
		got = append(got, s)
	}

	// First fix always passes, the 5s/0m repeat is suppressed, the ~550m
	// jump passes on distance, the stationary fix passes on elapsed time.
	require.Len(t, got, 3)
	assert.Equal(t, -1.2900, got[0].Latitude)
	assert.Equal(t, -1.2950, got[1].Latitude)
	assert.Equal(t, time.Date(2025, 1, 15, 8, 1, 0, 0, time.UTC), got[2].At)
}
