package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dutysync/internal/models"
)

func seedDriver(t *testing.T, m *MemoryStore) models.Driver {
	t.Helper()
	ctx := context.Background()
	u := models.User{Name: "Driver", Email: "driver@fleet.test", Role: "driver"}
	require.NoError(t, m.CreateUser(ctx, &u))
	d := models.Driver{UserID: u.ID, Active: true, ActiveStatus: "active", LocationStatus: "offline"}
	require.NoError(t, m.CreateDriver(ctx, &d))
	return d
}

// Merges write only the named columns; everything else on the record keeps
// its value. A position write followed by a status write leaves both sets
// intact.
func TestMergeDriverIsPartial(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := seedDriver(t, m)

	require.NoError(t, m.MergeDriver(ctx, d.ID, Patch{
		"latitude":       -1.292,
		"longitude":      36.822,
		"last_updated":   ServerTime{},
		"locationstatus": "online",
	}))
	require.NoError(t, m.MergeDriver(ctx, d.ID, Patch{
		"active":        false,
		"active_status": "in-progress",
	}))

	got, err := m.GetDriver(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, -1.292, got.Latitude)
	assert.Equal(t, 36.822, got.Longitude)
	assert.Equal(t, "online", got.LocationStatus)
	assert.NotNil(t, got.LastUpdated)
	assert.False(t, got.Active)
	assert.Equal(t, "in-progress", got.ActiveStatus)
}

func TestMergeRejectsUnknownColumn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := seedDriver(t, m)

	err := m.MergeDriver(ctx, d.ID, Patch{"no_such_column": 1})
	assert.Error(t, err)

	err = m.MergeDriver(ctx, d.ID+99, Patch{"active": true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementAccumulates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := seedDriver(t, m)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.MergeDriver(ctx, d.ID, Patch{"total_kilometers": Increment{By: 12.5}}))
		require.NoError(t, m.MergeUser(ctx, d.UserID, Patch{"total_kms": Increment{By: 12.5}}))
	}

	driver, err := m.GetDriver(ctx, d.ID)
	require.NoError(t, err)
	assert.InDelta(t, 37.5, driver.TotalKilometers, 1e-9)

	user, err := m.GetUser(ctx, d.UserID)
	require.NoError(t, err)
	assert.InDelta(t, 37.5, user.TotalKms, 1e-9)
}

// The status precondition on TransitionTask admits exactly one winner no
// matter how many writers race on the same task.
func TestTransitionTaskSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := seedDriver(t, m)

	task := models.Task{DriverID: d.ID, Status: models.TaskAssigned, TourDate: "2025-01-01"}
	require.NoError(t, m.CreateTask(ctx, &task))

	const writers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.TransitionTask(ctx, task.ID, models.TaskAssigned, Patch{
				"status":     models.TaskInProgress,
				"opening_km": 100.0,
				"started_at": ServerTime{},
			})
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won)

	got, err := m.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestTransitionTaskWrongState(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := seedDriver(t, m)

	task := models.Task{DriverID: d.ID, Status: models.TaskCompleted}
	require.NoError(t, m.CreateTask(ctx, &task))

	ok, err := m.TransitionTask(ctx, task.ID, models.TaskAssigned, Patch{"status": models.TaskInProgress})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.TransitionTask(ctx, task.ID+99, models.TaskAssigned, Patch{"status": models.TaskInProgress})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListTasksFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := seedDriver(t, m)
	other := seedDriverWithEmail(t, m, "other@fleet.test")

	mk := func(driverID uint, status, date string) {
		task := models.Task{DriverID: driverID, Status: status, TourDate: date}
		require.NoError(t, m.CreateTask(ctx, &task))
	}
	mk(d.ID, models.TaskAssigned, "2025-01-01")
	mk(d.ID, models.TaskInProgress, "2025-01-02")
	mk(d.ID, models.TaskCompleted, "2025-01-03")
	mk(other.ID, models.TaskAssigned, "2025-01-02")

	got, err := m.ListTasks(ctx, TaskFilter{DriverID: d.ID})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = m.ListTasks(ctx, TaskFilter{DriverID: d.ID, Statuses: []string{models.TaskAssigned, models.TaskInProgress}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = m.ListTasks(ctx, TaskFilter{TourDate: "2025-01-02"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = m.ListTasks(ctx, TaskFilter{DriverID: d.ID, FromDate: "2025-01-02", ToDate: "2025-01-03"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func seedDriverWithEmail(t *testing.T, m *MemoryStore, email string) models.Driver {
	t.Helper()
	ctx := context.Background()
	u := models.User{Name: "Driver", Email: email, Role: "driver"}
	require.NoError(t, m.CreateUser(ctx, &u))
	d := models.Driver{UserID: u.ID, Active: true, ActiveStatus: "active"}
	require.NoError(t, m.CreateDriver(ctx, &d))
	return d
}

func TestLocationTrail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := seedDriver(t, m)

	base := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		rec := models.LocationHistory{
			DriverID:  d.ID,
			Latitude:  -1.29 + float64(i)*0.001,
			Longitude: 36.82,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, m.AppendLocation(ctx, &rec))
	}

	last, err := m.LastLocation(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(3*time.Hour), last.Timestamp)

	_, err = m.LastLocation(ctx, d.ID+99)
	assert.ErrorIs(t, err, ErrNotFound)

	day, err := m.ListLocations(ctx, d.ID, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, day, 3)
	assert.True(t, day[0].Timestamp.Before(day[1].Timestamp))
}

func TestDuplicateEmailRejected(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u1 := models.User{Name: "A", Email: "dup@fleet.test"}
	require.NoError(t, m.CreateUser(ctx, &u1))
	u2 := models.User{Name: "B", Email: "dup@fleet.test"}
	assert.Error(t, m.CreateUser(ctx, &u2))
}
