package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dutysync/internal/models"
)

// MemoryStore implements Store for tests and local development. Patch
// application mirrors the column semantics of the GORM store.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users     map[uint]models.User
	drivers   map[uint]models.Driver
	tasks     map[uint]models.Task
	locations []models.LocationHistory

	nextUser, nextDriver, nextTask, nextLoc uint
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:   map[uint]models.User{},
		drivers: map[uint]models.Driver{},
		tasks:   map[uint]models.Task{},
	}
}

func toF64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case uint:
		return float64(t), true
	}
	return 0, false
}

// --- users ---

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if other.Email == u.Email {
			return fmt.Errorf("duplicate email %q", u.Email)
		}
	}
	m.nextUser++
	u.ID = m.nextUser
	u.CreatedAt = time.Now()
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id uint) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *MemoryStore) MergeUser(_ context.Context, id uint, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	for col, v := range patch {
		switch col {
		case "name":
			u.Name = v.(string)
		case "phone":
			u.Phone = v.(string)
		case "total_kms":
			if inc, ok := v.(Increment); ok {
				u.TotalKms += inc.By
			} else if f, ok := toF64(v); ok {
				u.TotalKms = f
			}
		default:
			return fmt.Errorf("memory store: unknown user column %q", col)
		}
	}
	m.users[id] = u
	return nil
}

// --- drivers ---

func (m *MemoryStore) CreateDriver(_ context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDriver++
	d.ID = m.nextDriver
	d.CreatedAt = time.Now()
	m.drivers[d.ID] = *d
	return nil
}

func (m *MemoryStore) GetDriver(_ context.Context, id uint) (models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return models.Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryStore) GetDriverByUserID(_ context.Context, userID uint) (models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drivers {
		if d.UserID == userID {
			return d, nil
		}
	}
	return models.Driver{}, ErrNotFound
}

func (m *MemoryStore) ListDrivers(_ context.Context) ([]models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) MergeDriver(_ context.Context, id uint, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrNotFound
	}
	for col, v := range patch {
		switch col {
		case "active":
			d.Active = v.(bool)
		case "active_status":
			d.ActiveStatus = v.(string)
		case "last_trip_end_km":
			f, _ := toF64(v)
			d.LastTripEndKm = f
		case "total_kilometers":
			if inc, ok := v.(Increment); ok {
				d.TotalKilometers += inc.By
			} else if f, ok := toF64(v); ok {
				d.TotalKilometers = f
			}
		case "latitude":
			f, _ := toF64(v)
			d.Latitude = f
		case "longitude":
			f, _ := toF64(v)
			d.Longitude = f
		case "last_updated":
			now := time.Now()
			if ts, ok := v.(time.Time); ok {
				now = ts
			}
			d.LastUpdated = &now
		case "locationstatus":
			d.LocationStatus = v.(string)
		case "vehicle_number":
			d.VehicleNumber = v.(string)
		case "contact":
			d.Contact = v.(string)
		default:
			return fmt.Errorf("memory store: unknown driver column %q", col)
		}
	}
	m.drivers[id] = d
	return nil
}

// --- tasks ---

func (m *MemoryStore) CreateTask(_ context.Context, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTask++
	t.ID = m.nextTask
	t.CreatedAt = time.Now()
	m.tasks[t.ID] = *t
	return nil
}

func (m *MemoryStore) GetTask(_ context.Context, id uint) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) ListTasks(_ context.Context, f TaskFilter) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		if f.DriverID != 0 && t.DriverID != f.DriverID {
			continue
		}
		if len(f.Statuses) > 0 {
			match := false
			for _, st := range f.Statuses {
				if t.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if f.TourDate != "" && t.TourDate != f.TourDate {
			continue
		}
		if f.FromDate != "" && t.TourDate < f.FromDate {
			continue
		}
		if f.ToDate != "" && t.TourDate > f.ToDate {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) TransitionTask(_ context.Context, id uint, from string, patch Patch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	for col, v := range patch {
		switch col {
		case "status":
			t.Status = v.(string)
		case "opening_km":
			f, _ := toF64(v)
			t.OpeningKm = f
		case "closing_km":
			f, _ := toF64(v)
			t.ClosingKm = f
		case "kilometers":
			if inc, ok := v.(Increment); ok {
				t.Kilometers += inc.By
			} else if f, ok := toF64(v); ok {
				t.Kilometers = f
			}
		case "fuel_quantity":
			f, _ := toF64(v)
			t.FuelQuantity = f
		case "fuel_amount":
			f, _ := toF64(v)
			t.FuelAmount = f
		case "started_at":
			now := time.Now()
			t.StartedAt = &now
		case "completed_at":
			now := time.Now()
			t.CompletedAt = &now
		default:
			return false, fmt.Errorf("memory store: unknown task column %q", col)
		}
	}
	m.tasks[id] = t
	return true, nil
}

func (m *MemoryStore) DeleteTask(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

// --- location trail ---

func (m *MemoryStore) AppendLocation(_ context.Context, rec *models.LocationHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLoc++
	rec.ID = m.nextLoc
	rec.CreatedAt = time.Now()
	m.locations = append(m.locations, *rec)
	return nil
}

func (m *MemoryStore) LastLocation(_ context.Context, driverID uint) (models.LocationHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.locations) - 1; i >= 0; i-- {
		if m.locations[i].DriverID == driverID {
			return m.locations[i], nil
		}
	}
	return models.LocationHistory{}, ErrNotFound
}

func (m *MemoryStore) ListLocations(_ context.Context, driverID uint, from, to time.Time) ([]models.LocationHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LocationHistory
	for _, rec := range m.locations {
		if rec.DriverID != driverID {
			continue
		}
		if rec.Timestamp.Before(from) || !rec.Timestamp.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// InTx serializes transactions against each other. Writes are not rolled
// back on error; callers validate before writing, which is the same
// discipline the lifecycle uses against the real store.
func (m *MemoryStore) InTx(_ context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}
