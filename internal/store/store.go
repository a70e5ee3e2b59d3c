// Package store is the persistence boundary for the dispatch core. The
// interface keeps the document-database semantics the rest of the system is
// written against: partial-merge patches, atomic numeric increments,
// server-generated timestamps and conditional status transitions.
package store

import (
	"context"
	"errors"
	"time"

	"dutysync/internal/models"
)

var ErrNotFound = errors.New("not found")

// Patch is a partial-merge write: only the named columns are touched, so two
// writers with disjoint field sets never clobber each other.
type Patch map[string]any

// Increment marks a Patch value as an atomic numeric increment.
type Increment struct{ By float64 }

// ServerTime marks a Patch value to be filled with the store's clock.
type ServerTime struct{}

type TaskFilter struct {
	DriverID uint     // 0 = any driver
	Statuses []string // empty = any status
	TourDate string   // exact date, YYYY-MM-DD
	FromDate string   // inclusive range on tour date
	ToDate   string
}

// Store is implemented by the GORM/Postgres store and by the in-memory
// store used in tests.
type Store interface {
	// users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	MergeUser(ctx context.Context, id uint, patch Patch) error

	// drivers
	CreateDriver(ctx context.Context, d *models.Driver) error
	GetDriver(ctx context.Context, id uint) (models.Driver, error)
	GetDriverByUserID(ctx context.Context, userID uint) (models.Driver, error)
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	MergeDriver(ctx context.Context, id uint, patch Patch) error

	// tasks
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id uint) (models.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error)
	// TransitionTask applies patch only while the task status still equals
	// from. Returns false when that precondition fails, which is how
	// concurrent lifecycle calls for the same task lose the race.
	TransitionTask(ctx context.Context, id uint, from string, patch Patch) (bool, error)
	DeleteTask(ctx context.Context, id uint) error

	// location trail
	AppendLocation(ctx context.Context, rec *models.LocationHistory) error
	LastLocation(ctx context.Context, driverID uint) (models.LocationHistory, error)
	ListLocations(ctx context.Context, driverID uint, from, to time.Time) ([]models.LocationHistory, error)

	// InTx runs fn against a transactional view of the store. fn returning
	// an error rolls every write back.
	InTx(ctx context.Context, fn func(Store) error) error
}
