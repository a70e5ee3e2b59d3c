package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"dutysync/internal/models"
)

// GormStore is the production Store backed by Postgres through GORM.
// Patches become column-targeted UPDATEs, Increment becomes `col = col + ?`
// and ServerTime becomes NOW(), so merge and increment semantics hold even
// with several server instances on one database.
type GormStore struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) sqlPatch(patch Patch) map[string]any {
	vals := make(map[string]any, len(patch))
	for col, v := range patch {
		switch t := v.(type) {
		case Increment:
			vals[col] = gorm.Expr(col+" + ?", t.By)
		case ServerTime:
			vals[col] = gorm.Expr("NOW()")
		default:
			vals[col] = v
		}
	}
	return vals
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- users ---

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	return u, wrapNotFound(err)
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Preload("Driver").First(&u).Error
	return u, wrapNotFound(err)
}

func (s *GormStore) MergeUser(ctx context.Context, id uint, patch Patch) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(s.sqlPatch(patch))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- drivers ---

func (s *GormStore) CreateDriver(ctx context.Context, d *models.Driver) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *GormStore) GetDriver(ctx context.Context, id uint) (models.Driver, error) {
	var d models.Driver
	err := s.db.WithContext(ctx).First(&d, id).Error
	return d, wrapNotFound(err)
}

func (s *GormStore) GetDriverByUserID(ctx context.Context, userID uint) (models.Driver, error) {
	var d models.Driver
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&d).Error
	return d, wrapNotFound(err)
}

func (s *GormStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	var drivers []models.Driver
	err := s.db.WithContext(ctx).Preload("User").Order("id").Find(&drivers).Error
	return drivers, err
}

func (s *GormStore) MergeDriver(ctx context.Context, id uint, patch Patch) error {
	res := s.db.WithContext(ctx).Model(&models.Driver{}).Where("id = ?", id).Updates(s.sqlPatch(patch))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- tasks ---

func (s *GormStore) CreateTask(ctx context.Context, t *models.Task) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormStore) GetTask(ctx context.Context, id uint) (models.Task, error) {
	var t models.Task
	err := s.db.WithContext(ctx).First(&t, id).Error
	return t, wrapNotFound(err)
}

func (s *GormStore) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	q := s.db.WithContext(ctx).Model(&models.Task{})
	if f.DriverID != 0 {
		q = q.Where("driver_id = ?", f.DriverID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.TourDate != "" {
		q = q.Where("tour_date = ?", f.TourDate)
	}
	if f.FromDate != "" {
		q = q.Where("tour_date >= ?", f.FromDate)
	}
	if f.ToDate != "" {
		q = q.Where("tour_date <= ?", f.ToDate)
	}
	var tasks []models.Task
	err := q.Order("created_at desc").Find(&tasks).Error
	return tasks, err
}

func (s *GormStore) TransitionTask(ctx context.Context, id uint, from string, patch Patch) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ?", id, from).
		Updates(s.sqlPatch(patch))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) DeleteTask(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Task{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- location trail ---

func (s *GormStore) AppendLocation(ctx context.Context, rec *models.LocationHistory) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) LastLocation(ctx context.Context, driverID uint) (models.LocationHistory, error) {
	var rec models.LocationHistory
	err := s.db.WithContext(ctx).Where("driver_id = ?", driverID).Order("created_at desc").First(&rec).Error
	return rec, wrapNotFound(err)
}

func (s *GormStore) ListLocations(ctx context.Context, driverID uint, from, to time.Time) ([]models.LocationHistory, error) {
	var recs []models.LocationHistory
	err := s.db.WithContext(ctx).
		Where("driver_id = ? AND timestamp >= ? AND timestamp < ?", driverID, from, to).
		Order("timestamp").
		Find(&recs).Error
	return recs, err
}

func (s *GormStore) InTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}
