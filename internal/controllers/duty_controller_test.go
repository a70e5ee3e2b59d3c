package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dutysync/internal/dispatch"
	"dutysync/internal/models"
	"dutysync/internal/session"
	"dutysync/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type dutyTestEnv struct {
	dc     *DutyController
	st     *store.MemoryStore
	user   models.User
	driver models.Driver
	taskID uint
}

// A fresh driver (zero odometer history) with one assigned duty.
func newDutyTestEnv(t *testing.T) *dutyTestEnv {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	adminUser := models.User{Name: "Ops", Email: "ops@fleet.test", Role: session.RoleAdmin}
	require.NoError(t, st.CreateUser(ctx, &adminUser))
	user := models.User{Name: "Ravi", Email: "ravi@fleet.test", Role: session.RoleDriver}
	require.NoError(t, st.CreateUser(ctx, &user))
	driver := models.Driver{UserID: user.ID, Active: true, ActiveStatus: "active"}
	require.NoError(t, st.CreateDriver(ctx, &driver))

	core := dispatch.NewController(st, nil, nil)
	taskID, err := core.Assign(ctx, &session.Session{UserID: adminUser.ID, Role: session.RoleAdmin}, dispatch.AssignInput{
		DriverID:     driver.ID,
		Passenger:    models.Passenger{Name: "Dr. Rao"},
		TourLocation: "Airport T2",
		TourDate:     "2025-03-14",
		TourTime:     "09:30",
	})
	require.NoError(t, err)

	return &dutyTestEnv{
		dc:     &DutyController{Core: core, Store: st},
		st:     st,
		user:   user,
		driver: driver,
		taskID: taskID,
	}
}

// driverContext builds a gin context the way RequireAuth leaves it, with a
// JSON body and the duty id path param.
func (e *dutyTestEnv) driverContext(t *testing.T, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: strconv.FormatUint(uint64(e.taskID), 10)}}
	c.Set("user_id", float64(e.user.ID)) // jwt.MapClaims numbers arrive as float64
	c.Set("role", session.RoleDriver)
	return c, w
}

// An opening reading of 0 is legal for a driver with no trip history; the
// binding layer must not reject it as a missing field.
func TestStartDutyAcceptsZeroOpeningReading(t *testing.T) {
	e := newDutyTestEnv(t)

	c, w := e.driverContext(t, gin.H{"opening_km": 0})
	e.dc.StartDuty(c)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	task, err := e.st.GetTask(context.Background(), e.taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, task.Status)
	assert.Equal(t, 0.0, task.OpeningKm)
}

func TestStartDutyRejectsMissingOpeningReading(t *testing.T) {
	e := newDutyTestEnv(t)

	c, w := e.driverContext(t, gin.H{})
	e.dc.StartDuty(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// A zero closing reading binds fine and is rejected by the core with the
// odometer reason, not by the binding layer.
func TestCompleteDutyZeroClosingReportsOdometerReason(t *testing.T) {
	e := newDutyTestEnv(t)
	ctx := context.Background()
	sess := &session.Session{UserID: e.user.ID, Role: session.RoleDriver}
	require.NoError(t, e.dc.Core.Start(ctx, sess, e.taskID, 0))

	c, w := e.driverContext(t, gin.H{"closing_km": 0})
	e.dc.CompleteDuty(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "odometer-regression", resp.Reason)
}
