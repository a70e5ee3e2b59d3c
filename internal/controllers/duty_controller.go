package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dutysync/internal/dispatch"
	"dutysync/internal/models"
	"dutysync/internal/session"
	"dutysync/internal/store"
)

// DutyController exposes the duty lifecycle over HTTP. All state changes go
// through the dispatch core; this layer only binds payloads and maps the
// error taxonomy onto status codes.
type DutyController struct {
	Core  *dispatch.Controller
	Store store.Store
}

// Odometer readings bind through pointers: 0 is a legal reading for a
// first-trip driver, only an absent field is a bad request.
type startPayload struct {
	OpeningKm *float64 `json:"opening_km" binding:"required"`
}

type completePayload struct {
	ClosingKm    *float64 `json:"closing_km" binding:"required"`
	FuelQuantity float64  `json:"fuel_quantity"`
	FuelAmount   float64  `json:"fuel_amount"`
}

func taskIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid duty ID format."})
		return 0, false
	}
	return uint(id), true
}

// writeCoreError maps dispatch errors: validation problems are the caller's
// to fix, sync failures get a retry affordance.
func writeCoreError(c *gin.Context, err error) {
	var ve *dispatch.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ve.Message, "reason": ve.Reason})
		return
	}
	if errors.Is(err, dispatch.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": "Sync failed, please retry.", "detail": err.Error()})
}

// AssignDuty creates a duty for a driver (admin).
func (dc *DutyController) AssignDuty(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	var input dispatch.AssignInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	taskID, err := dc.Core.Assign(c.Request.Context(), sess, input)
	if err != nil {
		writeCoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Duty assigned successfully.",
		"task_id": taskID,
	})
}

// CancelDuty deletes a non-completed duty and requeues its driver (admin).
func (dc *DutyController) CancelDuty(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}
	if err := dc.Core.Cancel(c.Request.Context(), sess, taskID); err != nil {
		writeCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Duty cancelled, driver set to active."})
}

// ListDuties returns duty records with optional status/date/driver filters
// (admin duty-records board).
func (dc *DutyController) ListDuties(c *gin.Context) {
	f := store.TaskFilter{
		TourDate: c.Query("date"),
		FromDate: c.Query("from"),
		ToDate:   c.Query("to"),
	}
	if st := c.Query("status"); st != "" {
		f.Statuses = []string{st}
	}
	if d := c.Query("driver_id"); d != "" {
		id, err := strconv.ParseUint(d, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver_id filter."})
			return
		}
		f.DriverID = uint(id)
	}
	tasks, err := dc.Store.ListTasks(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing duties: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks, "count": len(tasks)})
}

// MyDuties lists the calling driver's duties; mode=active keeps only
// assigned and in-progress ones.
func (dc *DutyController) MyDuties(c *gin.Context) {
	driver, ok := dc.sessionDriver(c)
	if !ok {
		return
	}
	f := store.TaskFilter{DriverID: driver.ID}
	if c.DefaultQuery("mode", "all") == "active" {
		f.Statuses = []string{models.TaskAssigned, models.TaskInProgress}
	}
	tasks, err := dc.Store.ListTasks(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing duties: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks, "count": len(tasks)})
}

// StartDuty begins an assigned duty at the given odometer reading.
func (dc *DutyController) StartDuty(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}
	var payload startPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := dc.Core.Start(c.Request.Context(), sess, taskID, *payload.OpeningKm); err != nil {
		writeCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Duty started."})
}

// CompleteDuty closes an in-progress duty with odometer and fuel readings.
func (dc *DutyController) CompleteDuty(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return
	}
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}
	var payload completePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	err = dc.Core.Complete(c.Request.Context(), sess, taskID,
		*payload.ClosingKm, payload.FuelQuantity, payload.FuelAmount)
	if err != nil {
		writeCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Journey completed successfully!"})
}

// MyRecord returns the calling driver's operational record and totals.
func (dc *DutyController) MyRecord(c *gin.Context) {
	driver, ok := dc.sessionDriver(c)
	if !ok {
		return
	}
	user, err := dc.Store.GetUser(c.Request.Context(), driver.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load user record."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"driver":    driver,
		"total_kms": user.TotalKms,
	})
}

func (dc *DutyController) sessionDriver(c *gin.Context) (driver models.Driver, ok bool) {
	sess, err := session.FromGin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		return driver, false
	}
	driver, err = dc.Store.GetDriverByUserID(c.Request.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No operational record for this user."})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error fetching driver."})
		}
		return driver, false
	}
	return driver, true
}
