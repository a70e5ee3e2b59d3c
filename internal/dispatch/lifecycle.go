package dispatch

import (
	"context"
	"errors"

	logrus "github.com/sirupsen/logrus"

	"dutysync/internal/metrics"
	"dutysync/internal/models"
	"dutysync/internal/realtime"
	"dutysync/internal/session"
	"dutysync/internal/store"
)

// TrackingSignal lets the lifecycle nudge the location reporter. Start
// signals ensure-running for the driver's device; the call is idempotent on
// the receiving side and failures are logged, never fatal to the duty.
type TrackingSignal interface {
	EnsureReporting(ctx context.Context, driverID uint) error
}

// Controller owns the duty state machine: assigned -> in-progress ->
// completed, no skips, no backward moves. Every operation validates against
// the current record, then applies the task write first and the paired
// driver write second inside one transaction.
type Controller struct {
	st       store.Store
	tracking TrackingSignal
	events   realtime.Broker
	log      *logrus.Entry
}

func NewController(st store.Store, tracking TrackingSignal, events realtime.Broker) *Controller {
	return &Controller{
		st:       st,
		tracking: tracking,
		events:   events,
		log:      logrus.WithField("component", "dispatch"),
	}
}

type AssignInput struct {
	DriverID     uint             `json:"driver_id"`
	Passenger    models.Passenger `json:"passenger"`
	TourLocation string           `json:"tour_location"`
	TourDate     string           `json:"tour_date"`
	TourTime     string           `json:"tour_time"`
	Notes        string           `json:"notes"`
}

// Assign creates a duty in "assigned" and moves the driver Available ->
// Assigned. Admin only.
func (c *Controller) Assign(ctx context.Context, sess *session.Session, in AssignInput) (uint, error) {
	if !sess.IsAdmin() {
		return 0, ErrForbidden
	}
	switch {
	case in.DriverID == 0:
		return 0, validationErr(ReasonMissingField, "driver is required")
	case in.Passenger.Name == "":
		return 0, validationErr(ReasonMissingField, "passenger name is required")
	case in.TourLocation == "":
		return 0, validationErr(ReasonMissingField, "tour location is required")
	case in.TourDate == "":
		return 0, validationErr(ReasonMissingField, "tour date is required")
	case in.TourTime == "":
		return 0, validationErr(ReasonMissingField, "tour time is required")
	}

	task := models.Task{
		DriverID:     in.DriverID,
		Status:       models.TaskAssigned,
		Passenger:    in.Passenger,
		TourLocation: in.TourLocation,
		TourDate:     in.TourDate,
		TourTime:     in.TourTime,
		Notes:        in.Notes,
	}

	err := c.st.InTx(ctx, func(tx store.Store) error {
		driver, err := tx.GetDriver(ctx, in.DriverID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return validationErr(ReasonMissingField, "driver %d does not exist", in.DriverID)
			}
			return syncErr("driver read", err)
		}
		state, err := RecordState(driver)
		if err != nil {
			return err
		}
		if state != StateAvailable {
			return validationErr(ReasonDriverUnavailable, "driver %d is %s", in.DriverID, state)
		}
		if err := tx.CreateTask(ctx, &task); err != nil {
			return syncErr("task create", err)
		}
		return SetOperationalState(ctx, tx, in.DriverID, StateAssigned)
	})
	if err != nil {
		metrics.DutyTransitions.WithLabelValues("assign", "rejected").Inc()
		return 0, err
	}

	metrics.DutyTransitions.WithLabelValues("assign", "ok").Inc()
	c.log.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"driver_id": in.DriverID,
	}).Info("Duty assigned.")
	c.publish("duty.assigned", task)
	return task.ID, nil
}

// Start moves an assigned duty to in-progress after validating odometer
// monotonicity against the driver's trip history, then flips the driver to
// OnTrip and signals the location reporter.
func (c *Controller) Start(ctx context.Context, sess *session.Session, taskID uint, startOdometer float64) error {
	driver, task, err := c.loadOwned(ctx, sess, taskID)
	if err != nil {
		metrics.DutyTransitions.WithLabelValues("start", "rejected").Inc()
		return err
	}
	if task.Status != models.TaskAssigned {
		metrics.DutyTransitions.WithLabelValues("start", "rejected").Inc()
		return validationErr(ReasonInvalidTransition, "duty %d is not awaiting start", taskID)
	}

	// LastTripEndKm defaults to 0 for a first trip; a driver can never
	// understate mileage relative to their own history.
	if startOdometer < driver.LastTripEndKm {
		metrics.OdometerRejections.Inc()
		metrics.DutyTransitions.WithLabelValues("start", "rejected").Inc()
		return validationErr(ReasonOdometerRegression,
			"start odometer %.1f is below last trip end %.1f", startOdometer, driver.LastTripEndKm)
	}

	err = c.st.InTx(ctx, func(tx store.Store) error {
		// Task first: it is the source of truth for what happened. The
		// status precondition makes concurrent starts lose cleanly.
		ok, err := tx.TransitionTask(ctx, taskID, models.TaskAssigned, store.Patch{
			"status":     models.TaskInProgress,
			"opening_km": startOdometer,
			"started_at": store.ServerTime{},
		})
		if err != nil {
			return syncErr("task start write", err)
		}
		if !ok {
			return validationErr(ReasonInvalidTransition, "duty %d is not awaiting start", taskID)
		}
		return SetOperationalState(ctx, tx, driver.ID, StateOnTrip)
	})
	if err != nil {
		metrics.DutyTransitions.WithLabelValues("start", "rejected").Inc()
		return err
	}

	metrics.DutyTransitions.WithLabelValues("start", "ok").Inc()
	c.log.WithFields(logrus.Fields{
		"task_id":    taskID,
		"driver_id":  driver.ID,
		"opening_km": startOdometer,
	}).Info("Duty started.")

	if c.tracking != nil {
		if err := c.tracking.EnsureReporting(ctx, driver.ID); err != nil {
			c.log.WithError(err).WithField("driver_id", driver.ID).
				Warn("Could not signal location reporting; duty is already in progress.")
		}
	}

	task.Status = models.TaskInProgress
	task.OpeningKm = startOdometer
	c.publish("duty.started", task)
	return nil
}

// Complete closes an in-progress duty: derives the trip distance, flips the
// driver back to Available with the new odometer floor and atomically adds
// the distance to the driver's and the user's lifetime totals. Location
// reporting keeps running across duties; it stops only at logout.
func (c *Controller) Complete(ctx context.Context, sess *session.Session, taskID uint, closeOdometer, fuelQuantity, fuelAmount float64) error {
	driver, task, err := c.loadOwned(ctx, sess, taskID)
	if err != nil {
		metrics.DutyTransitions.WithLabelValues("complete", "rejected").Inc()
		return err
	}
	if task.Status != models.TaskInProgress {
		metrics.DutyTransitions.WithLabelValues("complete", "rejected").Inc()
		return validationErr(ReasonInvalidTransition, "duty %d is not in progress", taskID)
	}

	// Closing must strictly exceed opening: a zero-distance trip is a
	// data-entry error to correct, not a completed trip.
	if closeOdometer <= task.OpeningKm {
		metrics.OdometerRejections.Inc()
		metrics.DutyTransitions.WithLabelValues("complete", "rejected").Inc()
		return validationErr(ReasonOdometerRegression,
			"closing odometer %.1f must exceed opening %.1f", closeOdometer, task.OpeningKm)
	}
	kilometers := closeOdometer - task.OpeningKm

	err = c.st.InTx(ctx, func(tx store.Store) error {
		ok, err := tx.TransitionTask(ctx, taskID, models.TaskInProgress, store.Patch{
			"status":        models.TaskCompleted,
			"closing_km":    closeOdometer,
			"kilometers":    kilometers,
			"fuel_quantity": fuelQuantity,
			"fuel_amount":   fuelAmount,
			"completed_at":  store.ServerTime{},
		})
		if err != nil {
			return syncErr("task complete write", err)
		}
		if !ok {
			return validationErr(ReasonInvalidTransition, "duty %d is not in progress", taskID)
		}
		if err := tx.MergeDriver(ctx, driver.ID, store.Patch{
			"active":           true,
			"active_status":    statusActive,
			"last_trip_end_km": closeOdometer,
			"total_kilometers": store.Increment{By: kilometers},
		}); err != nil {
			return syncErr("driver completion write", err)
		}
		if err := tx.MergeUser(ctx, driver.UserID, store.Patch{
			"total_kms": store.Increment{By: kilometers},
		}); err != nil {
			return syncErr("user total write", err)
		}
		return nil
	})
	if err != nil {
		metrics.DutyTransitions.WithLabelValues("complete", "rejected").Inc()
		return err
	}

	metrics.DutyTransitions.WithLabelValues("complete", "ok").Inc()
	c.log.WithFields(logrus.Fields{
		"task_id":    taskID,
		"driver_id":  driver.ID,
		"kilometers": kilometers,
	}).Info("Duty completed.")

	task.Status = models.TaskCompleted
	task.ClosingKm = closeOdometer
	task.Kilometers = kilometers
	c.publish("duty.completed", task)
	return nil
}

// Cancel is the admin cancel-and-requeue: the task is deleted and the
// paired driver is reset to Available. Completed duties are history and
// cannot be cancelled.
func (c *Controller) Cancel(ctx context.Context, sess *session.Session, taskID uint) error {
	if !sess.IsAdmin() {
		return ErrForbidden
	}
	task, err := c.st.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return validationErr(ReasonInvalidTransition, "duty %d does not exist", taskID)
		}
		return syncErr("task read", err)
	}
	if task.Status == models.TaskCompleted {
		return validationErr(ReasonAlreadyCompleted, "duty %d is already completed", taskID)
	}

	err = c.st.InTx(ctx, func(tx store.Store) error {
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return syncErr("task delete", err)
		}
		return SetOperationalState(ctx, tx, task.DriverID, StateAvailable)
	})
	if err != nil {
		metrics.DutyTransitions.WithLabelValues("cancel", "rejected").Inc()
		return err
	}

	metrics.DutyTransitions.WithLabelValues("cancel", "ok").Inc()
	c.log.WithFields(logrus.Fields{
		"task_id":   taskID,
		"driver_id": task.DriverID,
	}).Info("Duty cancelled, driver requeued.")
	c.publish("duty.cancelled", task)
	return nil
}

// loadOwned resolves the session's operational record and the task, and
// enforces that the duty belongs to the calling driver.
func (c *Controller) loadOwned(ctx context.Context, sess *session.Session, taskID uint) (models.Driver, models.Task, error) {
	if !sess.IsDriver() {
		return models.Driver{}, models.Task{}, ErrForbidden
	}
	driver, err := c.st.GetDriverByUserID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Driver{}, models.Task{}, validationErr(ReasonNotYourDuty, "no operational record for user %d", sess.UserID)
		}
		return models.Driver{}, models.Task{}, syncErr("driver read", err)
	}
	task, err := c.st.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Driver{}, models.Task{}, validationErr(ReasonInvalidTransition, "duty %d does not exist", taskID)
		}
		return models.Driver{}, models.Task{}, syncErr("task read", err)
	}
	if task.DriverID != driver.ID {
		return models.Driver{}, models.Task{}, validationErr(ReasonNotYourDuty, "duty %d is assigned to another driver", taskID)
	}
	return driver, task, nil
}

func (c *Controller) publish(eventType string, task models.Task) {
	if c.events == nil {
		return
	}
	evt := realtime.Event{
		Type: eventType,
		Data: map[string]any{
			"task_id":    task.ID,
			"driver_id":  task.DriverID,
			"status":     task.Status,
			"kilometers": task.Kilometers,
		},
	}
	c.events.Publish(realtime.TopicFleet, evt)
	c.events.Publish(realtime.DriverTopic(task.DriverID), evt)
}
