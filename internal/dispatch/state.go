package dispatch

import (
	"context"

	"dutysync/internal/models"
	"dutysync/internal/store"
)

// DriverState is the joint (active, activeStatus) tuple of an operational
// record. Only three pairings are valid at rest:
//
//	Available: active=true,  activeStatus="active"
//	Assigned:  active=true,  activeStatus="assigned"
//	OnTrip:    active=false, activeStatus="in-progress"
type DriverState int

const (
	StateAvailable DriverState = iota
	StateAssigned
	StateOnTrip
)

const (
	statusActive     = "active"
	statusAssigned   = "assigned"
	statusInProgress = "in-progress"
)

func (s DriverState) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateAssigned:
		return "assigned"
	case StateOnTrip:
		return "on-trip"
	}
	return "unknown"
}

// Pair returns the record fields for the state.
func (s DriverState) Pair() (active bool, activeStatus string) {
	switch s {
	case StateAssigned:
		return true, statusAssigned
	case StateOnTrip:
		return false, statusInProgress
	default:
		return true, statusActive
	}
}

// StateOf maps record fields back to a DriverState, rejecting any pairing
// outside the three valid rows.
func StateOf(active bool, activeStatus string) (DriverState, error) {
	switch {
	case active && activeStatus == statusActive:
		return StateAvailable, nil
	case active && activeStatus == statusAssigned:
		return StateAssigned, nil
	case !active && activeStatus == statusInProgress:
		return StateOnTrip, nil
	}
	return 0, validationErr(ReasonInvalidPairing,
		"active=%v with activeStatus=%q is not a valid driver state", active, activeStatus)
}

// RecordState reads the state off a loaded operational record.
func RecordState(d models.Driver) (DriverState, error) {
	return StateOf(d.Active, d.ActiveStatus)
}

// SetOperationalState writes the driver's (active, activeStatus) pair as a
// partial merge: position fields written by the location reporter are never
// touched. Targets outside the three valid states cannot be expressed, so
// an invalid pairing can never be written through this path.
func SetOperationalState(ctx context.Context, st store.Store, driverID uint, target DriverState) error {
	if target != StateAvailable && target != StateAssigned && target != StateOnTrip {
		return validationErr(ReasonInvalidPairing, "unknown driver state %d", int(target))
	}
	active, activeStatus := target.Pair()
	err := st.MergeDriver(ctx, driverID, store.Patch{
		"active":        active,
		"active_status": activeStatus,
	})
	if err != nil {
		return syncErr("driver state write", err)
	}
	return nil
}
