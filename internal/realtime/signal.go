package realtime

import "context"

// TrackingNudge asks a driver's device to make sure location reporting is
// running, by pushing a signal event onto the driver's topic. The device
// treats it as an idempotent start.
type TrackingNudge struct {
	B Broker
}

func (n *TrackingNudge) EnsureReporting(_ context.Context, driverID uint) error {
	n.B.Publish(DriverTopic(driverID), Event{
		Type: "tracking.ensure",
		Data: map[string]any{"driver_id": driverID},
	})
	return nil
}
