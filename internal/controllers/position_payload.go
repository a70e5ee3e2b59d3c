package controllers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// decodePosition unmarshals a device fix. Some clients send naive
// timestamps with no zone suffix; those are taken as UTC.
func decodePosition(data []byte, out *positionPayload) error {
	aux := struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Accuracy  float64 `json:"accuracy"`
		Speed     float64 `json:"speed"`
		Timestamp string  `json:"timestamp"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	out.Latitude = aux.Latitude
	out.Longitude = aux.Longitude
	out.Accuracy = aux.Accuracy
	out.Speed = aux.Speed

	if aux.Timestamp == "" {
		out.Timestamp = time.Time{}
		return nil
	}
	ts := aux.Timestamp
	if len(ts) > 6 && !(strings.HasSuffix(ts, "Z") || strings.ContainsAny(ts[len(ts)-6:], "+-")) {
		ts += "Z"
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", aux.Timestamp, err)
	}
	out.Timestamp = t
	return nil
}
