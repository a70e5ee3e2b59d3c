package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	logrus "github.com/sirupsen/logrus"

	geom "github.com/twpayne/go-geom"
	geojson "github.com/twpayne/go-geom/encoding/geojson"

	"dutysync/internal/geo"
	"dutysync/internal/metrics"
	"dutysync/internal/models"
	"dutysync/internal/realtime"
	"dutysync/internal/session"
	"dutysync/internal/store"
	"dutysync/internal/tracking"
)

// upgrader configures the WebSocket connection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // mobile clients connect from app webviews and emulators
	},
}

// Fixes closer than this and sooner than idleInterval are acknowledged but
// not persisted; matches the reporting schedule.
const (
	significantMeters = 10.0
	idleInterval      = 30 * time.Second
)

// LocationController owns the realtime endpoints: the driver position
// ingest, the dashboard feeds, and the day-track export.
type LocationController struct {
	Store  store.Store
	Broker realtime.Broker
	Hub    *realtime.Hub
}

type positionPayload struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// DriverLocationWS receives position fixes from an authenticated driver's
// device. Each significant fix becomes a partial-merge write on the
// operational record (never touching lifecycle fields), a history row, and
// a fleet broadcast.
func (lc *LocationController) DriverLocationWS(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil || !sess.IsDriver() {
		c.JSON(http.StatusForbidden, gin.H{"error": "driver session required"})
		return
	}
	driver, err := lc.Store.GetDriverByUserID(c.Request.Context(), sess.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No operational record for this user."})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade driver location connection.")
		return
	}
	defer conn.Close()

	logrus.WithField("driver_id", driver.ID).Info("Driver location stream connected.")

	for {
		_, p, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("driver_id", driver.ID).Warn("Driver location stream read failed.")
			}
			return
		}
		lc.ingest(c, conn, driver.ID, p)
	}
}

func (lc *LocationController) ingest(c *gin.Context, conn *websocket.Conn, driverID uint, p []byte) {
	var payload positionPayload
	if err := decodePosition(p, &payload); err != nil {
		logrus.WithError(err).WithField("driver_id", driverID).Error("Invalid position payload.")
		conn.WriteJSON(gin.H{"error": "Invalid location data format."})
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	ctx := c.Request.Context()
	last, err := lc.Store.LastLocation(ctx, driverID)
	isFirst := errors.Is(err, store.ErrNotFound)
	if err != nil && !isFirst {
		logrus.WithError(err).Error("Database error fetching last location.")
		conn.WriteJSON(gin.H{"error": "Database error fetching last location."})
		return
	}

	distance := 0.0
	bearing := 0.0
	eventType := "initial"
	if !isFirst {
		distance = geo.DistanceMeters(last.Latitude, last.Longitude, payload.Latitude, payload.Longitude)
		bearing = geo.Bearing(last.Latitude, last.Longitude, payload.Latitude, payload.Longitude)
		elapsed := payload.Timestamp.Sub(last.Timestamp)
		switch {
		case distance >= significantMeters:
			eventType = "moving"
		case elapsed >= idleInterval:
			eventType = "idle"
		default:
			conn.WriteJSON(gin.H{"message": "Location received - no significant change"})
			return
		}
	}

	err = lc.Store.MergeDriver(ctx, driverID, store.Patch{
		"latitude":       payload.Latitude,
		"longitude":      payload.Longitude,
		"last_updated":   store.ServerTime{},
		"locationstatus": tracking.LocationOnline,
	})
	if err != nil {
		metrics.LocationWrites.WithLabelValues("error").Inc()
		logrus.WithError(err).WithField("driver_id", driverID).Warn("Position write failed; dropping fix.")
		return
	}
	metrics.LocationWrites.WithLabelValues("ok").Inc()

	rec := models.LocationHistory{
		DriverID:         driverID,
		Latitude:         payload.Latitude,
		Longitude:        payload.Longitude,
		Accuracy:         payload.Accuracy,
		Speed:            payload.Speed,
		Bearing:          bearing,
		IsMoving:         payload.Speed > 0.5,
		DistanceFromLast: distance,
		Timestamp:        payload.Timestamp,
		EventType:        eventType,
	}
	if err := lc.Store.AppendLocation(ctx, &rec); err != nil {
		logrus.WithError(err).Warn("Could not append location history.")
	}

	lc.Broker.Publish(realtime.TopicFleet, realtime.Event{
		Type: "position",
		Data: map[string]any{
			"driver_id": driverID,
			"latitude":  payload.Latitude,
			"longitude": payload.Longitude,
			"speed":     payload.Speed,
			"bearing":   bearing,
			"timestamp": payload.Timestamp.Format(time.RFC3339),
		},
	})
}

// AdminPositionsWS streams every fleet event (positions and duty changes)
// to an admin dashboard until the client disconnects.
func (lc *LocationController) AdminPositionsWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade admin positions connection.")
		return
	}
	metrics.RealtimeClients.Inc()
	defer metrics.RealtimeClients.Dec()
	lc.Hub.Stream(conn, realtime.TopicFleet)
}

// DriverEventsWS streams the calling driver's duty events and tracking
// signals to their device.
func (lc *LocationController) DriverEventsWS(c *gin.Context) {
	sess, err := session.FromGin(c)
	if err != nil || !sess.IsDriver() {
		c.JSON(http.StatusForbidden, gin.H{"error": "driver session required"})
		return
	}
	driver, err := lc.Store.GetDriverByUserID(c.Request.Context(), sess.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No operational record for this user."})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade driver events connection.")
		return
	}
	metrics.RealtimeClients.Inc()
	defer metrics.RealtimeClients.Dec()
	lc.Hub.Stream(conn, realtime.DriverTopic(driver.ID))
}

// DriverTrack exports one day of a driver's movement as a GeoJSON
// LineString for the live-tracking map.
func (lc *LocationController) DriverTrack(c *gin.Context) {
	driverID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver ID format."})
		return
	}
	day := c.DefaultQuery("date", time.Now().Format("2006-01-02"))
	from, err := time.Parse("2006-01-02", day)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	to := from.Add(24 * time.Hour)

	recs, err := lc.Store.ListLocations(c.Request.Context(), uint(driverID), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error loading track: " + err.Error()})
		return
	}
	if len(recs) < 2 {
		c.JSON(http.StatusOK, gin.H{"geometry": nil, "points": len(recs)})
		return
	}

	coords := make([]geom.Coord, 0, len(recs))
	for _, rec := range recs {
		coords = append(coords, geom.Coord{rec.Longitude, rec.Latitude})
	}
	line := geom.NewLineString(geom.XY)
	if _, err := line.SetCoords(coords); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error building track geometry."})
		return
	}
	raw, err := geojson.Marshal(line)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error encoding track geometry."})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", raw)
}
