// The tracking agent is the device-side half of duty tracking: it consumes
// GPS fixes from stdin (JSON lines, one fix per line), keeps the durable
// driver slot, and reports positions into the driver's operational record
// on the 30s / 10m schedule regardless of what the driver app is doing.
//
// Usage:
//
//	gpsd-json | agent -driver 12        # login: bind slot, start reporting
//	agent -logout                       # clear slot, mark offline
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	logrus "github.com/sirupsen/logrus"

	"dutysync/internal/config"
	"dutysync/internal/logger"
	"dutysync/internal/store"
	"dutysync/internal/tracking"
)

func main() {
	driverID := flag.Uint("driver", 0, "bind the durable slot to this driver id before starting")
	logout := flag.Bool("logout", false, "clear the durable slot, mark the driver offline and exit")
	interval := flag.Duration("interval", 30*time.Second, "max time between reports")
	distance := flag.Float64("distance", 10, "report after this many meters of movement")
	flag.Parse()

	logger.SetupConsole()
	config.InitDB()
	st := store.NewGorm(config.DB)

	slot, err := tracking.NewFileSlot(stateDir())
	if err != nil {
		log.Fatalf("state dir: %v", err)
	}

	ctx := context.Background()

	if *logout {
		if id, ok, _ := slot.Load(); ok {
			if err := st.MergeDriver(ctx, id, store.Patch{"locationstatus": tracking.LocationOffline}); err != nil {
				logrus.WithError(err).Warn("Could not mark driver offline.")
			}
		}
		if err := slot.Clear(); err != nil {
			log.Fatalf("clear slot: %v", err)
		}
		logrus.Info("Driver slot cleared.")
		return
	}

	if *driverID != 0 {
		if _, err := st.GetDriver(ctx, *driverID); err != nil {
			log.Fatalf("driver %d: %v", *driverID, err)
		}
		if err := slot.Store(*driverID); err != nil {
			log.Fatalf("bind slot: %v", err)
		}
	}
	if _, ok, _ := slot.Load(); !ok {
		log.Fatal("no driver bound; run with -driver <id> first")
	}

	src := tracking.NewStreamSource(os.Stdin,
		config.GetEnv("TRACKING_ALLOW_FOREGROUND", "true") == "true",
		config.GetEnv("TRACKING_ALLOW_BACKGROUND", "true") == "true",
	)
	svc := tracking.NewService(src, slot, st, tracking.WatchOptions{
		Interval:    *interval,
		MinDistance: *distance,
	})

	status, err := svc.Start(ctx)
	if status != tracking.StatusTracking {
		log.Fatalf("tracking not started: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	svc.Stop(ctx)
}

func stateDir() string {
	if v := os.Getenv("TRACKER_STATE_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home + "/.dutysync"
}
