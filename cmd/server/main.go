package main

import (
	"log"
	"net/http"
	"os"

	logrus "github.com/sirupsen/logrus"

	"dutysync/internal/config"
	"dutysync/internal/controllers"
	"dutysync/internal/dispatch"
	"dutysync/internal/logger"
	"dutysync/internal/metrics"
	"dutysync/internal/middleware"
	"dutysync/internal/realtime"
	"dutysync/internal/routes"
	"dutysync/internal/store"
)

func main() {
	// Structured logging to a rotating file
	logger.Setup()
	metrics.RegisterDefault()

	// Connect to the database
	config.InitDB()
	st := store.NewGorm(config.DB)

	// Realtime fan-out: shared Redis stream when configured, in-process
	// broker otherwise.
	var broker realtime.Broker
	if url := os.Getenv("REDIS_URL"); url != "" {
		rb, err := realtime.NewRedisBroker(url)
		if err != nil {
			log.Fatalf("redis broker: %v", err)
		}
		broker = rb
	} else {
		broker = realtime.NewMemoryBroker()
	}
	hub := realtime.NewHub(broker)

	core := dispatch.NewController(st, &realtime.TrackingNudge{B: broker}, broker)

	r := routes.SetupRouter(routes.Deps{
		Duty:     &controllers.DutyController{Core: core, Store: st},
		Location: &controllers.LocationController{Store: st, Broker: broker, Hub: hub},
		Store:    st,
	})

	// Wrap with CORS
	handler := middleware.EnableCORS(r)

	addr := "0.0.0.0:" + config.GetEnv("PORT", "8080")
	logrus.WithField("addr", addr).Info("Server starting.")
	log.Printf("🚀 Server running at %s", addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}
