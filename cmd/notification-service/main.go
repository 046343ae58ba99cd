package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AndresEncalada/tolerancia-fallos/internal/notification"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

func main() {
	port := getenv("PORT", "8003")
	initialMode := getenv("FAILURE_MODE", notification.ModeUp)

	mode := notification.NewChaosSwitch(initialMode)
	handler := notification.NewHandler(mode, metrics.NewServerMetrics("notification"))

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("notification-service listening on :%s (mode=%s)", port, mode.Mode())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
