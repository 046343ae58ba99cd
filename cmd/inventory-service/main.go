package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AndresEncalada/tolerancia-fallos/internal/inventory"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

func main() {
	port := getenv("PORT", "8001")
	snapshot := getenv("DATA_FILE", "")
	initialMode := getenv("FAILURE_MODE", inventory.ModeNormal)

	svc := inventory.NewService(snapshot)
	mode := inventory.NewChaosSwitch(initialMode)
	handler := inventory.NewHandler(svc, mode, metrics.NewServerMetrics("inventory"))

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("inventory-service listening on :%s (mode=%s)", port, mode.Mode())
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
