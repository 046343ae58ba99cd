package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AndresEncalada/tolerancia-fallos/internal/payment"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

func main() {
	port := getenv("PORT", "8002")
	initialMode := getenv("FAILURE_MODE", payment.ModeNormal)
	latencyMS, _ := strconv.Atoi(getenv("CHAOS_LATENCY_MS", "20000"))

	mode := payment.NewChaosSwitch(initialMode)
	handler := payment.NewHandler(mode, time.Duration(latencyMS)*time.Millisecond, metrics.NewServerMetrics("payment"))

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("payment-service listening on :%s (mode=%s, chaos_latency=%dms)", port, mode.Mode(), latencyMS)
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
