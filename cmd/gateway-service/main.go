package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AndresEncalada/tolerancia-fallos/internal/gateway"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

func main() {
	port := getenv("PORT", "8080")
	timeoutMS, _ := strconv.Atoi(getenv("UPSTREAM_TIMEOUT_MS", "30000"))

	cfg := gateway.Config{
		ReservationBaseURL:  getenv("RESERVATION_BASE_URL", "http://localhost:8000"),
		InventoryBaseURL:    getenv("INVENTORY_BASE_URL", "http://localhost:8001"),
		PaymentBaseURL:      getenv("PAYMENT_BASE_URL", "http://localhost:8002"),
		NotificationBaseURL: getenv("NOTIFICATION_BASE_URL", "http://localhost:8003"),
	}

	client := &http.Client{Timeout: time.Duration(timeoutMS) * time.Millisecond}
	handler := gateway.NewHandler(cfg, client, metrics.NewServerMetrics("gateway"))

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("gateway-service listening on :%s (core=%s)", port, cfg.ReservationBaseURL)
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
