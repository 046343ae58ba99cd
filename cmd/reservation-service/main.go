package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AndresEncalada/tolerancia-fallos/internal/reservation"
	"github.com/AndresEncalada/tolerancia-fallos/internal/resilience"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/kafka"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/metrics"
)

type cfg struct {
	Port             string
	DatabaseURL      string
	InventoryBaseURL string
	PaymentBaseURL   string
	NotifyBaseURL    string

	BreakerThreshold int
	BreakerReset     time.Duration
	RetryAttempts    int
	RetryWait        time.Duration
	PaymentTimeout   time.Duration
	NotifyTimeout    time.Duration

	DBFlaky      bool
	KafkaBrokers string
	KafkaTopic   string
}

func readCfg() cfg {
	threshold, _ := strconv.Atoi(getenv("BREAKER_THRESHOLD", "3"))
	resetMS, _ := strconv.Atoi(getenv("BREAKER_RESET_MS", "10000"))
	attempts, _ := strconv.Atoi(getenv("RETRY_ATTEMPTS", "3"))
	waitMS, _ := strconv.Atoi(getenv("RETRY_WAIT_MS", "1000"))
	payMS, _ := strconv.Atoi(getenv("PAYMENT_TIMEOUT_MS", "5000"))
	notifyMS, _ := strconv.Atoi(getenv("NOTIFY_TIMEOUT_MS", "2000"))
	flaky := strings.ToLower(getenv("DB_FLAKY", "false"))

	return cfg{
		Port:             getenv("PORT", "8000"),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		InventoryBaseURL: strings.TrimRight(getenv("INVENTORY_BASE_URL", "http://localhost:8001"), "/"),
		PaymentBaseURL:   strings.TrimRight(getenv("PAYMENT_BASE_URL", "http://localhost:8002"), "/"),
		NotifyBaseURL:    strings.TrimRight(getenv("NOTIFICATION_BASE_URL", "http://localhost:8003"), "/"),
		BreakerThreshold: threshold,
		BreakerReset:     time.Duration(resetMS) * time.Millisecond,
		RetryAttempts:    attempts,
		RetryWait:        time.Duration(waitMS) * time.Millisecond,
		PaymentTimeout:   time.Duration(payMS) * time.Millisecond,
		NotifyTimeout:    time.Duration(notifyMS) * time.Millisecond,
		DBFlaky:          flaky == "1" || flaky == "true" || flaky == "yes",
		KafkaBrokers:     getenv("KAFKA_BROKERS", ""),
		KafkaTopic:       getenv("KAFKA_TOPIC", "reservation-events"),
	}
}

func main() {
	cfg := readCfg()

	var store reservation.Store
	if cfg.DatabaseURL != "" {
		pool, err := reservation.ConnectPG(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		defer pool.Close()
		pg := reservation.NewPGStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("db schema error: %v", err)
		}
		store = pg
	} else {
		log.Printf("DATABASE_URL is empty, using in-memory store")
		store = reservation.NewMemoryStore()
	}

	initialMode := reservation.PersistenceNormal
	if cfg.DBFlaky {
		initialMode = reservation.PersistenceFlaky
	}
	dbChaos := reservation.NewPersistenceSwitch(initialMode)
	flaky := reservation.NewFlakyStore(store, dbChaos, rand.New(rand.NewSource(time.Now().UnixNano())))

	client := &http.Client{Timeout: 30 * time.Second}
	inventory := reservation.NewInventoryClient(cfg.InventoryBaseURL, client)
	payment := reservation.NewPaymentClient(cfg.PaymentBaseURL, client)
	notifier := reservation.NewNotificationClient(cfg.NotifyBaseURL, client)

	workflow := metrics.NewWorkflowMetrics("reservation")
	breaker := resilience.NewBreaker(cfg.BreakerThreshold, cfg.BreakerReset,
		resilience.WithFailureClassifier(reservation.CountsAsBreakerFailure),
		resilience.WithOnStateChange(func(from, to resilience.State) {
			log.Printf("breaker %s -> %s", from, to)
			workflow.BreakerState.Set(float64(to))
		}),
	)
	retry := resilience.NewRetryPolicy(cfg.RetryAttempts, cfg.RetryWait)

	opts := []reservation.OrchestratorOption{reservation.WithWorkflowMetrics(workflow)}
	if sink := reservation.NewKafkaSink(kafka.NewClient(cfg.KafkaBrokers), cfg.KafkaTopic); sink != nil {
		defer sink.Close()
		opts = append(opts, reservation.WithEventSink(sink))
	}

	orch := reservation.NewOrchestrator(inventory, payment, notifier, flaky, breaker, retry, reservation.Config{
		PaymentTimeout: cfg.PaymentTimeout,
		NotifyTimeout:  cfg.NotifyTimeout,
	}, opts...)

	server := metrics.NewServerMetrics("reservation")
	handler := reservation.NewHandler(orch, flaky, dbChaos, server)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("reservation-service listening on :%s (breaker=%d/%s, retry=%dx%s, payment_timeout=%s)",
		cfg.Port, cfg.BreakerThreshold, cfg.BreakerReset, cfg.RetryAttempts, cfg.RetryWait, cfg.PaymentTimeout)
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
