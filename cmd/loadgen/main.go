// loadgen drives a stream of ticket purchases through the gateway and
// reports latency percentiles and outcome counts. Run it while toggling
// chaos to see what each failure mode costs.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type loadResult struct {
	Timestamp       string         `json:"timestamp"`
	BaseURL         string         `json:"base_url"`
	ItemID          string         `json:"item_id"`
	TotalRequests   int            `json:"total_requests"`
	Concurrency     int            `json:"concurrency"`
	SuccessRequests int            `json:"success_requests"`
	PendingRequests int            `json:"pending_requests"`
	ErrorRequests   int            `json:"error_requests"`
	DurationSeconds float64        `json:"duration_seconds"`
	AvgLatencyMs    float64        `json:"avg_latency_ms"`
	MinLatencyMs    float64        `json:"min_latency_ms"`
	MaxLatencyMs    float64        `json:"max_latency_ms"`
	P50LatencyMs    float64        `json:"p50_latency_ms"`
	P90LatencyMs    float64        `json:"p90_latency_ms"`
	P95LatencyMs    float64        `json:"p95_latency_ms"`
	P99LatencyMs    float64        `json:"p99_latency_ms"`
	ThroughputRPS   float64        `json:"throughput_rps"`
	StatusCounts    map[string]int `json:"status_counts"`
	OutcomeCounts   map[string]int `json:"outcome_counts"`
	FirstError      string         `json:"first_error"`
}

type collector struct {
	mu            sync.Mutex
	success       int
	pending       int
	errors        int
	total         time.Duration
	minLatency    time.Duration
	maxLatency    time.Duration
	latenciesMs   []float64
	statusCounts  map[string]int
	outcomeCounts map[string]int
	firstError    string
}

func newCollector() *collector {
	return &collector{
		statusCounts:  make(map[string]int),
		outcomeCounts: make(map[string]int),
	}
}

func (c *collector) record(latency time.Duration, statusCode int, outcome string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCounts[strconv.Itoa(statusCode)]++
	if outcome != "" {
		c.outcomeCounts[outcome]++
	}
	if err != nil {
		c.errors++
		if c.firstError == "" {
			c.firstError = err.Error()
		}
		return
	}
	switch outcome {
	case "pending":
		c.pending++
	default:
		c.success++
	}
	c.total += latency
	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}
	c.latenciesMs = append(c.latenciesMs, float64(latency.Milliseconds()))
}

func main() {
	baseURL := flag.String("base-url", getenv("GATEWAY_BASE_URL", "http://localhost:8080"), "gateway base URL")
	itemID := flag.String("item", "ticket_general", "item to purchase")
	amount := flag.Float64("amount", 50, "purchase amount")
	total := flag.Int("total", 200, "total number of purchases")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	output := flag.String("output", "", "optional output path for JSON result")
	flag.Parse()

	if *total <= 0 {
		fmt.Fprintln(os.Stderr, "total must be > 0")
		os.Exit(1)
	}
	if *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency must be > 0")
		os.Exit(1)
	}

	url := strings.TrimRight(*baseURL, "/") + "/buy-ticket"
	tasks := make(chan int)
	var wg sync.WaitGroup
	c := newCollector()
	client := &http.Client{}

	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for n := range tasks {
				latency, code, outcome, err := buyTicket(client, url, fmt.Sprintf("load-user-%d-%d", worker, n), *itemID, *amount, *timeout)
				c.record(latency, code, outcome, err)
			}
		}(i)
	}
	for i := 0; i < *total; i++ {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	duration := time.Since(start)

	counted := c.success + c.pending
	avgLatency, minLatency, maxLatency := 0.0, 0.0, 0.0
	if counted > 0 {
		avgLatency = float64(c.total.Milliseconds()) / float64(counted)
		minLatency = float64(c.minLatency.Milliseconds())
		maxLatency = float64(c.maxLatency.Milliseconds())
	}
	p50, p90, p95, p99 := calcPercentiles(c.latenciesMs)

	result := loadResult{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		BaseURL:         *baseURL,
		ItemID:          *itemID,
		TotalRequests:   *total,
		Concurrency:     *concurrency,
		SuccessRequests: c.success,
		PendingRequests: c.pending,
		ErrorRequests:   c.errors,
		DurationSeconds: duration.Seconds(),
		AvgLatencyMs:    avgLatency,
		MinLatencyMs:    minLatency,
		MaxLatencyMs:    maxLatency,
		P50LatencyMs:    p50,
		P90LatencyMs:    p90,
		P95LatencyMs:    p95,
		P99LatencyMs:    p99,
		ThroughputRPS:   float64(counted) / duration.Seconds(),
		StatusCounts:    c.statusCounts,
		OutcomeCounts:   c.outcomeCounts,
		FirstError:      c.firstError,
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		data, _ := json.MarshalIndent(result, "", "  ")
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			os.Exit(1)
		}
	}
}

func buyTicket(client *http.Client, url, userID, itemID string, amount float64, timeout time.Duration) (time.Duration, int, string, error) {
	payload := map[string]any{"user_id": userID, "item_id": itemID, "amount": amount}
	data, _ := json.Marshal(payload)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	latency := time.Since(start)

	outcome := parseOutcome(body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return latency, resp.StatusCode, outcome, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return latency, resp.StatusCode, outcome, nil
}

func parseOutcome(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if status, _ := payload["status"].(string); status != "" {
		return status
	}
	if kind, _ := payload["error"].(string); kind != "" {
		return kind
	}
	return ""
}

func calcPercentiles(values []float64) (float64, float64, float64, float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sort.Float64s(values)
	return percentile(values, 0.50), percentile(values, 0.90), percentile(values, 0.95), percentile(values, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
