// Command loadtest drives concurrent match traffic against the matcher
// service and reports throughput, latency percentiles, status codes and
// the decision mix.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-batch 100] [-names names.csv]
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
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/batchio"
	"github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/internal/company"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	BatchSize   int
	Names       []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	verdicts      atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
	decisions     map[company.Decision]int64
	decisionsMu   sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
		decisions:   make(map[company.Decision]int64),
	}
}

func (s *Stats) RecordVerdicts(verdicts ...company.MatchVerdict) {
	s.verdicts.Add(int64(len(verdicts)))
	s.decisionsMu.Lock()
	for _, v := range verdicts {
		s.decisions[v.Decision]++
	}
	s.decisionsMu.Unlock()
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var defaultNames = []string{
	"Acme Corporation",
	"ACME CORP",
	"Globex Inc.",
	"Initech LLC",
	"Umbrella Holdings",
	"Stark Industries",
	"Wayne Enterprises",
	"Wonka Industries GmbH",
	"Cyberdyne Systems",
	"Soylent Corp",
	"Hooli",
	"Vandelay Industries",
	"Unrelated Biz XYZ",
	"Tyrell Corporation",
	"Massive Dynamic",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the matcher service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	batchSize := flag.Int("batch", 0, "names per POST /api/v1/match/batch request; 0 sends single GET lookups")
	namesPath := flag.String("names", "", "CSV file of names to send instead of the built-in list")
	flag.Parse()

	names := defaultNames
	if *namesPath != "" {
		f, err := os.Open(*namesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening names: %v\n", err)
			os.Exit(1)
		}
		names, err = batchio.ReadNames(f)
		f.Close()
		if err != nil || len(names) == 0 {
			fmt.Fprintf(os.Stderr, "reading names: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		BatchSize:   *batchSize,
		Names:       names,
	}

	fmt.Println("=== Company Matcher Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Names:       %d unique\n", len(cfg.Names))
	if cfg.BatchSize > 0 {
		fmt.Printf("Batch size:  %d\n", cfg.BatchSize)
	}
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 3 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			nameIdx := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				var req *http.Request
				if cfg.BatchSize > 0 {
					batch := make([]string, cfg.BatchSize)
					for i := range batch {
						batch[i] = cfg.Names[nameIdx%len(cfg.Names)]
						nameIdx++
					}
					req = mustNewBatchRequest(ctx, cfg.BaseURL+"/api/v1/match/batch", batch)
				} else {
					name := cfg.Names[nameIdx%len(cfg.Names)]
					nameIdx++
					req = mustNewRequest(ctx, fmt.Sprintf("%s/api/v1/match?name=%s",
						cfg.BaseURL, url.QueryEscape(name)))
				}

				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)

				if err != nil {
					stats.RecordRequest(duration, 0, err)
					continue
				}
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()

				stats.RecordRequest(duration, resp.StatusCode, nil)
				if resp.StatusCode == http.StatusOK {
					recordBody(stats, body, cfg.BatchSize > 0)
				}
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func recordBody(stats *Stats, body []byte, batch bool) {
	if batch {
		var report struct {
			Verdicts []company.MatchVerdict `json:"verdicts"`
		}
		if json.Unmarshal(body, &report) == nil {
			stats.RecordVerdicts(report.Verdicts...)
		}
		return
	}
	var v company.MatchVerdict
	if json.Unmarshal(body, &v) == nil {
		stats.RecordVerdicts(v)
	}
}

func mustNewBatchRequest(ctx context.Context, rawURL string, names []string) *http.Request {
	body, err := json.Marshal(map[string]any{"names": names})
	if err != nil {
		panic(fmt.Sprintf("encoding batch: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
		fmt.Printf("Verdicts/sec:    %.2f\n", float64(stats.verdicts.Load())/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	fmt.Println()
	fmt.Println("=== Decisions ===")
	stats.decisionsMu.Lock()
	for _, d := range []company.Decision{company.DecisionMatch, company.DecisionAmbiguous, company.DecisionNoMatch} {
		fmt.Printf("  %-10s %d\n", d, stats.decisions[d])
	}
	stats.decisionsMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
