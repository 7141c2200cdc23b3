// Command loadtest drives a linematch server with concurrent one-shot
// queries and reports throughput, reply mix and latency percentiles.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linematch/internal/protocol"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/client"
)

type Config struct {
	Client      client.Options
	Concurrency int
	Duration    time.Duration
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	replies       map[protocol.Reply]*atomic.Int64
}

func NewStats() *Stats {
	s := &Stats{
		latencies: make([]time.Duration, 0, 100000),
		replies:   make(map[protocol.Reply]*atomic.Int64),
	}
	for _, r := range []protocol.Reply{protocol.ReplyExists, protocol.ReplyNotFound, protocol.ReplyError} {
		s.replies[r] = &atomic.Int64{}
	}
	return s
}

func (s *Stats) RecordRequest(duration time.Duration, reply protocol.Reply, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	s.replies[reply].Add(1)

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()
}

var defaultQueries = []string{
	"alice",
	"bob",
	"carol",
	"dave",
	"3;0;1;28;0;7;5;0;",
	"10;0;1;26;0;8;3;0;",
	"missing-line",
	"zzz",
}

func main() {
	addr := flag.String("addr", "localhost:56747", "server address")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	timeout := flag.Duration("timeout", 5*time.Second, "per-query timeout")
	useTLS := flag.Bool("tls", false, "connect over TLS")
	caFile := flag.String("ca", "", "PEM CA bundle used to verify the server")
	insecure := flag.Bool("insecure", false, "skip TLS certificate verification")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in list)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}

	cfg := Config{
		Client: client.Options{
			Addr:               *addr,
			Timeout:            *timeout,
			TLS:                *useTLS,
			CAFile:             *caFile,
			InsecureSkipVerify: *insecure,
		},
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     queries,
	}

	fmt.Println("=== linematch Load Test ===")
	fmt.Printf("Target:      %s (tls=%v)\n", cfg.Client.Addr, cfg.Client.TLS)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			queries = append(queries, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return queries, nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID
			for ctx.Err() == nil {
				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				start := time.Now()
				reply, err := client.Query(ctx, cfg.Client, query)
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(time.Since(start), reply, err)
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

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Queries:   %d\n", total)
	fmt.Printf("Transport Errs:  %d\n", errors)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Queries/sec:     %.2f\n", float64(total)/duration.Seconds())
	}

	fmt.Println()
	fmt.Println("=== Replies ===")
	for _, r := range []protocol.Reply{protocol.ReplyExists, protocol.ReplyNotFound, protocol.ReplyError} {
		fmt.Printf("  %-18q %d\n", string(r), stats.replies[r].Load())
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

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
		fmt.Printf("StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	if total == 0 || errors == total {
		fmt.Println()
		fmt.Println("WARNING: No queries completed. Is the server running?")
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
