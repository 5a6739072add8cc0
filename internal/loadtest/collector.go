// Package loadtest collects client-side latencies and outcomes while
// flooding the moderation daemon, and scrapes the daemon's Prometheus
// endpoint for a server-side view of the same run.
package loadtest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates results from many load generator goroutines. All
// methods are safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	latencies []time.Duration
	outcomes  map[string]int
	errors    int
	startTime time.Time
	scraper   *Scraper
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		outcomes:  make(map[string]int),
		startTime: time.Now(),
	}
}

// SetScraper attaches a metrics scraper whose summary is appended to Report.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddResult records one answered request: its round-trip latency and the
// outcome label (a moderation action or an error code).
func (c *Collector) AddResult(d time.Duration, outcome string) {
	c.mu.Lock()
	c.latencies = append(c.latencies, d)
	c.outcomes[outcome]++
	c.mu.Unlock()
}

// AddError records a request that got no reply.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// Counts returns the number of answered and failed requests so far.
func (c *Collector) Counts() (answered, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.latencies), c.errors
}

// Outcomes returns a copy of the per-outcome counters.
func (c *Collector) Outcomes() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.outcomes))
	for k, v := range c.outcomes {
		out[k] = v
	}
	return out
}

// Report writes the run summary to w.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	elapsed := time.Since(c.startTime)
	answered := len(c.latencies)
	latencies := make([]time.Duration, answered)
	copy(latencies, c.latencies)
	failed := c.errors
	outcomes := make(map[string]int, len(c.outcomes))
	for k, v := range c.outcomes {
		outcomes[k] = v
	}
	scraper := c.scraper
	c.mu.Unlock()

	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Duration:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Answered:     %d\n", answered)
	fmt.Fprintf(w, "No reply:     %d\n", failed)
	if total := answered + failed; total > 0 {
		fmt.Fprintf(w, "Error rate:   %.2f%%\n", float64(failed)/float64(total)*100)
	}
	if elapsed > 0 {
		fmt.Fprintf(w, "Throughput:   %.1f req/s\n", float64(answered)/elapsed.Seconds())
	}

	if len(outcomes) > 0 {
		fmt.Fprintln(w, "\n--- Outcomes ---")
		keys := make([]string, 0, len(outcomes))
		for k := range outcomes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-16s %d\n", k, outcomes[k])
		}
	}

	if s, ok := Summarize(latencies); ok {
		fmt.Fprintln(w, "\n--- Round-trip Latency ---")
		fmt.Fprintf(w, "  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
			s.Avg.Round(time.Microsecond),
			s.P50.Round(time.Microsecond),
			s.P95.Round(time.Microsecond),
			s.P99.Round(time.Microsecond),
			s.Max.Round(time.Microsecond),
			s.N,
		)
	}

	if scraper != nil {
		scraper.Report(w)
	}
	fmt.Fprintln(w)
}

// LatencySummary is the percentile distribution of a set of durations.
type LatencySummary struct {
	N                       int
	Avg, P50, P95, P99, Max time.Duration
}

// Summarize computes the distribution of durations. It sorts the slice in
// place and reports false when it is empty.
func Summarize(durations []time.Duration) (LatencySummary, bool) {
	n := len(durations)
	if n == 0 {
		return LatencySummary{}, false
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return LatencySummary{
		N:   n,
		Avg: sum / time.Duration(n),
		P50: durations[n/2],
		P95: durations[int(math.Ceil(float64(n)*0.95))-1],
		P99: durations[int(math.Ceil(float64(n)*0.99))-1],
		Max: durations[n-1],
	}, true
}
