package loadtest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metric names exported by the moderation daemon.
const (
	metricRequests      = "forum_moderation_requests_total"
	metricDecisions     = "forum_moderation_decisions_total"
	metricAnalysisSum   = "forum_moderation_analysis_seconds_sum"
	metricAnalysisCount = "forum_moderation_analysis_seconds_count"
)

type snapshot struct {
	timestamp     time.Time
	requests      float64
	rateLimited   float64
	decisions     map[string]float64 // by action
	analysisSum   float64
	analysisCount float64
}

// Scraper periodically fetches the daemon's metrics and keeps snapshots for
// the final report.
type Scraper struct {
	metricsURL string
	interval   time.Duration
	client     *http.Client

	mu        sync.Mutex
	snapshots []snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScraper creates a Scraper for metricsURL.
func NewScraper(metricsURL string, interval time.Duration) *Scraper {
	return &Scraper{
		metricsURL: metricsURL,
		interval:   interval,
		client:     &http.Client{Timeout: 5 * time.Second},
		done:       make(chan struct{}),
	}
}

// Start takes a snapshot immediately and then one per interval until ctx is
// cancelled or Stop is called. A final snapshot is taken on the way out.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.scrapeOnce()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.scrapeOnce()
				return
			case <-ticker.C:
				s.scrapeOnce()
			}
		}
	}()
}

// Stop stops the background scraper and waits for it.
func (s *Scraper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// scrapeOnce skips failed fetches; the daemon may not be listening yet.
func (s *Scraper) scrapeOnce() {
	snap, err := s.fetch()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

func (s *Scraper) fetch() (snapshot, error) {
	resp, err := s.client.Get(s.metricsURL)
	if err != nil {
		return snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snapshot{}, fmt.Errorf("loadtest: scrape %s: %s", s.metricsURL, resp.Status)
	}
	return parseSnapshot(resp.Body, time.Now())
}

func parseSnapshot(r io.Reader, at time.Time) (snapshot, error) {
	snap := snapshot{timestamp: at, decisions: make(map[string]float64)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		name, labels, value, ok := parseMetricLine(line)
		if !ok {
			continue
		}
		switch name {
		case metricRequests:
			snap.requests += value
			if labels["outcome"] == "rate_limited" {
				snap.rateLimited += value
			}
		case metricDecisions:
			snap.decisions[labels["action"]] += value
		case metricAnalysisSum:
			snap.analysisSum = value
		case metricAnalysisCount:
			snap.analysisCount = value
		}
	}
	return snap, scanner.Err()
}

// parseMetricLine splits one text exposition sample into its name, labels
// and value. Label values containing commas or escaped quotes are not
// supported; the daemon never emits them.
func parseMetricLine(line string) (name string, labels map[string]string, value float64, ok bool) {
	rest := line
	if open := strings.IndexByte(line, '{'); open != -1 {
		closing := strings.IndexByte(line[open:], '}')
		if closing == -1 {
			return "", nil, 0, false
		}
		name = line[:open]
		labels = make(map[string]string)
		for _, pair := range strings.Split(line[open+1:open+closing], ",") {
			k, v, found := strings.Cut(pair, "=")
			if !found {
				continue
			}
			labels[strings.TrimSpace(k)] = strings.Trim(v, `"`)
		}
		rest = line[open+closing+1:]
	}

	fields := strings.Fields(rest)
	if name == "" {
		if len(fields) < 2 {
			return "", nil, 0, false
		}
		name, fields = fields[0], fields[1:]
	}
	if len(fields) == 0 {
		return "", nil, 0, false
	}

	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return "", nil, 0, false
	}
	return name, labels, v, true
}

// Report writes the server-side deltas between the first and last
// snapshot to w.
func (s *Scraper) Report(w io.Writer) {
	s.mu.Lock()
	snaps := make([]snapshot, len(s.snapshots))
	copy(snaps, s.snapshots)
	s.mu.Unlock()

	if len(snaps) == 0 {
		fmt.Fprintln(w, "\n--- Server Metrics (no data collected) ---")
		return
	}
	first, last := snaps[0], snaps[len(snaps)-1]

	fmt.Fprintln(w, "\n--- Server Metrics (Prometheus) ---")
	fmt.Fprintf(w, "  Scrape count:  %d snapshots over %s\n",
		len(snaps), last.timestamp.Sub(first.timestamp).Round(time.Second))
	fmt.Fprintf(w, "  Requests:      %.0f\n", last.requests-first.requests)
	fmt.Fprintf(w, "  Rate limited:  %.0f\n", last.rateLimited-first.rateLimited)

	actions := make([]string, 0, len(last.decisions))
	for a := range last.decisions {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	for _, a := range actions {
		fmt.Fprintf(w, "  %-14s %.0f\n", a+":", last.decisions[a]-first.decisions[a])
	}

	if n := last.analysisCount - first.analysisCount; n > 0 {
		avg := (last.analysisSum - first.analysisSum) / n
		fmt.Fprintf(w, "  Analysis avg:  %.6fs  (%.0f observations)\n", avg, n)
	} else {
		fmt.Fprintln(w, "  Analysis avg:  N/A  (no observations)")
	}
}
