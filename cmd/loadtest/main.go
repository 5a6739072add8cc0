// Command loadtest floods a running moderation daemon with moderate
// requests over NATS and reports latency percentiles, outcomes and the
// daemon's own metrics for the run.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	cli "github.com/urfave/cli/v2"

	"github.com/cinetalk/forum-app/internal/loadtest"
	"github.com/cinetalk/forum-app/internal/messaging"
	"github.com/cinetalk/forum-app/internal/moderation"
	"github.com/cinetalk/forum-app/internal/protocol"
)

func main() {
	if err := run(os.Args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	app := cli.App{
		Name:   "loadtest",
		Usage:  "load generator for the moderation daemon",
		Writer: stdout,
	}
	app.Commands = []*cli.Command{
		floodCmd,
	}
	return app.Run(args)
}

// corpus mixes clean posts, profanity, contact spam and shouting so every
// policy branch is exercised.
var corpus = []string{
	"Loved the cinematography, especially the night scenes in the city.",
	"I think the sequel was better than the original one.",
	"nice plot twist",
	"du ma may",
	"This film is fucking shit",
	"Add me on zalo 0912345678 for cheap tickets, good price",
	"Visit https://cheap-tickets.example.com and https://promo.example.com now",
	"WORST MOVIE OF THE YEAR, DO NOT WATCH",
	"mail me at fan@club.org or call 0987654321",
}

var floodCmd = &cli.Command{
	Name:  "flood",
	Usage: "send moderate requests from concurrent workers",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "nats-url",
			Value:   nats.DefaultURL,
			EnvVars: []string{"NATS_URL"},
		},
		&cli.IntFlag{
			Name:  "requests",
			Usage: "total moderate requests to send",
			Value: 10000,
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "requests in flight at once",
			Value: 50,
		},
		&cli.IntFlag{
			Name:  "users",
			Usage: "distinct user ids to spread requests over",
			Value: 500,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 5 * time.Second,
		},
		&cli.StringFlag{
			Name:  "metrics-url",
			Value: "http://localhost:9102/metrics",
		},
		&cli.DurationFlag{
			Name:  "scrape-interval",
			Value: 2 * time.Second,
		},
	},
	Action: func(cctx *cli.Context) error {
		total := cctx.Int("requests")
		concurrency := cctx.Int("concurrency")
		users := cctx.Int("users")
		if total <= 0 || concurrency <= 0 || users <= 0 {
			return fmt.Errorf("requests, concurrency and users must be positive")
		}
		w := cctx.App.Writer

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := messaging.DefaultNATSConfig()
		cfg.URL = cctx.String("nats-url")
		cfg.Name = "moderation-loadtest"
		client, err := messaging.NewNATSClient(cfg, nil)
		if err != nil {
			return err
		}
		defer client.Close()

		fmt.Fprintf(w, "Flood test: %d requests to %s (concurrency=%d, users=%d)\n",
			total, cfg.URL, concurrency, users)

		collector := loadtest.NewCollector()
		scraper := loadtest.NewScraper(cctx.String("metrics-url"), cctx.Duration("scrape-interval"))
		collector.SetScraper(scraper)
		scraper.Start(ctx)

		progressStop := make(chan struct{})
		var progressWg sync.WaitGroup
		progressWg.Add(1)
		go func() {
			defer progressWg.Done()
			reportProgress(w, collector, total, progressStop)
		}()

		var next atomic.Int64
		var wg sync.WaitGroup
		timeout := cctx.Duration("timeout")
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for ctx.Err() == nil {
					n := int(next.Add(1)) - 1
					if n >= total {
						return
					}
					data, err := json.Marshal(requestFor(n, users))
					if err != nil {
						collector.AddError()
						continue
					}
					start := time.Now()
					reply, err := client.Request(messaging.SubjectCheck, data, timeout)
					if err != nil {
						collector.AddError()
						continue
					}
					collector.AddResult(time.Since(start), outcomeOf(reply))
				}
			}()
		}
		wg.Wait()

		close(progressStop)
		progressWg.Wait()
		if ctx.Err() != nil {
			fmt.Fprintln(w, "\nInterrupted.")
		}

		scraper.Stop()
		collector.Report(w)
		return nil
	},
}

// requestFor builds the n-th request. Content, kind and user rotate at
// different periods so the same user sees a mix of submissions.
func requestFor(n, users int) protocol.ModerateMsg {
	kind := moderation.KindReply
	if n%3 == 0 {
		kind = moderation.KindThread
	}
	return protocol.ModerateMsg{
		Type:         protocol.TypeModerate,
		SubmissionID: fmt.Sprintf("load-%d", n),
		Kind:         kind,
		UserID:       fmt.Sprintf("load-user-%d", n%users),
		Body:         corpus[n%len(corpus)],
	}
}

// outcomeOf labels a reply by its action, or by its error code.
func outcomeOf(reply []byte) string {
	var msg struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(reply, &msg); err != nil {
		return "unparseable"
	}
	switch msg.Type {
	case protocol.TypeDecision:
		return msg.Action
	case protocol.TypeError:
		return "error:" + msg.Code
	default:
		return msg.Type
	}
}

func reportProgress(w io.Writer, c *loadtest.Collector, total int, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last := 0
	lastTime := time.Now()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			answered, failed := c.Counts()
			rate := float64(answered-last) / now.Sub(lastTime).Seconds()
			fmt.Fprintf(w, "  [flood] answered: %d/%d  no reply: %d  rate: %.1f req/s\n",
				answered, total, failed, rate)
			last, lastTime = answered, now
		case <-done:
			return
		}
	}
}
