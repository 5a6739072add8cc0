package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/cinetalk/forum-app/internal/audit"
	"github.com/cinetalk/forum-app/internal/logger"
	"github.com/cinetalk/forum-app/internal/messaging"
	"github.com/cinetalk/forum-app/internal/metrics"
	"github.com/cinetalk/forum-app/internal/moderation"
	"github.com/cinetalk/forum-app/internal/protocol"
	"github.com/cinetalk/forum-app/internal/ratelimit"
	"github.com/cinetalk/forum-app/internal/reputation"
	"github.com/cinetalk/forum-app/internal/service"
)

// requestTimeout bounds the store calls made for one request.
const requestTimeout = 5 * time.Second

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "moderator: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:  "moderator",
		Usage: "forum content moderation daemon",
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			Value:   "info",
			EnvVars: []string{"LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "serve moderation requests over NATS",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "nats-url",
			Value:   nats.DefaultURL,
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "host:port of the Redis holding reputations and rate limits",
			Value:   "localhost:6379",
			EnvVars: []string{"REDIS_ADDR"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Postgres URL for the audit log; empty disables auditing",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics and health",
			Value:   ":9102",
			EnvVars: []string{"METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "rules-file",
			Usage:   "YAML file with banned terms and spam indicators",
			EnvVars: []string{"MODERATION_RULES_FILE"},
		},
		&cli.IntFlag{
			Name:    "max-content-chars",
			Usage:   "longer submissions are truncated before analysis",
			Value:   protocol.DefaultMaxContentRunes,
			EnvVars: []string{"MAX_CONTENT_CHARS"},
		},
		&cli.IntFlag{
			Name:    "rate-limit",
			Usage:   "moderate requests allowed per user per minute; 0 disables",
			Value:   ratelimit.RuleModerate.Limit,
			EnvVars: []string{"RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		log, err := logger.New(cctx.String("log-level"))
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rules, err := moderation.LoadConfigFile(cctx.String("rules-file"))
		if err != nil {
			return err
		}
		log.Info("rules loaded",
			zap.String("file", cctx.String("rules-file")),
			zap.Int("banned_terms", len(rules.BannedTerms())),
			zap.Int("spam_indicators", len(rules.Indicators())),
		)

		rdb := redis.NewClient(&redis.Options{Addr: cctx.String("redis-addr")})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}

		var recorder service.AuditRecorder
		if dsn := cctx.String("database-url"); dsn != "" {
			db, err := openAuditDB(ctx, dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			recorder = audit.NewStore(db)
		} else {
			log.Warn("DATABASE_URL not set, audit log disabled")
		}

		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cctx.String("nats-url")
		natsClient, err := messaging.NewNATSClient(natsConfig, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		rule := ratelimit.RuleModerate
		rule.Limit = cctx.Int("rate-limit")

		moderator := service.NewModerator(service.Config{
			Engine:          moderation.NewEngine(rules),
			Reputation:      reputation.NewStore(rdb),
			Audit:           recorder,
			Reviews:         natsClient,
			Limiter:         ratelimit.NewLimiter(rdb, log),
			RateRule:        rule,
			MaxContentRunes: cctx.Int("max-content-chars"),
			Log:             log,
		})
		dispatcher := service.NewDispatcher(log)
		moderator.Register(dispatcher)

		err = natsClient.Serve(messaging.SubjectCheck, messaging.QueueModerators, func(data []byte) []byte {
			reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			return dispatcher.Dispatch(reqCtx, data)
		})
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cctx.String("metrics-listen"),
			Handler:           httpMux(rdb),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics endpoint failed", zap.Error(err))
				stop()
			}
		}()

		log.Info("moderation service running",
			zap.String("subject", messaging.SubjectCheck),
			zap.String("queue", messaging.QueueModerators),
			zap.String("redis_addr", cctx.String("redis-addr")),
			zap.String("nats_url", natsConfig.URL),
			zap.String("metrics_listen", srv.Addr),
		)

		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown", zap.Error(err))
		}
		return nil
	},
}

func openAuditDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := audit.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func httpMux(rdb *redis.Client) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
