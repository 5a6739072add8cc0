package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v2"

	"github.com/cinetalk/forum-app/internal/audit"
	"github.com/cinetalk/forum-app/internal/messaging"
	"github.com/cinetalk/forum-app/internal/moderation"
	"github.com/cinetalk/forum-app/internal/protocol"
	"github.com/cinetalk/forum-app/internal/ratelimit"
	"github.com/cinetalk/forum-app/internal/reputation"
)

func main() {
	if err := run(os.Args, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "modcheck: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	app := cli.App{
		Name:   "modcheck",
		Usage:  "inspect moderation decisions from the command line",
		Reader: stdin,
		Writer: stdout,
	}

	app.Commands = []*cli.Command{
		analyzeCmd,
		sanitizeCmd,
		checkCmd,
		watchReviewsCmd,
		auditCountCmd,
		auditShowCmd,
		reputationCmd,
	}

	return app.Run(args)
}

var rulesFlag = &cli.StringFlag{
	Name:    "rules-file",
	Usage:   "YAML file with banned terms and spam indicators",
	EnvVars: []string{"MODERATION_RULES_FILE"},
}

type analyzeOutput struct {
	Action    moderation.Action          `json:"action"`
	Sanitized string                     `json:"sanitized"`
	Analysis  moderation.ContentAnalysis `json:"analysis"`
	Report    moderation.Report          `json:"report"`
}

var analyzeCmd = &cli.Command{
	Name:      "analyze",
	Usage:     "run the engine locally on a submission",
	ArgsUsage: "<body or - for stdin>",
	Flags: []cli.Flag{
		rulesFlag,
		&cli.StringFlag{
			Name:  "kind",
			Usage: "thread or reply",
			Value: string(moderation.KindThread),
		},
		&cli.StringFlag{
			Name: "title",
		},
		&cli.StringFlag{
			Name:  "role",
			Value: string(moderation.RoleUser),
		},
		&cli.StringFlag{
			Name:  "trust",
			Value: string(moderation.TrustNew),
		},
		&cli.IntFlag{
			Name: "posts",
		},
		&cli.IntFlag{
			Name: "reports",
		},
		&cli.BoolFlag{
			Name: "auto-approval",
		},
	},
	Action: func(cctx *cli.Context) error {
		kind := moderation.ContentKind(cctx.String("kind"))
		if !kind.Valid() {
			return fmt.Errorf("unknown kind %q", kind)
		}
		user, err := userFromFlags(cctx)
		if err != nil {
			return err
		}
		body, err := bodyArg(cctx)
		if err != nil {
			return err
		}
		rules, err := moderation.LoadConfigFile(cctx.String("rules-file"))
		if err != nil {
			return err
		}

		engine := moderation.NewEngine(rules)
		analysis := engine.Analyze(moderation.Input{Kind: kind, Title: cctx.String("title"), Body: body})
		out := analyzeOutput{
			Action:    engine.SuggestAction(user, analysis, kind),
			Sanitized: engine.Sanitize(body),
			Analysis:  analysis,
			Report:    engine.BuildReport(analysis, time.Now().UTC()),
		}
		return printJSON(cctx.App.Writer, out)
	},
}

var sanitizeCmd = &cli.Command{
	Name:      "sanitize",
	Usage:     "print the redacted form of some text",
	ArgsUsage: "<text or - for stdin>",
	Flags: []cli.Flag{
		rulesFlag,
	},
	Action: func(cctx *cli.Context) error {
		text, err := bodyArg(cctx)
		if err != nil {
			return err
		}
		rules, err := moderation.LoadConfigFile(cctx.String("rules-file"))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cctx.App.Writer, moderation.NewEngine(rules).Sanitize(text))
		return err
	},
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "send a moderate request to a running daemon over NATS",
	ArgsUsage: "<body or - for stdin>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "nats-url",
			Value:   nats.DefaultURL,
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:     "user",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "kind",
			Value: string(moderation.KindThread),
		},
		&cli.StringFlag{
			Name: "title",
		},
		&cli.StringFlag{
			Name:  "submission-id",
			Usage: "defaults to a random UUID",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 5 * time.Second,
		},
	},
	Action: func(cctx *cli.Context) error {
		body, err := bodyArg(cctx)
		if err != nil {
			return err
		}
		id := cctx.String("submission-id")
		if id == "" {
			id = uuid.NewString()
		}
		req := protocol.ModerateMsg{
			Type:         protocol.TypeModerate,
			SubmissionID: id,
			Kind:         moderation.ContentKind(cctx.String("kind")),
			UserID:       cctx.String("user"),
			Title:        cctx.String("title"),
			Body:         body,
		}
		if err := req.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}

		cfg := messaging.DefaultNATSConfig()
		cfg.URL = cctx.String("nats-url")
		cfg.Name = "modcheck"
		cfg.MaxReconnects = 0
		client, err := messaging.NewNATSClient(cfg, nil)
		if err != nil {
			return err
		}
		defer client.Close()

		reply, err := client.Request(messaging.SubjectCheck, data, cctx.Duration("timeout"))
		if err != nil {
			return err
		}
		var pretty interface{}
		if err := json.Unmarshal(reply, &pretty); err != nil {
			return fmt.Errorf("decode reply: %w", err)
		}
		return printJSON(cctx.App.Writer, pretty)
	},
}

var auditCountCmd = &cli.Command{
	Name:  "audit-count",
	Usage: "count a user's recent decisions with a given action",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			EnvVars:  []string{"DATABASE_URL"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "user",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "action",
			Value: string(moderation.ActionReject),
		},
		&cli.DurationFlag{
			Name:  "window",
			Value: 24 * time.Hour,
		},
	},
	Action: func(cctx *cli.Context) error {
		action := moderation.Action(cctx.String("action"))
		switch action {
		case moderation.ActionApprove, moderation.ActionReview, moderation.ActionReject:
		default:
			return fmt.Errorf("unknown action %q", action)
		}

		db, err := sql.Open("postgres", cctx.String("database-url"))
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cctx.Context, 10*time.Second)
		defer cancel()
		n, err := audit.NewStore(db).CountRecent(ctx, cctx.String("user"), action, cctx.Duration("window"))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cctx.App.Writer, n)
		return err
	},
}

var auditShowCmd = &cli.Command{
	Name:      "audit-show",
	Usage:     "print the latest audited decision for a submission",
	ArgsUsage: "<submission-id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			EnvVars:  []string{"DATABASE_URL"},
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		id := cctx.Args().First()
		if id == "" {
			return fmt.Errorf("no submission id given")
		}

		db, err := sql.Open("postgres", cctx.String("database-url"))
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cctx.Context, 10*time.Second)
		defer cancel()
		entry, err := audit.NewStore(db).Latest(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("no audit entry for submission %q", id)
		}
		return printJSON(cctx.App.Writer, entry)
	},
}

type reputationOutput struct {
	moderation.UserReputation
	BadReputation     bool `json:"bad_reputation"`
	RemainingRequests int  `json:"remaining_moderate_requests"`
}

var reputationCmd = &cli.Command{
	Name:  "reputation",
	Usage: "show or reset the stored reputation of a user",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "redis-addr",
			Value:   "localhost:6379",
			EnvVars: []string{"REDIS_ADDR"},
		},
		&cli.StringFlag{
			Name:     "user",
			Required: true,
		},
		&cli.IntFlag{
			Name:    "rate-limit",
			Value:   ratelimit.RuleModerate.Limit,
			EnvVars: []string{"RATE_LIMIT"},
		},
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "delete the stored reputation instead of printing it",
		},
	},
	Action: func(cctx *cli.Context) error {
		rdb := redis.NewClient(&redis.Options{Addr: cctx.String("redis-addr")})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(cctx.Context, 10*time.Second)
		defer cancel()
		store := reputation.NewStore(rdb)
		user := cctx.String("user")

		if cctx.Bool("reset") {
			if err := store.Delete(ctx, user); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cctx.App.Writer, "reputation of %s reset\n", user)
			return err
		}

		rep, err := store.Get(ctx, user)
		if err != nil {
			return err
		}
		rule := ratelimit.RuleModerate
		rule.Limit = cctx.Int("rate-limit")
		remaining, err := ratelimit.NewLimiter(rdb, nil).Remaining(ctx, user, rule)
		if err != nil {
			return err
		}
		return printJSON(cctx.App.Writer, reputationOutput{
			UserReputation:    rep,
			BadReputation:     moderation.HasBadReputation(rep),
			RemainingRequests: remaining,
		})
	},
}

var watchReviewsCmd = &cli.Command{
	Name:  "watch-reviews",
	Usage: "print decisions published to the review queue until interrupted",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "nats-url",
			Value:   nats.DefaultURL,
			EnvVars: []string{"NATS_URL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := messaging.DefaultNATSConfig()
		cfg.URL = cctx.String("nats-url")
		cfg.Name = "modcheck-watch"
		client, err := messaging.NewNATSClient(cfg, nil)
		if err != nil {
			return err
		}
		defer client.Close()

		decisions := make(chan protocol.DecisionMsg, 64)
		err = client.Subscribe(messaging.SubjectReview, func(msg *nats.Msg) {
			var d protocol.DecisionMsg
			if json.Unmarshal(msg.Data, &d) != nil {
				return
			}
			select {
			case decisions <- d:
			default:
			}
		})
		if err != nil {
			return err
		}

		w := cctx.App.Writer
		for {
			select {
			case <-ctx.Done():
				return nil
			case d := <-decisions:
				fmt.Fprintf(w, "%s  %-8s %-6s user=%s risk=%s score=%d reason=%q\n",
					d.Report.Metadata.AnalyzedAt.Format(time.RFC3339),
					d.Kind, d.Action, d.UserID, d.OverallRisk, d.CombinedScore,
					d.Report.Recommendations.Reason)
			}
		}
	},
}

func userFromFlags(cctx *cli.Context) (moderation.UserReputation, error) {
	role := moderation.Role(cctx.String("role"))
	switch role {
	case moderation.RoleUser, moderation.RoleModerator, moderation.RoleAdmin:
	default:
		return moderation.UserReputation{}, fmt.Errorf("unknown role %q", role)
	}
	trust := moderation.TrustLevel(cctx.String("trust"))
	switch trust {
	case moderation.TrustNew, moderation.TrustBasic, moderation.TrustTrusted, moderation.TrustModerator:
	default:
		return moderation.UserReputation{}, fmt.Errorf("unknown trust level %q", trust)
	}
	if cctx.Int("posts") < 0 || cctx.Int("reports") < 0 {
		return moderation.UserReputation{}, fmt.Errorf("posts and reports must not be negative")
	}
	return moderation.UserReputation{
		Role:            role,
		TrustLevel:      trust,
		AutoApproval:    cctx.Bool("auto-approval"),
		PostsCount:      cctx.Int("posts"),
		ReportsReceived: cctx.Int("reports"),
	}, nil
}

// bodyArg joins the positional arguments, or reads everything from stdin
// when the only argument is "-".
func bodyArg(cctx *cli.Context) (string, error) {
	args := cctx.Args().Slice()
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(cctx.App.Reader)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("no content given")
	}
	return strings.Join(args, " "), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
