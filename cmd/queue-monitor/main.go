package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/bullscale/bullscale/pkg/config"
	"github.com/bullscale/bullscale/pkg/health"
	"github.com/bullscale/bullscale/pkg/monitor"
	"github.com/bullscale/bullscale/pkg/queue"
	"github.com/bullscale/bullscale/pkg/utils"
)

func main() {
	cmd := &cli.Command{
		Name:  "queue-monitor",
		Usage: "observe queue depth and log derived statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "redis-host", Value: "localhost", Usage: "Redis host", Sources: cli.EnvVars("REDIS_HOST")},
			&cli.IntFlag{Name: "redis-port", Value: 6379, Usage: "Redis port", Sources: cli.EnvVars("REDIS_PORT")},
			&cli.StringFlag{Name: "redis-password", Usage: "Redis password", Sources: cli.EnvVars("REDIS_PASSWORD")},
			&cli.IntFlag{Name: "redis-db", Value: 0, Usage: "Redis database number", Sources: cli.EnvVars("REDIS_DB")},
			&cli.BoolFlag{Name: "redis-tls", Usage: "use TLS for the Redis connection", Sources: cli.EnvVars("REDIS_TLS")},

			&cli.StringFlag{Name: "queue-prefix", Value: "bull", Usage: "queue key prefix", Sources: cli.EnvVars("QUEUE_NAME_PREFIX")},
			&cli.StringFlag{Name: "queue-name", Value: "jobs", Usage: "queue name", Sources: cli.EnvVars("QUEUE_NAME")},
			&cli.IntFlag{Name: "polling-interval", Value: 5, Usage: "seconds between poll cycles", Sources: cli.EnvVars("POLL_INTERVAL_SECONDS")},
			&cli.IntFlag{Name: "detailed-every", Value: 12, Usage: "poll cycles between detailed stats reports", Sources: cli.EnvVars("DETAILED_STATS_EVERY")},

			&cli.StringFlag{Name: "health-address", Value: ":8082", Usage: "health server listen address", Sources: cli.EnvVars("HEALTH_ADDRESS")},

			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "log level (debug, info, warn, error)", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "log format (text, json, dev)", Sources: cli.EnvVars("LOG_FORMAT")},
			&cli.StringFlag{Name: "log-file", Usage: "log file path (defaults to stdout)", Sources: cli.EnvVars("LOG_FILE")},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.MonitorConfig{
		QueueNamePrefix: cmd.String("queue-prefix"),
		QueueName:       cmd.String("queue-name"),
		PollInterval:    time.Duration(cmd.Int("polling-interval")) * time.Second,
		DetailedEvery:   cmd.Int("detailed-every"),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	redisCfg := config.RedisConfig{
		Host:     cmd.String("redis-host"),
		Port:     cmd.Int("redis-port"),
		Password: cmd.String("redis-password"),
		DB:       cmd.Int("redis-db"),
		TLS:      cmd.Bool("redis-tls"),
	}
	if err := redisCfg.Validate(); err != nil {
		return err
	}

	logger := utils.SetupLogger(cmd.String("log-level"), cmd.String("log-format"), cmd.String("log-file"))
	logger = logger.With("run_id", uuid.NewString()[:8])

	qc, err := queue.Connect(ctx, redisCfg, queue.DefaultBackoff(), logger)
	if err != nil {
		return err
	}
	defer qc.Close()

	rec := health.NewRecorder()
	m := monitor.New(cfg, qc, rec, logger)
	server := health.NewServer(cmd.String("health-address"), 3*cfg.PollInterval, rec, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })

	return g.Wait()
}
