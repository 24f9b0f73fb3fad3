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
	"github.com/bullscale/bullscale/pkg/orchestrator"
	"github.com/bullscale/bullscale/pkg/queue"
	"github.com/bullscale/bullscale/pkg/scaler"
	"github.com/bullscale/bullscale/pkg/utils"
)

func main() {
	cmd := &cli.Command{
		Name:  "scaler",
		Usage: "scale a compose worker service from queue depth",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "redis-host", Value: "redis", Usage: "Redis host", Sources: cli.EnvVars("REDIS_HOST")},
			&cli.IntFlag{Name: "redis-port", Value: 6379, Usage: "Redis port", Sources: cli.EnvVars("REDIS_PORT")},
			&cli.StringFlag{Name: "redis-password", Usage: "Redis password", Sources: cli.EnvVars("REDIS_PASSWORD")},
			&cli.IntFlag{Name: "redis-db", Value: 0, Usage: "Redis database number", Sources: cli.EnvVars("REDIS_DB")},
			&cli.BoolFlag{Name: "redis-tls", Usage: "use TLS for the Redis connection", Sources: cli.EnvVars("REDIS_TLS")},

			&cli.IntFlag{Name: "min-replicas", Value: 1, Usage: "minimum number of worker replicas", Sources: cli.EnvVars("MIN_REPLICAS")},
			&cli.IntFlag{Name: "max-replicas", Value: 5, Usage: "maximum number of worker replicas", Sources: cli.EnvVars("MAX_REPLICAS")},
			&cli.IntFlag{Name: "scale-up-threshold", Value: 5, Usage: "queue length that triggers a scale up", Sources: cli.EnvVars("SCALE_UP_QUEUE_THRESHOLD")},
			&cli.IntFlag{Name: "scale-down-threshold", Value: 0, Usage: "queue length that triggers a scale down", Sources: cli.EnvVars("SCALE_DOWN_QUEUE_THRESHOLD")},
			&cli.IntFlag{Name: "polling-interval", Value: 30, Usage: "seconds between poll cycles", Sources: cli.EnvVars("POLLING_INTERVAL_SECONDS")},
			&cli.IntFlag{Name: "cooldown-period", Value: 120, Usage: "seconds between scaling actions", Sources: cli.EnvVars("COOLDOWN_PERIOD_SECONDS")},

			&cli.StringFlag{Name: "queue-prefix", Value: "bull", Usage: "queue key prefix", Sources: cli.EnvVars("QUEUE_NAME_PREFIX")},
			&cli.StringFlag{Name: "queue-name", Value: "jobs", Usage: "queue name", Sources: cli.EnvVars("QUEUE_NAME")},

			&cli.StringFlag{Name: "service-name", Value: "worker", Usage: "compose service to scale", Sources: cli.EnvVars("WORKER_SERVICE_NAME")},
			&cli.StringFlag{Name: "project-name", Usage: "compose project name", Sources: cli.EnvVars("COMPOSE_PROJECT_NAME")},
			&cli.StringFlag{Name: "compose-file", Value: "/app/docker-compose.yml", Usage: "path to the compose file", Sources: cli.EnvVars("COMPOSE_FILE_PATH")},

			&cli.StringFlag{Name: "health-address", Value: ":8081", Usage: "health server listen address", Sources: cli.EnvVars("HEALTH_ADDRESS")},

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
	cfg := config.ScalerConfig{
		MinReplicas:        cmd.Int("min-replicas"),
		MaxReplicas:        cmd.Int("max-replicas"),
		ScaleUpThreshold:   cmd.Int("scale-up-threshold"),
		ScaleDownThreshold: cmd.Int("scale-down-threshold"),
		PollInterval:       time.Duration(cmd.Int("polling-interval")) * time.Second,
		CooldownPeriod:     time.Duration(cmd.Int("cooldown-period")) * time.Second,
		QueueNamePrefix:    cmd.String("queue-prefix"),
		QueueName:          cmd.String("queue-name"),
		ServiceName:        cmd.String("service-name"),
		ProjectName:        cmd.String("project-name"),
		ComposeFile:        cmd.String("compose-file"),
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

	bounds := orchestrator.Bounds{Min: cfg.MinReplicas, Max: cfg.MaxReplicas}
	orch, err := orchestrator.NewComposeClient(cfg, bounds, logger)
	if err != nil {
		return err
	}
	if err := orch.ValidateSetup(ctx); err != nil {
		return err
	}

	rec := health.NewRecorder()
	s, err := scaler.New(ctx, cfg, qc, orch, rec, logger)
	if err != nil {
		return err
	}

	server := health.NewServer(cmd.String("health-address"), 3*cfg.PollInterval, rec, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })

	return g.Wait()
}
