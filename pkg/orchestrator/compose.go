package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/bullscale/bullscale/pkg/config"
)

const (
	composeServiceLabel = "com.docker.compose.service"
	composeProjectLabel = "com.docker.compose.project"
)

// ComposeClient scales a Docker Compose service. Replica counting goes
// through the Docker API; scaling shells out to the compose CLI, which is
// the only way to change the scale of a compose service and is idempotent
// when called with the current target.
type ComposeClient struct {
	docker *client.Client
	logger *slog.Logger

	projectName string
	composeFile string
	bounds      Bounds
}

// NewComposeClient connects to the Docker daemon and returns a client for
// the given compose project.
func NewComposeClient(cfg config.ScalerConfig, bounds Bounds, logger *slog.Logger) (*ComposeClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &Error{Kind: KindPermanent, Err: fmt.Errorf("could not create Docker client: %w", err)}
	}

	return &ComposeClient{
		docker:      cli,
		logger:      logger,
		projectName: cfg.ProjectName,
		composeFile: cfg.ComposeFile,
		bounds:      bounds,
	}, nil
}

// ValidateSetup checks that the daemon answers, the compose file exists and
// the compose configuration parses. Called once at startup; every failure
// here is permanent because it means the deployment is broken.
func (c *ComposeClient) ValidateSetup(ctx context.Context) error {
	if _, err := c.docker.Ping(ctx); err != nil {
		return &Error{Kind: KindPermanent, Err: fmt.Errorf("Docker daemon not reachable: %w", err)}
	}

	if _, err := os.Stat(c.composeFile); err != nil {
		return &Error{Kind: KindPermanent, Err: fmt.Errorf("compose file %s: %w", c.composeFile, err)}
	}

	cmd := exec.CommandContext(ctx, "docker", "compose", "-f", c.composeFile, "config", "--quiet")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &Error{Kind: KindPermanent, Err: fmt.Errorf("compose configuration invalid: %v: %s", err, strings.TrimSpace(stderr.String()))}
	}

	c.logger.Info("compose setup validated", "project", c.projectName, "file", c.composeFile)
	return nil
}

// CurrentReplicas counts running containers carrying the compose labels of
// the service.
func (c *ComposeClient) CurrentReplicas(ctx context.Context, service string) (int, error) {
	args := filters.NewArgs(
		filters.Arg("label", composeServiceLabel+"="+service),
		filters.Arg("label", composeProjectLabel+"="+c.projectName),
		filters.Arg("status", "running"),
	)

	containers, err := c.docker.ContainerList(ctx, container.ListOptions{Filters: args})
	if err != nil {
		return 0, &Error{Kind: KindTransient, Err: fmt.Errorf("could not list containers: %w", err)}
	}

	c.logger.Debug("counted running replicas", "service", service, "project", c.projectName, "count", len(containers))
	return len(containers), nil
}

// SetReplicas scales the service to target replicas via the compose CLI
// and waits for the command to finish. A nonzero exit is a failure; success
// is never assumed without the acknowledgment.
func (c *ComposeClient) SetReplicas(ctx context.Context, service string, target int) error {
	c.bounds.Check(target)

	args := []string{
		"compose",
		"-f", c.composeFile,
		"--project-name", c.projectName,
		"up", "-d",
		"--no-deps",
		"--scale", fmt.Sprintf("%s=%d", service, target),
		service,
	}

	c.logger.Info("scaling service", "service", service, "target", target)

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if out := strings.TrimSpace(stdout.String()); out != "" {
		c.logger.Debug("scale command output", "stdout", out)
	}
	if err == nil {
		return nil
	}

	return c.classifyScaleFailure(ctx, err, stderr.String())
}

func (c *ComposeClient) classifyScaleFailure(ctx context.Context, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)

	if ctx.Err() != nil {
		return &Error{Kind: KindTransient, Err: fmt.Errorf("scale command timed out: %w", ctx.Err())}
	}
	if errors.Is(err, exec.ErrNotFound) {
		return &Error{Kind: KindPermanent, Err: fmt.Errorf("docker binary not found: %w", err)}
	}

	lower := strings.ToLower(stderr)
	if strings.Contains(lower, "no such service") || strings.Contains(lower, "no such file") {
		return &Error{Kind: KindPermanent, Err: fmt.Errorf("scale command failed: %s", stderr)}
	}

	return &Error{Kind: KindTransient, Err: fmt.Errorf("scale command failed: %v: %s", err, stderr)}
}
