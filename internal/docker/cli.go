package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
	"github.com/input-output-hk/catalyst-forge-libs/executor"
)

// CLI drives Docker Swarm through the docker binary. `docker stack deploy`
// is idempotent (an unchanged stack is a no-change update) and `docker stack
// rm` of an absent stack is mapped to success here, which is exactly the
// contract the reconciler requires.
type CLI struct {
	binary string
	logger *slog.Logger
}

var _ Client = (*CLI)(nil)

// NewCLI creates a client that shells out to the given docker binary.
func NewCLI(binary string, logger *slog.Logger) *CLI {
	if binary == "" {
		binary = "docker"
	}
	return &CLI{
		binary: binary,
		logger: logger,
	}
}

// command builds a one-shot executor. Each invocation gets its own options
// so an overlay passed to one deploy never bleeds into later calls.
func (c *CLI) command(args ...string) *executor.CommandExecutor {
	return executor.New(c.binary, args...)
}

// Apply runs `docker stack deploy` with the compose definition on stdin. Env
// overlay variables are exported to the deploy process so compose variable
// interpolation sees them, matching `docker stack deploy` run from a shell
// with the env file sourced.
func (c *CLI) Apply(ctx context.Context, name string, definition, overlay []byte) error {
	opts := []executor.Option{}
	if overlay != nil {
		opts = append(opts, executor.WithEnv(ParseEnvOverlay(overlay)))
	}

	cmd := c.command("stack", "deploy", "--compose-file", "-", name)
	result, err := cmd.ExecuteWithInput(ctx, string(definition), opts...)
	if err != nil {
		return c.wrapErr("deploying stack", name, result, err)
	}

	if result.Stdout != "" {
		c.logger.Debug("docker stack deploy output", "stack", name, "output", strings.TrimSpace(result.Stdout))
	}
	return nil
}

// Remove runs `docker stack rm`.
func (c *CLI) Remove(ctx context.Context, name string) error {
	result, err := c.command("stack", "rm", name).Execute(ctx)
	if err != nil {
		// Removing a stack that is not there is a success for our caller.
		if result != nil && strings.Contains(result.Stderr, "Nothing found in stack") {
			c.logger.Debug("stack already absent", "stack", name)
			return nil
		}
		return c.wrapErr("removing stack", name, result, err)
	}
	return nil
}

// Ping checks that the docker daemon is reachable and in swarm mode.
func (c *CLI) Ping(ctx context.Context) error {
	result, err := c.command("info", "--format", "{{.Swarm.LocalNodeState}}").Execute(ctx)
	if err != nil {
		return c.wrapErr("pinging daemon", "", result, err)
	}
	if state := strings.TrimSpace(result.Stdout); state != "active" {
		return fmt.Errorf("swarm node state is %q, expected active", state)
	}
	return nil
}

// wrapErr classifies a failed docker invocation. A missing binary or an
// unreachable daemon is the platform being down, not a stack-specific
// failure, and the reconciler short-circuits the rest of the cycle on it.
func (c *CLI) wrapErr(op, name string, result *executor.Result, err error) error {
	stderr := ""
	if result != nil {
		stderr = strings.TrimSpace(result.Stderr)
	}

	if daemonUnreachable(stderr, err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrOrchestratorUnavailable, firstLine(stderr, err))
	}
	if name != "" {
		op = fmt.Sprintf("%s %s", op, name)
	}
	if stderr != "" {
		return fmt.Errorf("%s: %s: %w", op, firstLine(stderr, nil), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func daemonUnreachable(stderr string, err error) bool {
	if strings.Contains(stderr, "Cannot connect to the Docker daemon") {
		return true
	}
	if err != nil && strings.Contains(err.Error(), "executable file not found") {
		return true
	}
	return false
}

func firstLine(stderr string, fallback error) any {
	if stderr != "" {
		if i := strings.IndexByte(stderr, '\n'); i >= 0 {
			return stderr[:i]
		}
		return stderr
	}
	return fallback
}
