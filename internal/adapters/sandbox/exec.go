package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/okapihq/okapi/internal/adapters/toolfw"
	"github.com/okapihq/okapi/internal/core/domain"
)

const defaultImage = "alpine:latest"

// Runner executes shell commands inside short-lived Docker containers
// with networking disabled. It backs the sandboxed exec tool.
type Runner struct {
	cli     *client.Client
	image   string
	timeout time.Duration
}

func NewRunner(image string, timeout time.Duration) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if image == "" {
		image = defaultImage
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{cli: cli, image: image, timeout: timeout}, nil
}

// Ping verifies the Docker daemon is reachable.
func (r *Runner) Ping(ctx context.Context) error {
	_, err := r.cli.Ping(ctx)
	return err
}

// ExecTool builds the sandboxed exec tool definition and executor.
func ExecTool(r *Runner) (domain.ToolDefinition, toolfw.Executor) {
	cmdSchema := openapi3.NewStringSchema()
	cmdSchema.Description = "shell command to run inside the sandbox"
	schema := openapi3.NewObjectSchema().WithProperty("command", cmdSchema)
	schema.Required = []string{"command"}

	def := domain.ToolDefinition{
		Name:        "exec",
		Description: "Runs a shell command in an isolated container (no network)",
		Parameters:  schema,
	}

	exec := func(ctx context.Context, params map[string]any) (any, error) {
		command, _ := params["command"].(string)
		if command == "" {
			return nil, fmt.Errorf("command cannot be empty")
		}
		return r.run(ctx, command)
	}

	return def, exec
}

func (r *Runner) run(ctx context.Context, command string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cfg := &container.Config{
		Image: r.image,
		Cmd:   []string{"sh", "-c", command},
		Labels: map[string]string{
			"okapi.managed": "true",
		},
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			NanoCPUs: int64(0.5 * 1e9),
			Memory:   256 * 1024 * 1024,
		},
	}

	created, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create sandbox container: %w", err)
	}
	defer func() {
		_ = r.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
	}()

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start sandbox container: %w", err)
	}

	var exitCode int64
	statusCh, errCh := r.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("wait for sandbox container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return nil, fmt.Errorf("sandbox command timed out: %w", ctx.Err())
	}

	logs, err := r.cli.ContainerLogs(ctx, created.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("read sandbox logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("demux sandbox logs: %w", err)
	}

	return map[string]any{
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	}, nil
}
