package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"scancoord/internal/envsafe"
	"scancoord/internal/model"
	"scancoord/internal/redact"
)

const (
	PathPlaceholder = "{path}"
	DefaultTimeout  = 2 * time.Minute

	maxStderr = 4 * 1024
)

var ErrEmptyCommand = errors.New("engine command is empty")

// Command runs an external scanner once per file and parses its JSON report
// from stdout. Every "{path}" in Args is replaced by the file path. With
// Stdin set, the file content is piped to the process, which allows scanning
// unsaved buffers.
type Command struct {
	EngineName string
	Bin        string
	Args       []string
	Parser     Parser
	Timeout    time.Duration
	Stdin      bool
	Env        []string
}

func (c *Command) Name() string { return c.EngineName }

func (c *Command) Scan(ctx context.Context, path string, content Content) ([]model.Finding, error) {
	if strings.TrimSpace(c.Bin) == "" {
		return nil, ErrEmptyCommand
	}
	if c.Parser == nil {
		return nil, fmt.Errorf("engine %s has no parser", c.EngineName)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		args = append(args, strings.ReplaceAll(a, PathPlaceholder, path))
	}

	cmd := exec.CommandContext(ctx, c.Bin, args...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = time.Second
	cmd.Env = envsafe.EngineEnv(os.Environ(), append([]string{"SCANCOORD_TARGET=" + path}, c.Env...)...)
	if c.Stdin && content != nil {
		data, err := content.Bytes()
		if err != nil {
			return nil, fmt.Errorf("read content of %s: %w", path, err)
		}
		cmd.Stdin = bytes.NewReader(data)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Engines may fork helpers; on cancellation the whole group goes.
	cmd.Cancel = func() error {
		killCommandProcessGroup(cmd)
		return nil
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", c.EngineName, ctxErr)
		}
		// Several scanners exit non-zero when they report findings.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || stdout.Len() == 0 {
			return nil, fmt.Errorf("%s: %w: %s", c.EngineName, err, stderrSummary(stderr.Bytes()))
		}
	}

	findings, err := c.Parser(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.EngineName, err)
	}
	return findings, nil
}

func stderrSummary(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	if s == "" {
		return "no stderr output"
	}
	return redact.Text(s)
}
