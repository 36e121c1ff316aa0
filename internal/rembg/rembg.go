package rembg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/converr"
)

const capabilityName = "background removal (rembg)"

// Session is a loaded removal model. It is created once per converter and
// reused for every call.
type Session struct {
	Model  string
	binary string
}

// Remover removes image backgrounds.
type Remover interface {
	NewSession(model string) (*Session, error)
	Remove(ctx context.Context, data []byte, s *Session, postProcessMask, alphaMatting bool) ([]byte, error)
}

// CLI runs the rembg command line tool.
type CLI struct {
	binary    string
	timeout   time.Duration
	semaphore chan struct{}
}

// NewCLI creates a rembg runner. maxWorkers bounds concurrent processes.
func NewCLI(binary string, maxWorkers int, timeout time.Duration) *CLI {
	if binary == "" {
		binary = "rembg"
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &CLI{
		binary:    binary,
		timeout:   timeout,
		semaphore: make(chan struct{}, maxWorkers),
	}
}

// NewSession verifies the rembg binary is installed and binds model to it.
func (c *CLI) NewSession(model string) (*Session, error) {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		return nil, &converr.CapabilityUnavailableError{Capability: capabilityName, Err: err}
	}
	if model == "" {
		model = DefaultModel
	}
	log.Info().Str("binary", path).Str("model", model).Msg("rembg session ready")
	return &Session{Model: model, binary: path}, nil
}

// Remove runs `rembg i` on data and returns the PNG with the background removed.
func (c *CLI) Remove(ctx context.Context, data []byte, s *Session, postProcessMask, alphaMatting bool) ([]byte, error) {
	if s == nil {
		return nil, errors.New("rembg: nil session")
	}
	startTime := time.Now()

	select {
	case c.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.semaphore }()

	workDir := filepath.Join(os.TempDir(), fmt.Sprintf("rembg_%s", uuid.New().String()))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input")
	outputPath := filepath.Join(workDir, "output.png")
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to stage input: %w", err)
	}

	args := []string{"i", "-m", s.Model}
	if postProcessMask {
		args = append(args, "-ppm")
	}
	if alphaMatting {
		args = append(args, "-a")
	}
	args = append(args, inputPath, outputPath)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, s.binary, args...)

	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("rembg command")

	output, err := cmd.CombinedOutput()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("background removal timeout after %v", c.timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("background removal failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("output file not created: %w", err)
	}

	log.Debug().
		Str("model", s.Model).
		Int("in_bytes", len(data)).
		Int("out_bytes", len(out)).
		Dur("duration", time.Since(startTime)).
		Msg("background removed")

	return out, nil
}
