package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/attendance-api/pkg/config"
)

// ExecRecognizer shells out to an external matching program. The program
// receives one positional argument (a JPEG path) and must print exactly one
// JSON document on stdout. The invocation is bounded by a timeout; the
// process is killed when it elapses. The staged image file is removed on
// every exit path.
type ExecRecognizer struct {
	command string
	script  string
	timeout time.Duration
	tempDir string
	logger  *zap.Logger
}

// NewExec constructs the exec-based recognizer from configuration.
func NewExec(cfg config.RecognizerConfig, logger *zap.Logger) *ExecRecognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecRecognizer{
		command: cfg.Command,
		script:  cfg.Script,
		timeout: timeout,
		tempDir: cfg.TempDir,
		logger:  logger,
	}
}

// Match stages the image to a temp file and runs the external matcher.
func (r *ExecRecognizer) Match(ctx context.Context, image []byte) (*Outcome, error) {
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}

	file, err := os.CreateTemp(r.tempDir, "face_capture_*.jpg")
	if err != nil {
		return nil, fmt.Errorf("stage capture image: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)

	if _, err := file.Write(image); err != nil {
		file.Close()
		return nil, fmt.Errorf("stage capture image: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("stage capture image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := make([]string, 0, 2)
	if r.script != "" {
		args = append(args, r.script)
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, r.command, args...)
	// A grandchild holding the inherited stdout pipe must not keep Run
	// blocked after the matcher itself is killed.
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		r.logger.Warn("recognizer timed out",
			zap.Duration("elapsed", elapsed), zap.Duration("timeout", r.timeout))
		return ErrorOutcome("face recognition timed out"), nil
	}
	if runErr != nil && !errors.Is(runErr, exec.ErrWaitDelay) {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		r.logger.Warn("recognizer process failed",
			zap.String("stderr", msg), zap.Duration("elapsed", elapsed))
		return ErrorOutcome("face recognition process failed: " + msg), nil
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return ErrorOutcome("no output from face recognition process"), nil
	}

	outcome, err := parseOutcome(out)
	if err != nil {
		r.logger.Warn("recognizer produced malformed output",
			zap.String("stdout", truncate(out, 512)), zap.Error(err))
		return ErrorOutcome("invalid response from face recognition process"), nil
	}

	r.logger.Debug("recognizer finished",
		zap.String("status", outcome.Status), zap.Duration("elapsed", elapsed))
	return outcome, nil
}

func parseOutcome(raw string) (*Outcome, error) {
	var outcome Outcome
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&outcome); err != nil {
		return nil, err
	}
	if outcome.Status == "" {
		return nil, errors.New("missing status field")
	}
	return &outcome, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
