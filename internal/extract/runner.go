package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/joseph-ayodele/resume-scanner/internal/common"
)

// stderrLogCap bounds how much tool stderr ends up in a log line.
const stderrLogCap = 8 << 10

// Runner runs an external extraction tool (pdftotext, tesseract, ...).
// Tests swap in a stub.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// execRunner runs tools as child processes. The process is killed when ctx
// ends, which is how a task deadline reaches a stuck OCR run.
type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	log := common.LoggerFromContext(ctx, r.logger).With("tool", name, "argc", len(args))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	began := time.Now()
	err := cmd.Run()
	elapsed := time.Since(began).Milliseconds()

	switch {
	case err == nil:
		log.Debug("tool finished", "elapsed_ms", elapsed, "stdout_bytes", stdout.Len(), "stderr_bytes", stderr.Len())
	case ctx.Err() != nil:
		log.Warn("tool stopped by context", "elapsed_ms", elapsed, "cause", ctx.Err())
	default:
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		log.Error("tool failed",
			"elapsed_ms", elapsed,
			"exit_code", exitCode,
			"args", strings.Join(args, " "),
			"stderr", clip(stderr.String(), stderrLogCap),
			"error", err,
		)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
