// Package prover invokes the external zero-knowledge verifier binary and
// parses the proof manifest it operates on.
package prover

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"por-go/internal/por"
)

var versionPattern = regexp.MustCompile(`v\d+\.\d+\.\d+`)

// Oracle runs the prover binary as a subprocess. The binary's exit status is
// the verdict: zero means the proof checked out, non-zero means it did not.
type Oracle struct {
	binary        string
	verifyTimeout time.Duration
	updateCommand string
	log           por.Logger

	mu      sync.Mutex
	version string
}

// NewOracle creates an Oracle and probes the installed prover version once.
func NewOracle(binary string, verifyTimeout time.Duration, updateCommand string, log por.Logger) *Oracle {
	if log == nil {
		log = por.NopLogger{}
	}
	o := &Oracle{
		binary:        binary,
		verifyTimeout: verifyTimeout,
		updateCommand: updateCommand,
		log:           log,
	}
	o.version = o.probeVersion()
	return o
}

var _ por.Oracle = (*Oracle)(nil)

// Verify runs the prover's verify subcommand with the working directory set
// to the extract path. A non-zero exit is an invalid proof, not an error;
// errors are reserved for the subprocess failing to run at all.
func (o *Oracle) Verify(ctx context.Context, extractPath string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, o.verifyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.binary, "verify")
	cmd.Dir = extractPath

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			o.log.Info("proof rejected", "path", extractPath, "exitCode", exitErr.ExitCode(), "output", string(output))
			return false, nil
		}
		return false, fmt.Errorf("running %s verify: %w", o.binary, err)
	}
	return true, nil
}

// Version returns the prover version probed at startup or after the last
// update, or "unknown" when probing failed.
func (o *Oracle) Version() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.version
}

// Update runs the configured update command and re-probes the version.
func (o *Oracle) Update(ctx context.Context) error {
	if o.updateCommand == "" {
		return fmt.Errorf("no update command configured")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", o.updateCommand)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("updating prover: %w: %s", err, string(output))
	}

	version := o.probeVersion()
	o.mu.Lock()
	o.version = version
	o.mu.Unlock()

	o.log.Info("prover updated", "version", version)
	return nil
}

func (o *Oracle) probeVersion() string {
	output, err := exec.Command(o.binary, "version").CombinedOutput()
	if err != nil {
		return "unknown"
	}
	if match := versionPattern.FindString(string(output)); match != "" {
		return match
	}
	return "unknown"
}
