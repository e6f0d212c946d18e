// Package compiler builds agent binaries with the communication token
// linked in at build time.
package compiler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Daemonophobic/phalerum-api/internal/config"
	"github.com/Daemonophobic/phalerum-api/internal/operr"
	"github.com/Daemonophobic/phalerum-api/pkg/crypto"
	"github.com/Daemonophobic/phalerum-api/pkg/models"
)

// tokenPattern rejects anything but alphanumeric tokens before they reach
// the build command line.
var tokenPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

const artifactNameLength = 25

// Pipeline compiles agent binaries. Builds run through a bounded worker
// slot pool so unauthenticated callers cannot pile up build processes.
type Pipeline struct {
	sourceDir string
	outputDir string
	timeout   time.Duration
	slots     chan struct{}

	// buildCmd constructs the build invocation, swappable in tests.
	buildCmd func(ctx context.Context, token, artifactPath string) *exec.Cmd
}

// New creates a compiler pipeline from configuration.
func New(cfg config.CompilerConfig) *Pipeline {
	p := &Pipeline{
		sourceDir: cfg.SourceDir,
		outputDir: cfg.OutputDir,
		timeout:   cfg.Timeout,
		slots:     make(chan struct{}, cfg.Workers),
	}
	p.buildCmd = p.goBuildCmd
	return p
}

func (p *Pipeline) goBuildCmd(ctx context.Context, token, artifactPath string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "go", "build",
		"-ldflags", fmt.Sprintf("-X main.Comtoken=%s", token),
		"-o", artifactPath, ".")
	cmd.Dir = p.sourceDir
	return cmd
}

// Compile builds a binary for the agent with the token linked in and
// returns the artifact path. The artifact name is random so concurrent
// compiles never collide. The caller owns the artifact and must Cleanup
// it on every exit path.
func (p *Pipeline) Compile(ctx context.Context, agent *models.Agent, token string) (string, error) {
	if !tokenPattern.MatchString(token) {
		return "", operr.ErrForbidden
	}
	if agent.OS != models.OSLinux {
		// No build target exists for other platforms yet.
		return "", operr.ErrCompilerError
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-p.slots }()

	name, err := crypto.GenerateString(artifactNameLength)
	if err != nil {
		return "", err
	}
	artifactPath := filepath.Join(p.outputDir, name)

	buildCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := p.buildCmd(buildCtx, token, artifactPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		p.Cleanup(artifactPath)
		log.Error().
			Err(err).
			Str("agent_id", agent.ID).
			Bytes("build_output", out).
			Msg("Agent build failed")
		return "", operr.ErrCompilerError
	}

	log.Info().
		Str("agent_id", agent.ID).
		Str("artifact", name).
		Msg("Agent binary compiled")
	return artifactPath, nil
}

// Cleanup removes a built artifact. Missing files are ignored.
func (p *Pipeline) Cleanup(artifactPath string) {
	if artifactPath == "" {
		return
	}
	if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("artifact", artifactPath).Msg("Failed to remove artifact")
	}
}
