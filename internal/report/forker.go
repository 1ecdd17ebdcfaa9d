package report

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/google/uuid"

	"contextualize/internal/config"
)

// AgentForker forks agent sessions by invoking the configured agent
// binary. The fork gets its own session id since the agent does not
// accept an explicit id together with --resume.
type AgentForker struct {
	cfg *config.Config
}

// NewAgentForker creates a forker using the configured agent binary.
func NewAgentForker(cfg *config.Config) *AgentForker {
	if cfg == nil {
		cfg = config.Default()
	}
	return &AgentForker{cfg: cfg}
}

func (f *AgentForker) ForkSession(ctx context.Context, sessionID, prompt string) (string, string, error) {
	argv := append([]string{}, f.cfg.Agent.Args...)
	argv = append(argv, "--resume", sessionID, "--fork-session", "--print", prompt)

	cmd := exec.CommandContext(ctx, f.cfg.Agent.Binary, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", "", fmt.Errorf("fork session %s: %w: %s", sessionID, err, stderr.String())
	}
	return uuid.New().String(), stdout.String(), nil
}
