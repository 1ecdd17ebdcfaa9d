package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"contextualize/internal/concepts"
	"contextualize/internal/config"
	"contextualize/internal/tasks"
)

func newTaskStore(cfg *config.Config) *tasks.FileStore {
	return tasks.NewFileStore(cfg.Paths.LogsDir)
}

func newConceptGraph(cfg *config.Config) *concepts.Graph {
	return concepts.NewGraph(cfg.Paths.ConceptsDir)
}

// renderMarkdown pretty-prints markdown for the terminal. On a
// non-terminal stdout, or when rendering fails, the raw text is
// returned unchanged.
func renderMarkdown(content string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return content
	}
	out, err := glamour.Render(content, "auto")
	if err != nil {
		return content
	}
	return out
}

// confirm asks the user before a destructive operation. Without a
// terminal it refuses, so scripts must pass --force.
func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func statusLine(t *tasks.Task) string {
	return fmt.Sprintf("%s %s  %-10s %s", t.Status.Meta().Icon, t.ShortID(), t.Status, t.Description)
}
