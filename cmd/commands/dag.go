package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"contextualize/internal/tasks"
)

// NewDAGCommand returns the dag subcommand.
func NewDAGCommand() *cli.Command {
	return &cli.Command{
		Name:      "dag",
		Usage:     "Show the task derivation tree",
		ArgsUsage: "[task_id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "log",
				Usage: "Print the raw event log instead of the tree",
			},
		},
		Action: runDAG,
	}
}

func runDAG(_ context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	store := newTaskStore(cfg)

	if cmd.Bool("log") {
		entries, err := store.DAG().Entries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}
		for _, e := range entries {
			parent := ""
			if e.ParentID != "" {
				parent = fmt.Sprintf("  parent=%s", e.ParentID[:8])
			}
			fmt.Printf("%s  %s %-10s %s%s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.TaskID[:8], e.Status, e.Description, parent)
		}
		return nil
	}

	roots, err := store.Tree(cmd.Args().First())
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		fmt.Println("No tasks recorded.")
		return nil
	}

	for _, root := range roots {
		printTree(root, 0)
	}
	return nil
}

func printTree(node *tasks.TreeNode, depth int) {
	t := node.Task
	fmt.Printf("%s%s %s %s [%s]\n",
		strings.Repeat("  ", depth), t.Status.Meta().Icon, t.ShortID(), t.Description, t.Status)
	for _, child := range node.Children {
		printTree(child, depth+1)
	}
}
