package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewConceptCommand returns the concept subcommand.
func NewConceptCommand() *cli.Command {
	return &cli.Command{
		Name:  "concept",
		Usage: "Manage the concept graph",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List concepts and their references",
				Action: runConceptList,
			},
			{
				Name:      "show",
				Usage:     "Show a concept's content",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "raw", Usage: "Print without terminal rendering"},
				},
				Action: runConceptShow,
			},
			{
				Name:      "create",
				Usage:     "Create a concept from the starter template",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "ref",
						Aliases: []string{"r"},
						Usage:   "Referenced concept (repeatable)",
					},
				},
				Action: runConceptCreate,
			},
			{
				Name:      "rm",
				Usage:     "Remove a concept",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Skip confirmation"},
				},
				Action: runConceptRemove,
			},
			{
				Name:   "validate",
				Usage:  "Check every concept reference resolves",
				Action: runConceptValidate,
			},
			{
				Name:   "order",
				Usage:  "Print the dependency load order",
				Action: runConceptOrder,
			},
			{
				Name:      "load",
				Usage:     "Print concepts with their references resolved",
				ArgsUsage: "<name>...",
				Action:    runConceptLoad,
			},
		},
		DefaultCommand: "list",
	}
}

func runConceptList(_ context.Context, cmd *cli.Command) error {
	graph := newConceptGraph(loadConfig(cmd))

	list, err := graph.List()
	if err != nil {
		return fmt.Errorf("list concepts: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No concepts found.")
		return nil
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREFERENCES")
	for _, c := range list {
		refs := "-"
		if len(c.References) > 0 {
			refs = strings.Join(c.References, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\n", c.Name, refs)
	}
	return w.Flush()
}

func runConceptShow(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: ctx concept show <name>")
	}

	graph := newConceptGraph(loadConfig(cmd))
	c, err := graph.Get(name)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("concept %q not found", name)
	}

	if cmd.Bool("raw") {
		fmt.Print(c.Content)
		return nil
	}
	fmt.Print(renderMarkdown(c.Content))
	return nil
}

func runConceptCreate(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: ctx concept create <name>")
	}

	graph := newConceptGraph(loadConfig(cmd))
	c, err := graph.Create(name, cmd.StringSlice("ref"))
	if err != nil {
		return err
	}
	fmt.Printf("Created %s (%s)\n", c.Name, c.Path)
	return nil
}

func runConceptRemove(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: ctx concept rm <name>")
	}

	graph := newConceptGraph(loadConfig(cmd))

	// Removal leaves references from other concepts dangling; tell the
	// user which ones before asking.
	dependents, err := graph.ReferencedBy(name)
	if err != nil {
		return err
	}
	if !cmd.Bool("force") {
		prompt := fmt.Sprintf("Remove concept %q?", name)
		if len(dependents) > 0 {
			prompt = fmt.Sprintf("Remove concept %q? It is referenced by: %s.", name, strings.Join(dependents, ", "))
		}
		if !confirm(prompt) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	existed, err := graph.Remove(name)
	if err != nil {
		return err
	}
	if !existed {
		fmt.Printf("Concept %q does not exist\n", name)
		return nil
	}
	fmt.Printf("Removed %s\n", name)
	return nil
}

func runConceptValidate(_ context.Context, cmd *cli.Command) error {
	graph := newConceptGraph(loadConfig(cmd))

	issues, err := graph.ValidateAllReferences()
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Println("All references resolve.")
		return nil
	}

	names := make([]string, 0, len(issues))
	for name := range issues {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: missing %s\n", name, strings.Join(issues[name], ", "))
	}
	return fmt.Errorf("%d concepts have unresolved references", len(issues))
}

func runConceptOrder(_ context.Context, cmd *cli.Command) error {
	graph := newConceptGraph(loadConfig(cmd))

	order, err := graph.LoadOrder()
	if err != nil {
		return err
	}
	for i, name := range order {
		fmt.Printf("%2d. %s\n", i+1, name)
	}
	return nil
}

func runConceptLoad(_ context.Context, cmd *cli.Command) error {
	names := cmd.Args().Slice()
	if len(names) == 0 {
		return fmt.Errorf("usage: ctx concept load <name>...")
	}

	graph := newConceptGraph(loadConfig(cmd))
	content, err := graph.LoadWithDependencies(names)
	if err != nil {
		return err
	}
	if content == "" {
		fmt.Println("No matching concepts.")
		return nil
	}
	fmt.Print(content)
	return nil
}
