package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"prism-todo/domain"
	"prism-todo/store"
)

func (a *app) addCmd() *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			t, err := s.Create(cmd.Context(), strings.Join(args, " "), domain.Priority(priority))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) %s\n", t.ID, t.Priority.Label(), t.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&priority, "priority", "p", string(domain.DefaultPriority), "low, medium or high")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var filter, search, output string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := domain.ParseFilter(filter)
			if err != nil {
				return err
			}
			if err := checkOutput(output); err != nil {
				return err
			}
			s, done, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			view := s.View(f, search)
			if output != outputTable {
				return writeStructured(cmd.OutOrStdout(), output, view)
			}
			renderView(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", string(domain.FilterAll), "all, pending or done")
	cmd.Flags().StringVarP(&search, "search", "s", "", "only titles containing this text")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "table, json or yaml")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			s, done, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			t, err := lookup(s, args[0])
			if err != nil {
				return err
			}
			if output != outputTable {
				return writeStructured(cmd.OutOrStdout(), output, t)
			}
			renderTask(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "table, json or yaml")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var title, priority string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the title or priority of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("title") && !cmd.Flags().Changed("priority") {
				return fmt.Errorf("nothing to change: pass --title and/or --priority")
			}
			s, done, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			current, err := lookup(s, args[0])
			if err != nil {
				return err
			}
			// unset flags keep the stored values
			newTitle, newPriority := current.Title, current.Priority
			if cmd.Flags().Changed("title") {
				newTitle = title
			}
			if cmd.Flags().Changed("priority") {
				newPriority = domain.Priority(priority)
			}
			if err := s.Update(cmd.Context(), current.ID, newTitle, newPriority); err != nil {
				return err
			}
			updated, _ := s.Get(current.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s) %s\n", updated.ID, updated.Priority.Label(), updated.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority: low, medium or high")
	return cmd
}

func (a *app) doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "done <id>",
		Aliases: []string{"toggle"},
		Short:   "Toggle a task between pending and done",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			t, err := lookup(s, args[0])
			if err != nil {
				return err
			}
			if err := s.ToggleDone(cmd.Context(), t.ID); err != nil {
				return err
			}
			t, _ = s.Get(t.ID)
			state := "pending"
			if t.Done {
				state = "done"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %q as %s\n", t.Title, state)
			return nil
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task after confirmation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			t, err := lookup(s, args[0])
			if err != nil {
				return err
			}
			var confirm store.Confirmer = newPromptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
			if yes {
				confirm = store.AlwaysConfirm
			}
			removed, err := s.Remove(cmd.Context(), t.ID, confirm)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q\n", t.Title)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Kept %q\n", t.Title)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count tasks by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			s, done, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			st := s.Stats()
			if output != outputTable {
				return writeStructured(cmd.OutOrStdout(), output, st)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statsLine(st))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "table, json or yaml")
	return cmd
}

// lookup finds a task by full id or unique id prefix.
func lookup(s *store.Store, ref string) (domain.Task, error) {
	if t, ok := s.Get(ref); ok {
		return t, nil
	}
	var (
		match domain.Task
		found bool
	)
	for _, t := range s.Tasks() {
		if !strings.HasPrefix(t.ID, ref) {
			continue
		}
		if found {
			return domain.Task{}, fmt.Errorf("id %q matches more than one task", ref)
		}
		match, found = t, true
	}
	if !found || ref == "" {
		return domain.Task{}, fmt.Errorf("no task with id %q", ref)
	}
	return match, nil
}

// promptConfirmer asks on out and reads a y/N answer from in.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) promptConfirmer {
	return promptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p promptConfirmer) Confirm(_ context.Context, prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
