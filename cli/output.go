package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"prism-todo/domain"
	"prism-todo/tui"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func checkOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return checkOutput(format)
}

func formatCreated(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func statsLine(st domain.Stats) string {
	return fmt.Sprintf("%d total · %d pending · %d done", st.Total, st.Pending, st.Done)
}

// renderView prints the projected list as a table followed by the stats.
func renderView(w io.Writer, view domain.View) {
	r := lipgloss.NewRenderer(w)
	muted := r.NewStyle().Foreground(lipgloss.Color("#7A8599"))

	if view.Empty {
		if view.Stats.Total == 0 {
			fmt.Fprintln(w, muted.Render("No tasks yet. Add one with `prism-todo add <title>`."))
		} else {
			fmt.Fprintln(w, muted.Render("No tasks match the current filter."))
		}
		fmt.Fprintln(w, statsLine(view.Stats))
		return
	}

	rows := make([][]string, 0, len(view.Tasks))
	for _, t := range view.Tasks {
		check := "[ ]"
		if t.Done {
			check = "[x]"
		}
		rows = append(rows, []string{check, t.ID, t.Priority.Label(), t.Title, formatCreated(t.CreatedAt)})
	}

	header := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)
	tasks := view.Tasks
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(muted).
		Headers("", "ID", "PRIORITY", "TITLE", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if row < 0 || row >= len(tasks) {
				return cell
			}
			t := tasks[row]
			switch {
			case t.Done && col == 3:
				return cell.Strikethrough(true).Foreground(lipgloss.Color("#7A8599"))
			case col == 2:
				return cell.Foreground(tui.PriorityStyle(t.Priority).GetForeground())
			}
			return cell
		})
	fmt.Fprintln(w, tbl.Render())
	fmt.Fprintln(w, statsLine(view.Stats))
}

func renderTask(w io.Writer, t domain.Task) {
	status := "pending"
	if t.Done {
		status = "done"
	}
	fmt.Fprintf(w, "ID:        %s\n", t.ID)
	fmt.Fprintf(w, "Title:     %s\n", t.Title)
	fmt.Fprintf(w, "Priority:  %s\n", t.Priority.Label())
	fmt.Fprintf(w, "Status:    %s\n", status)
	fmt.Fprintf(w, "Created:   %s\n", formatCreated(t.CreatedAt))
	fmt.Fprintf(w, "Updated:   %s\n", formatCreated(t.UpdatedAt))
}
