package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Filter is the status scope applied to the displayed list.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterPending Filter = "pending"
	FilterDone    Filter = "done"
)

// Filters lists the filters in display order.
var Filters = []Filter{FilterAll, FilterPending, FilterDone}

// ParseFilter converts user input into a Filter. Empty input yields FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPending, FilterDone:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

func (f Filter) keep(t Task) bool {
	switch f {
	case FilterPending:
		return !t.Done
	case FilterDone:
		return t.Done
	default:
		return true
	}
}

// Stats aggregates the whole collection.
type Stats struct {
	Total   int `json:"total" yaml:"total"`
	Pending int `json:"pending" yaml:"pending"`
	Done    int `json:"done" yaml:"done"`
}

// ComputeStats counts tasks by status. It must be given the unfiltered collection.
func ComputeStats(tasks []Task) Stats {
	done := 0
	for _, t := range tasks {
		if t.Done {
			done++
		}
	}
	return Stats{Total: len(tasks), Pending: len(tasks) - done, Done: done}
}

// Project returns the tasks matching filter and searchTerm in input order.
// The input slice is not modified and the result is never nil.
func Project(tasks []Task, filter Filter, searchTerm string) []Task {
	term := foldCase(strings.TrimSpace(searchTerm))
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !filter.keep(t) {
			continue
		}
		if term != "" && !strings.Contains(foldCase(t.Title), term) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// foldCase builds a fresh Caser per call; Casers are stateful.
func foldCase(s string) string {
	if s == "" {
		return s
	}
	return cases.Fold().String(s)
}

// View is what a presentation adapter renders.
type View struct {
	Tasks  []Task `json:"tasks" yaml:"tasks"`
	Stats  Stats  `json:"stats" yaml:"stats"`
	Empty  bool   `json:"empty" yaml:"empty"`
	Filter Filter `json:"filter" yaml:"filter"`
	Search string `json:"search,omitempty" yaml:"search,omitempty"`
}

// NewView projects tasks and computes stats over the full collection.
func NewView(tasks []Task, filter Filter, searchTerm string) View {
	if filter == "" {
		filter = FilterAll
	}
	projected := Project(tasks, filter, searchTerm)
	return View{
		Tasks:  projected,
		Stats:  ComputeStats(tasks),
		Empty:  len(projected) == 0,
		Filter: filter,
		Search: strings.TrimSpace(searchTerm),
	}
}
