package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GoCodeAlone/taskmaster/task"
)

var titler = cases.Title(language.English)

// label turns a status or kind like "in-progress" into "In Progress".
func label(s string) string {
	return titler.String(strings.NewReplacer("-", " ", "_", " ").Replace(s))
}

func statusColor(s task.Status) *color.Color {
	switch s {
	case task.StatusDone, task.StatusCompleted:
		return color.New(color.FgGreen)
	case task.StatusInProgress:
		return color.New(color.FgBlue)
	case task.StatusReview:
		return color.New(color.FgMagenta)
	case task.StatusBlocked:
		return color.New(color.FgRed)
	case task.StatusDeferred, task.StatusCancelled:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgYellow)
	}
}

// colorStatus pads before colouring so table columns stay aligned.
func colorStatus(s task.Status, width int) string {
	return statusColor(s).Sprintf("%-*s", width, s)
}

func priorityColor(p task.Priority) *color.Color {
	switch p {
	case task.PriorityHigh:
		return color.New(color.FgRed, color.Bold)
	case task.PriorityLow:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.Reset)
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit prints v as JSON under --json, otherwise runs table.
func (a *app) emit(v any, table func(w io.Writer)) error {
	if a.flags.jsonOut {
		return a.printJSON(v)
	}
	table(a.out)
	return nil
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.YellowString("⚠"), fmt.Sprintf(format, args...))
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func joinInts(ns []int) string {
	if len(ns) == 0 {
		return "-"
	}
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
