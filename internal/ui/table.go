package ui

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"linkchain/internal/history"
)

var historyHeaders = []string{"When", "Page", "Took", "Candidates", "Links", "Failures", "OK"}

func historyRow(e history.Entry) []string {
	ok := "no"
	if e.OK {
		ok = "yes"
	}
	return []string{
		e.Started().Format("2006-01-02 15:04:05"),
		e.PageURL,
		e.Duration().String(),
		fmt.Sprint(e.Candidates),
		fmt.Sprint(e.Links),
		fmt.Sprint(e.Failures),
		ok,
	}
}

// HistoryTable renders journal entries as a bordered table.
func HistoryTable(entries []history.Entry) string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = historyRow(e)
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(helpStyle).
		Headers(historyHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return style.Bold(true)
			case row >= 0 && row < len(rows) && col == len(historyHeaders)-1 && rows[row][col] == "no":
				return style.Foreground(lipgloss.Color("196"))
			}
			return style
		}).
		Render()
}

// WriteHistory writes entries as tab-separated columns for pipes.
func WriteHistory(w io.Writer, entries []history.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, h := range historyHeaders {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, e := range entries {
		for i, col := range historyRow(e) {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, col)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
