package main

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// maxCellWidth truncates long titles so rows fit a terminal.
const maxCellWidth = 48

// writeTable renders rows as an aligned, pipe-separated table. Widths are
// measured in display cells so CJK and emoji titles line up.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	widths := make([]int, len(header))
	cells := make([][]string, 0, len(rows)+1)
	cells = append(cells, header)
	for _, r := range rows {
		row := make([]string, len(header))
		for i := range header {
			if i < len(r) {
				row[i] = runewidth.Truncate(r[i], maxCellWidth, "…")
			}
		}
		cells = append(cells, row)
	}
	for _, row := range cells {
		for i, c := range row {
			if n := runewidth.StringWidth(c); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var sb strings.Builder
	for ri, row := range cells {
		sb.WriteString("|")
		for i, c := range row {
			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(c, widths[i]))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
		if ri == 0 {
			sb.WriteString("|")
			for _, n := range widths {
				sb.WriteString(strings.Repeat("-", n+2))
				sb.WriteString("|")
			}
			sb.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
