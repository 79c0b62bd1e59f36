package report

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// table renders rows with box-drawing borders. Column widths are computed
// on the plain cell text; colors are applied after padding so ANSI escape
// codes never skew the layout.
type table struct {
	headers []string
	rows    [][]string
	paints  []*color.Color
	widths  []int
}

func newTable(headers []string) *table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &table{headers: headers, widths: widths}
}

// addRow appends a row; paint colors the STATUS cell and may be nil
func (t *table) addRow(row []string, paint *color.Color) {
	if len(row) != len(t.headers) {
		return
	}
	t.rows = append(t.rows, row)
	t.paints = append(t.paints, paint)
	for i, cell := range row {
		if len(cell) > t.widths[i] {
			t.widths[i] = len(cell)
		}
	}
}

func (t *table) String() string {
	var sb strings.Builder

	t.writeBorder(&sb, "┌", "┬", "┐")

	sb.WriteString("│")
	for i, h := range t.headers {
		sb.WriteString(fmt.Sprintf(" %-*s ", t.widths[i], h))
		sb.WriteString("│")
	}
	sb.WriteString("\n")

	t.writeBorder(&sb, "├", "┼", "┤")

	for r, row := range t.rows {
		sb.WriteString("│")
		for i, cell := range row {
			padded := fmt.Sprintf("%-*s", t.widths[i], cell)
			if i == 1 && t.paints[r] != nil {
				padded = t.paints[r].Sprint(padded)
			}
			sb.WriteString(" " + padded + " ")
			sb.WriteString("│")
		}
		sb.WriteString("\n")
	}

	t.writeBorder(&sb, "└", "┴", "┘")

	return sb.String()
}

func (t *table) writeBorder(sb *strings.Builder, left, middle, right string) {
	sb.WriteString(left)
	for i, w := range t.widths {
		sb.WriteString(strings.Repeat("─", w+2))
		if i < len(t.widths)-1 {
			sb.WriteString(middle)
		}
	}
	sb.WriteString(right)
	sb.WriteString("\n")
}
