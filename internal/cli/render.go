package cli

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"openpoints/internal/tracker"
)

const columnGap = 2

// renderTable prints records as an aligned table. Closed listings get
// the closing columns appended; open listings stop at the target date.
func renderTable(o *IO, records []tracker.Record, closed bool) {
	header := []string{"ID", "TOPIC", "OWNER", "STATUS", "TARGET"}
	if closed {
		header = append(header, "RESOLVED", "CLOSED BY", "COMMENT")
	}

	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, header)

	for _, rec := range records {
		row := []string{
			strconv.Itoa(rec.ID),
			rec.Topic,
			rec.Owner,
			rec.Status,
			rec.TargetResolutionDate,
		}
		if closed {
			row = append(row, rec.ActualResolutionDate, rec.ClosedBy, rec.ClosingComment)
		}

		rows = append(rows, row)
	}

	widths := make([]int, len(header))

	for _, row := range rows {
		for col, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[col] {
				widths[col] = w
			}
		}
	}

	for _, row := range rows {
		var line strings.Builder

		for col, cell := range row {
			line.WriteString(cell)

			if col < len(row)-1 {
				pad := widths[col] - runewidth.StringWidth(cell) + columnGap
				line.WriteString(strings.Repeat(" ", pad))
			}
		}

		o.Println(strings.TrimRight(line.String(), " "))
	}
}
