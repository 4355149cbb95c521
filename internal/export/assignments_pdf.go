package export

import (
	"fmt"
	"io"

	"edusphere/internal/deadline"
)

// Section colors, indexed by priority.
var priorityFill = map[deadline.Priority][3]int{
	deadline.Overdue:   {220, 53, 69},
	deadline.DueSoon:   {230, 145, 0},
	deadline.Pending:   {13, 110, 253},
	deadline.Completed: {25, 135, 84},
}

var assignmentHeaders = []string{"Title", "Class", "Due Date", "Status"}

// SummaryLine renders the counts shown above the assignment sections.
func SummaryLine(s deadline.Summary) string {
	return fmt.Sprintf("Overdue: %d | Due Soon: %d | Pending: %d | Completed: %d | Completion: %d%%",
		s.Overdue, s.DueSoon, s.Pending, s.Completed, s.CompletionPercent)
}

// AssignmentRows flattens a group into table rows.
func AssignmentRows(items []deadline.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{it.Title, it.ClassName, it.DueDate.String(), string(it.Status)})
	}
	return rows
}

// AssignmentsPDF writes the assignment export: title block, summary line and
// one color-coded section per non-empty priority group.
func AssignmentsPDF(w io.Writer, h Header, groups []deadline.Group, summary deadline.Summary, logo *Image) error {
	if h.Title == "" {
		h.Title = "Assignments"
	}
	d := newDocument(h.Title)
	d.titleBlock(h, logo)

	pdf := d.pdf
	pdf.SetFont("Arial", "B", 10)
	pdf.MultiCell(0, 6, SummaryLine(summary), "", "L", false)
	pdf.Ln(3)

	rendered := 0
	for _, g := range groups {
		if len(g.Items) == 0 {
			continue
		}
		fill, ok := priorityFill[g.Priority]
		if !ok {
			fill = headerFill
		}
		_, pageH := pdf.GetPageSize()
		if pdf.GetY()+3*rowHeightMM > pageH-pageMarginMM-footerLinesMM {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.SetTextColor(fill[0], fill[1], fill[2])
		pdf.CellFormat(0, 8, d.tr(fmt.Sprintf("%s (%d)", g.Label, len(g.Items))), "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		d.table(assignmentHeaders, AssignmentRows(g.Items), fill)
		pdf.Ln(4)
		rendered++
	}
	if rendered == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 8, "No assignments to show.", "", 1, "L", false, 0, "")
	}

	d.disclaimer(Disclaimer)
	return d.output(w)
}
