package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"edusphere/internal/report"
)

const (
	pageMarginMM  = 15.0
	rowHeightMM   = 7.0
	imageLogoKey  = "logo"
	imageSignKey  = "signature"
	logoHeightMM  = 18.0
	signHeightMM  = 16.0
	footerLinesMM = 12.0
)

var headerFill = [3]int{40, 145, 108}

type document struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

func newDocument(title string) *document {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMarginMM, pageMarginMM, pageMarginMM)
	pdf.SetAutoPageBreak(true, pageMarginMM+footerLinesMM)
	pdf.SetTitle(title, true)
	pdf.SetCreator("EduSphere", true)
	pdf.AliasNbPages("")
	d := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMarginMM)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.AddPage()
	return d
}

func (d *document) width() float64 {
	w, _ := d.pdf.GetPageSize()
	return w - 2*pageMarginMM
}

// image draws img at the current position with the given height and returns
// false when img is nil or cannot be registered.
func (d *document) image(key string, img *Image, x, h float64) bool {
	if img == nil || len(img.PNG) == 0 {
		return false
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	d.pdf.RegisterImageOptionsReader(key, opts, bytes.NewReader(img.PNG))
	if !d.pdf.Ok() {
		// a broken picture must not fail the document
		d.pdf.ClearError()
		return false
	}
	d.pdf.ImageOptions(key, x, d.pdf.GetY(), 0, h, false, opts, 0, "")
	return true
}

func (d *document) titleBlock(h Header, logo *Image) {
	pdf := d.pdf
	top := pdf.GetY()
	textX := pageMarginMM
	if d.image(imageLogoKey, logo, pageMarginMM, logoHeightMM) {
		textX += logoHeightMM * float64(logo.Width) / float64(max(logo.Height, 1))
		textX += 4
	}
	pdf.SetXY(textX, top)
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 8, d.tr(h.Institution), "", 1, "L", false, 0, "")
	pdf.SetX(textX)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 7, d.tr(h.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	if h.Teacher != "" {
		pdf.SetX(textX)
		pdf.CellFormat(0, 5, d.tr("Teacher: "+h.Teacher), "", 1, "L", false, 0, "")
	}
	if h.ClassLabel != "" {
		pdf.SetX(textX)
		pdf.CellFormat(0, 5, d.tr("Class: "+h.ClassLabel), "", 1, "L", false, 0, "")
	}
	if g := h.Generated(); g != "" {
		pdf.SetX(textX)
		pdf.CellFormat(0, 5, "Generated: "+g, "", 1, "L", false, 0, "")
	}
	if y := top + logoHeightMM; logo != nil && pdf.GetY() < y {
		pdf.SetY(y)
	}
	pdf.Ln(2)
	pdf.SetDrawColor(headerFill[0], headerFill[1], headerFill[2])
	pdf.SetLineWidth(0.5)
	pdf.Line(pageMarginMM, pdf.GetY(), pageMarginMM+d.width(), pdf.GetY())
	pdf.SetLineWidth(0.2)
	pdf.SetDrawColor(0, 0, 0)
	pdf.Ln(5)
}

// columnWidths gives the Name column twice the share of the others.
func (d *document) columnWidths(headers []string) []float64 {
	weights := make([]float64, len(headers))
	total := 0.0
	for i, h := range headers {
		weights[i] = 1
		if h == report.HeaderName || h == "Title" {
			weights[i] = 2
		}
		total += weights[i]
	}
	out := make([]float64, len(headers))
	for i := range weights {
		out[i] = d.width() * weights[i] / total
	}
	return out
}

func (d *document) tableHeader(headers []string, widths []float64, fill [3]int) {
	pdf := d.pdf
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(fill[0], fill[1], fill[2])
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], rowHeightMM+1, d.tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Arial", "", 9)
}

// table writes rows under a header that is repeated on every page the table
// spans.
func (d *document) table(headers []string, rows [][]string, fill [3]int) {
	pdf := d.pdf
	widths := d.columnWidths(headers)
	_, pageH := pdf.GetPageSize()
	limit := pageH - pageMarginMM - footerLinesMM

	d.tableHeader(headers, widths, fill)
	pdf.SetFillColor(245, 245, 245)
	for n, row := range rows {
		if pdf.GetY()+rowHeightMM > limit {
			pdf.AddPage()
			d.tableHeader(headers, widths, fill)
			pdf.SetFillColor(245, 245, 245)
		}
		striped := n%2 == 1
		for i := range headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			align := "L"
			if i > 1 {
				align = "C"
			}
			pdf.CellFormat(widths[i], rowHeightMM, d.tr(cell), "1", 0, align, striped, 0, "")
		}
		pdf.Ln(-1)
	}
}

func (d *document) disclaimer(text string) {
	pdf := d.pdf
	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(100, 100, 100)
	pdf.MultiCell(0, 4, d.tr(text), "", "L", false)
	pdf.SetTextColor(0, 0, 0)
}

func (d *document) output(w io.Writer) error {
	if err := d.pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// ClassReportPDF writes a paginated class report: title block with optional
// logo, the table, an optional signature and the disclaimer.
func ClassReportPDF(w io.Writer, h Header, t report.Table, img Images) error {
	if h.Title == "" {
		h.Title = "Class Report"
	}
	d := newDocument(h.Title)
	d.titleBlock(h, img.Logo)
	d.table(t.Headers, t.Rows, headerFill)

	if img.Signature != nil {
		pdf := d.pdf
		_, pageH := pdf.GetPageSize()
		if pdf.GetY()+signHeightMM+12 > pageH-pageMarginMM-footerLinesMM {
			pdf.AddPage()
		}
		pdf.Ln(8)
		if d.image(imageSignKey, img.Signature, pageMarginMM, signHeightMM) {
			pdf.SetY(pdf.GetY() + signHeightMM)
			pdf.SetFont("Arial", "", 9)
			pdf.CellFormat(60, 5, "_______________________________", "", 1, "L", false, 0, "")
			pdf.CellFormat(60, 5, d.tr(h.Teacher), "", 1, "L", false, 0, "")
		}
	}

	d.disclaimer(Disclaimer)
	return d.output(w)
}
