// Package export encodes report tables and assignment groups as CSV, PDF,
// printable HTML and XLSX. Renderers only encode; rows arrive already shaped.
package export

import (
	"fmt"
	"strings"
	"time"
)

// Format names an export encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatPDF   Format = "pdf"
	FormatPrint Format = "print"
	FormatXLSX  Format = "xlsx"
	FormatJSON  Format = "json"
)

// ParseFormat defaults to JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatCSV, FormatPDF, FormatPrint, FormatXLSX, FormatJSON:
		return f, nil
	case "html":
		return FormatPrint, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	case FormatPrint:
		return "text/html; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json; charset=utf-8"
}

// Extension is the file suffix for f, without the dot.
func (f Format) Extension() string {
	if f == FormatPrint {
		return "html"
	}
	return string(f)
}

// Disclaimer closes every class report.
const Disclaimer = "This document was generated electronically and reflects the latest records at the time of generation."

// Header is the title block shared by the document formats.
type Header struct {
	Institution string
	Title       string
	Teacher     string
	ClassLabel  string
	GeneratedAt time.Time
}

// Generated formats GeneratedAt for display.
func (h Header) Generated() string {
	if h.GeneratedAt.IsZero() {
		return ""
	}
	return h.GeneratedAt.Format("January 2, 2006 at 3:04 PM")
}

// Filename builds a download name such as "biology-10a-report-20261017.pdf".
func Filename(label, kind string, at time.Time, f Format) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "class"
	}
	return fmt.Sprintf("%s-%s-%s.%s", slug, kind, at.Format("20060102"), f.Extension())
}

// Images are optional pictures embedded in document exports.
type Images struct {
	Logo      *Image
	Signature *Image
}

// Artifact is a rendered export ready to be served or stored.
type Artifact struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}
