package export

import (
	"bytes"
	"encoding/csv"

	"edusphere/internal/report"
)

// CSV encodes t as RFC 4180 text with a header line and LF line endings.
func CSV(t report.Table) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// a bytes.Buffer never fails, so Write errors cannot occur
	_ = w.Write(t.Headers)
	for _, row := range t.Rows {
		_ = w.Write(row)
	}
	w.Flush()
	return buf.Bytes()
}
