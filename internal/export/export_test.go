package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"edusphere/internal/deadline"
	"edusphere/internal/report"
	"edusphere/internal/school"
)

var sample = report.Table{
	Headers: []string{"Student ID", "Name", "Grade"},
	Rows:    [][]string{{"S001", "Jane Doe", "85"}, {"S002", "Bob, Jr.", ""}},
}

var header = Header{
	Institution: "EduSphere Academy",
	Title:       "Class Report",
	Teacher:     "Grace Hopper",
	ClassLabel:  "Biology 10A",
	GeneratedAt: time.Date(2026, 10, 17, 14, 5, 0, 0, time.UTC),
}

func TestCSVRoundTrip(t *testing.T) {
	out := CSV(sample)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, sample.Headers, records[0])
	assert.Equal(t, sample.Rows, records[1:])
	assert.Contains(t, string(out), `"Bob, Jr."`)
}

func TestCSVQuotesAndDeterminism(t *testing.T) {
	tbl := report.Table{Headers: []string{"Name"}, Rows: [][]string{{`Say "hi"`}, {"plain"}}}
	out := CSV(tbl)
	assert.Equal(t, "Name\n\"Say \"\"hi\"\"\"\nplain\n", string(out))
	assert.Equal(t, out, CSV(tbl))
}

func TestCSVEmptyTable(t *testing.T) {
	assert.Equal(t, "Student ID,Name\n", string(CSV(report.Table{Headers: []string{"Student ID", "Name"}})))
}

func pageCount(pdf []byte) int {
	return bytes.Count(pdf, []byte("/Type /Page")) - bytes.Count(pdf, []byte("/Type /Pages"))
}

func TestClassReportPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ClassReportPDF(&buf, header, sample, Images{}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Equal(t, 1, pageCount(buf.Bytes()))
}

func TestClassReportPDFPaginates(t *testing.T) {
	big := report.Table{Headers: report.Headers(report.TypeBoth)}
	for i := 0; i < 120; i++ {
		big.Rows = append(big.Rows, []string{fmt.Sprintf("S%03d", i), "Student Ñame", "Present", "71"})
	}
	var buf bytes.Buffer
	require.NoError(t, ClassReportPDF(&buf, header, big, Images{}))
	assert.GreaterOrEqual(t, pageCount(buf.Bytes()), 3)
}

func TestClassReportPDFWithImages(t *testing.T) {
	logo := &Image{PNG: pngBytes(t, 40, 20), Width: 40, Height: 20}
	broken := &Image{PNG: []byte("not a png"), Width: 1, Height: 1}

	var withLogo, withBroken bytes.Buffer
	require.NoError(t, ClassReportPDF(&withLogo, header, sample, Images{Logo: logo, Signature: logo}))
	require.NoError(t, ClassReportPDF(&withBroken, header, sample, Images{Logo: broken, Signature: broken}))
	assert.True(t, bytes.HasPrefix(withBroken.Bytes(), []byte("%PDF-")))
	assert.Greater(t, withLogo.Len(), withBroken.Len())
}

func TestAssignmentsPDF(t *testing.T) {
	items := deadline.Classified([]school.Assignment{
		{Title: "Essay", ClassID: "c", DueDate: "2026-10-01", Status: school.Pending},
		{Title: "Lab", ClassID: "c", DueDate: "2026-10-18", Status: school.Pending},
		{Title: "Quiz", ClassID: "c", DueDate: "2026-10-01", Status: school.Completed},
	}, map[string]string{"c": "Biology"}, "2026-10-17")

	var buf bytes.Buffer
	require.NoError(t, AssignmentsPDF(&buf, header, deadline.GroupByPriority(items), deadline.Summarize(items), nil))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	buf.Reset()
	require.NoError(t, AssignmentsPDF(&buf, header, deadline.GroupByPriority(nil), deadline.Summarize(nil), nil))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestSummaryLine(t *testing.T) {
	s := deadline.Summary{Overdue: 1, DueSoon: 2, Pending: 3, Completed: 4, Total: 10, CompletionPercent: 40}
	assert.Equal(t, "Overdue: 1 | Due Soon: 2 | Pending: 3 | Completed: 4 | Completion: 40%", SummaryLine(s))
}

func TestPrintHTML(t *testing.T) {
	h := header
	h.Teacher = `<script>alert(1)</script>`
	sig := &Image{PNG: pngBytes(t, 4, 4), Width: 4, Height: 4}

	doc, err := PrintHTML(h, sample, Images{Signature: sig})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, "<th>Student ID</th>")
	assert.Contains(t, doc, "<td>Bob, Jr.</td>")
	assert.Contains(t, doc, "window.print()")
	assert.Contains(t, doc, "window.close()")
	assert.Contains(t, doc, `src="data:image/png;base64,`)
	assert.NotContains(t, doc, "ZgotmplZ")
	assert.NotContains(t, doc, "<script>alert(1)</script>")
	assert.Contains(t, doc, Disclaimer)
}

func TestXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, XLSX(&buf, header, sample))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "EduSphere Academy - Class Report (Biology 10A)", rows[0][0])
	assert.Equal(t, sample.Headers, rows[2])
	assert.Equal(t, []string{"S001", "Jane Doe", "85"}, rows[3])
	assert.Equal(t, []string{"S002", "Bob, Jr."}, rows[4])
}

func TestParseFormatAndFilename(t *testing.T) {
	f, err := ParseFormat("PDF")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	f, err = ParseFormat("html")
	require.NoError(t, err)
	assert.Equal(t, "html", f.Extension())
	_, err = ParseFormat("docx")
	assert.Error(t, err)

	assert.Equal(t, "biology-10a-report-20261017.csv", Filename("Biology 10A", "report", header.GeneratedAt, FormatCSV))
	assert.Equal(t, "class-assignments-20261017.pdf", Filename("  ", "assignments", header.GeneratedAt, FormatPDF))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 100, B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Load(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *mapCache) Store(_ context.Context, key string, val []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = val
	return nil
}

func TestImageFetcher(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/logo.png":
			_, _ = w.Write(pngBytes(t, 1200, 300))
		case "/sig.jpg":
			_, _ = w.Write(jpegBytes(t, 50, 20))
		case "/text":
			_, _ = w.Write([]byte("hello"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cache := &mapCache{data: map[string][]byte{}}
	f := NewImageFetcher(cache, time.Hour, nil)
	ctx := context.Background()

	img, err := f.Fetch(ctx, srv.URL+"/logo.png")
	require.NoError(t, err)
	assert.Equal(t, 600, img.Width)
	assert.Equal(t, 150, img.Height)

	again, err := f.Fetch(ctx, srv.URL+"/logo.png")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "second fetch should be served from cache")
	assert.Equal(t, img.PNG, again.PNG)

	url, err := f.DataURL(ctx, srv.URL+"/sig.jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	for _, path := range []string{"/missing.png", "/text"} {
		_, err := f.Fetch(ctx, srv.URL+path)
		var ife *school.ImageFetchError
		require.ErrorAs(t, err, &ife)
		assert.Nil(t, f.Optional(ctx, srv.URL+path))
	}
	assert.Nil(t, f.Optional(ctx, ""))
}

func TestImageFetcherDataURLInput(t *testing.T) {
	f := NewImageFetcher(nil, 0, nil)
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 8, 8))

	img, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Width)

	_, err = f.Fetch(context.Background(), "data:text/plain,hi")
	assert.Error(t, err)
}
