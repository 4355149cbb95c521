package httpapi

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"edusphere/internal/auth"
	"edusphere/internal/dashboard"
	"edusphere/internal/deadline"
	"edusphere/internal/export"
	"edusphere/internal/jobs"
	"edusphere/internal/report"
	"edusphere/internal/school"
)

const sessionKey = "session"

// printPolicy lets the print document run its own inline script and show
// inline images, nothing else.
const printPolicy = "default-src 'none'; img-src data:; style-src 'unsafe-inline'; script-src 'unsafe-inline'"

func (s *server) session(c *gin.Context) {
	claims, ok := auth.FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	sess, err := s.svc.NewSession(c.Request.Context(), claims.UserID(), school.Role(claims.Role))
	if err != nil {
		s.fail(c, err)
		c.Abort()
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func sessionFrom(c *gin.Context) dashboard.Session {
	v, _ := c.Get(sessionKey)
	sess, _ := v.(dashboard.Session)
	return sess
}

// fail maps err to a status code and a body that does not leak internals.
func (s *server) fail(c *gin.Context, err error) {
	var ve *school.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ve.Fields})
	case school.IsNoData(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "no data", "message": err.Error()})
	case errors.Is(err, school.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, dashboard.ErrUnknownAction):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, school.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case school.IsGateway(err):
		s.log.Error("gateway failure", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "the data service is unavailable, please retry"})
	case errors.Is(err, dashboard.ErrExportsDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *server) action(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	out, err := s.svc.Dispatch(c.Request.Context(), sessionFrom(c), c.Param("name"), json.RawMessage(body))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) classReport(c *gin.Context) {
	f, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		s.fail(c, school.NewValidationError(school.FieldError{Field: "format", Error: "must be one of: json csv pdf print xlsx"}))
		return
	}
	req := report.Request{
		ClassID: c.Param("id"),
		Type:    report.Type(c.Query("type")),
		Filter:  report.Filter(c.Query("filter")),
	}
	if v := c.Query("start"); v != "" {
		d := school.Date(v)
		req.Start = &d
	}
	if v := c.Query("end"); v != "" {
		d := school.Date(v)
		req.End = &d
	}

	sess := sessionFrom(c)
	if f == export.FormatJSON {
		view, err := s.svc.Report(c.Request.Context(), sess, req)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
		return
	}
	art, err := s.svc.ClassReport(c.Request.Context(), sess, req, f)
	if err != nil {
		s.fail(c, err)
		return
	}
	serve(c, art, f == export.FormatPrint)
}

func (s *server) assignmentsPDF(c *gin.Context) {
	q := deadline.Query{
		ClassID:  c.Query("class_id"),
		Priority: c.Query("priority"),
		Search:   c.Query("search"),
		Sort:     c.Query("sort"),
	}
	art, err := s.svc.AssignmentsExport(c.Request.Context(), sessionFrom(c), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	serve(c, art, false)
}

func (s *server) submitExport(c *gin.Context) {
	var in dashboard.ExportRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		s.fail(c, school.NewValidationError(school.FieldError{Field: "body", Error: "must be a valid JSON object"}))
		return
	}
	job, err := s.svc.SubmitExport(c.Request.Context(), sessionFrom(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

// export returns the job status, or the file once the job is done.
func (s *server) export(c *gin.Context) {
	sess := sessionFrom(c)
	job, err := s.svc.Export(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if job.Status != jobs.StatusDone {
		c.JSON(http.StatusOK, job)
		return
	}
	art, err := s.svc.ExportArtifact(c.Request.Context(), sess, job.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	serve(c, art, job.Format == export.FormatPrint)
}

func serve(c *gin.Context, art export.Artifact, inline bool) {
	disposition := "attachment"
	if inline {
		disposition = "inline"
		c.Header("Content-Security-Policy", printPolicy)
	}
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": art.Filename}))
	c.Data(http.StatusOK, art.ContentType, art.Data)
}
