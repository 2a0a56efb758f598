package httpapi

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"officeclock/internal/history"
	"officeclock/internal/qrcode"
	"officeclock/internal/records"
)

// filtered reads the local history for the from/to query. It writes the error
// response itself and returns false on failure.
func (s *Server) filtered(c *gin.Context) (history.Range, []records.AttendanceRecord, bool) {
	rng, err := history.ParseRange(c.Query("from"), c.Query("to"), s.now(), s.opts.Location)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return history.Range{}, nil, false
	}
	all, err := s.opts.Records.ListAttendance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return history.Range{}, nil, false
	}
	return rng, history.Filter(all, rng, s.opts.Location), true
}

// attendanceView is the public shape of a record. The verification still is
// only served on the admin snapshot route.
type attendanceView struct {
	ID           string            `json:"id"`
	EmployeeID   string            `json:"employee_id"`
	EmployeeName string            `json:"employee_name"`
	Timestamp    time.Time         `json:"timestamp"`
	Type         records.Direction `json:"type"`
	Confidence   float64           `json:"confidence"`
	Status       records.Status    `json:"status"`
	HasSnapshot  bool              `json:"has_snapshot"`
}

func newAttendanceView(r records.AttendanceRecord) attendanceView {
	return attendanceView{
		ID:           r.ID,
		EmployeeID:   r.EmployeeID,
		EmployeeName: r.EmployeeName,
		Timestamp:    r.Timestamp,
		Type:         r.Type,
		Confidence:   r.Confidence,
		Status:       r.Status,
		HasSnapshot:  r.Snapshot != "",
	}
}

func (s *Server) listAttendance(c *gin.Context) {
	rng, recs, ok := s.filtered(c)
	if !ok {
		return
	}
	views := make([]attendanceView, 0, len(recs))
	for _, r := range recs {
		views = append(views, newAttendanceView(r))
	}
	c.JSON(http.StatusOK, gin.H{"from": rng.From, "to": rng.To, "records": views})
}

// attendanceSnapshot returns the verification still of one record.
func (s *Server) attendanceSnapshot(c *gin.Context) {
	id := c.Param("id")
	recs, err := s.opts.Records.ListAttendance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	for _, r := range recs {
		if r.ID != id {
			continue
		}
		if r.Snapshot == "" {
			break
		}
		c.JSON(http.StatusOK, gin.H{"id": r.ID, "snapshot": r.Snapshot})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
}

func (s *Server) exportAttendance(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", history.FormatCSV))
	if format != history.FormatCSV && format != history.FormatXLSX {
		c.JSON(http.StatusBadRequest, gin.H{"error": history.ErrUnknownFormat.Error()})
		return
	}
	rng, recs, ok := s.filtered(c)
	if !ok {
		return
	}
	if len(recs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no attendance in range"})
		return
	}

	var buf bytes.Buffer
	if err := history.Write(&buf, format, recs, s.opts.Location); err != nil {
		log.Printf("export attendance: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", history.Filename(rng, format)))
	c.Data(http.StatusOK, history.ContentType(format), buf.Bytes())
}

// qr renders the feedback deep link, optionally for one directory employee.
func (s *Server) qr(c *gin.Context) {
	emp := strings.TrimSpace(c.Query("emp"))
	if emp != "" {
		if _, ok := s.opts.Directory.Name(emp); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown employee"})
			return
		}
	}
	link, err := qrcode.FeedbackURL(s.opts.PublicBaseURL, emp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var buf bytes.Buffer
	if err := qrcode.WritePNG(&buf, link, qrcode.DefaultSize); err != nil {
		log.Printf("render qr: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
		return
	}
	c.Header("X-Feedback-URL", link)
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
