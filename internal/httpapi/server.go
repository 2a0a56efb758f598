// Package httpapi exposes the attendance app over HTTP for the browser UI.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"officeclock/internal/admin"
	"officeclock/internal/attendance"
	"officeclock/internal/auth"
	"officeclock/internal/directory"
	"officeclock/internal/feedback"
	"officeclock/internal/netident"
	"officeclock/internal/records"
)

// Network resolver modes.
const (
	ResolveRequest = "request"
	ResolveIPify   = "ipify"
)

// Options wires the server. FeedbackLimit may be nil.
type Options struct {
	Records    records.Store
	Attendance *attendance.Service
	Feedback   *feedback.Service
	Admin      *admin.Service
	Gate       *admin.Gate
	Directory  *directory.Directory

	NetworkResolver string
	IPify           netident.Resolver

	Location      *time.Location
	PublicBaseURL string
	JWTSigningKey string
	JWTIssuer     string
	FeedbackLimit gin.HandlerFunc
}

// Server holds the handlers for the app API.
type Server struct {
	opts Options
	now  func() time.Time
}

func New(opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Directory == nil {
		opts.Directory = directory.Default()
	}
	return &Server{opts: opts, now: time.Now}
}

// Register mounts every route on r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/api/view", s.view)

	v1 := r.Group("/v1")
	v1.GET("/network", s.network)
	v1.GET("/employees", s.listEmployees)
	v1.POST("/attendance/check-in", s.checkIn)
	v1.POST("/attendance/check-out", s.checkOut)
	v1.GET("/attendance", s.listAttendance)
	v1.GET("/attendance/export", s.exportAttendance)
	v1.GET("/directory", s.listDirectory)
	v1.GET("/qr", s.qr)
	if s.opts.FeedbackLimit != nil {
		v1.POST("/feedback", s.opts.FeedbackLimit, s.submitFeedback)
	} else {
		v1.POST("/feedback", s.submitFeedback)
	}
	v1.POST("/admin/unlock", s.unlock)

	adm := v1.Group("/admin", auth.AdminAuth(s.opts.JWTSigningKey, s.opts.JWTIssuer))
	adm.GET("/dashboard", s.dashboard)
	adm.GET("/attendance/:id/snapshot", s.attendanceSnapshot)
	adm.GET("/settings", s.getSettings)
	adm.PUT("/settings", s.putSettings)
	adm.POST("/employees", s.createEmployee)
	adm.DELETE("/employees/:id", s.deleteEmployee)
	adm.GET("/networks", s.network)
	adm.POST("/networks", s.saveNetwork)
	adm.DELETE("/networks/:name", s.removeNetwork)
}

// resolver picks how the caller's public address is determined.
func (s *Server) resolver(c *gin.Context) netident.Resolver {
	if s.opts.NetworkResolver == ResolveIPify && s.opts.IPify != nil {
		return s.opts.IPify
	}
	return netident.Static(c.ClientIP())
}

// view resolves a deep link such as ?mode=feedback&emp=EMP-0001.
func (s *Server) view(c *gin.Context) {
	resp := gin.H{"view": "DASHBOARD"}
	switch strings.ToLower(c.Query("mode")) {
	case "feedback":
		resp["view"] = "FEEDBACK"
		resp["scope"] = feedback.ScopeGeneral
		if emp := strings.TrimSpace(c.Query("emp")); emp != "" {
			name, _ := s.opts.Directory.Name(emp)
			resp["scope"] = feedback.ScopeEmployee
			resp["employee_id"] = emp
			resp["employee_name"] = name
		}
	case "admin":
		resp["view"] = "ADMIN"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listDirectory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"employees": s.opts.Directory.Entries()})
}
