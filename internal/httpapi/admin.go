package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"officeclock/internal/admin"
	"officeclock/internal/capture"
	"officeclock/internal/records"
)

func (s *Server) unlock(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := s.opts.Gate.Unlock(req.Password)
	switch {
	case errors.Is(err, admin.ErrGateDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, admin.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case err != nil:
		log.Printf("issue admin session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
	default:
		c.JSON(http.StatusOK, session)
	}
}

func (s *Server) dashboard(c *gin.Context) {
	d, err := s.opts.Admin.Load(c.Request.Context())
	if err != nil {
		log.Printf("admin dashboard: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not load remote history"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) getSettings(c *gin.Context) {
	on, err := s.opts.Admin.FaceAttendance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"face_attendance": on})
}

func (s *Server) putSettings(c *gin.Context) {
	var req struct {
		FaceAttendance *bool `json:"face_attendance" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.opts.Admin.SetFaceAttendance(c.Request.Context(), *req.FaceAttendance); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"face_attendance": *req.FaceAttendance})
}

func (s *Server) createEmployee(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Position string `json:"position"`
		Avatar   string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Position = strings.TrimSpace(req.Position)
	if req.Name == "" || req.Position == "" || req.Avatar == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, position and avatar are required"})
		return
	}
	still, err := capture.NormalizeDataURL(req.Avatar)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar is not a readable image"})
		return
	}

	emp := records.Employee{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Position:  req.Position,
		Avatar:    still.DataURL(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.opts.Records.SaveEmployee(c.Request.Context(), emp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, employeeView{ID: emp.ID, Name: emp.Name, Position: emp.Position, HasAvatar: true})
}

func (s *Server) deleteEmployee(c *gin.Context) {
	if err := s.opts.Records.DeleteEmployee(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// saveNetwork binds a label to the given address, or to the caller's current
// address when none is given.
func (s *Server) saveNetwork(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
		IP   string `json:"ip"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "network name required"})
		return
	}
	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		current, err := s.currentIP(c.Request.Context(), c)
		if err != nil || current == "" {
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not determine current IP"})
			return
		}
		ip = current
	}
	cfg := records.WifiConfig{Name: req.Name, IP: ip, CreatedAt: s.now().UTC()}
	if err := s.opts.Records.SaveWifiConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (s *Server) removeNetwork(c *gin.Context) {
	if err := s.opts.Records.RemoveWifiConfig(c.Request.Context(), c.Param("name")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
