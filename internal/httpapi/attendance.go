package httpapi

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"officeclock/internal/attendance"
	"officeclock/internal/capture"
	"officeclock/internal/netident"
	"officeclock/internal/records"
)

type attendanceRequest struct {
	EmployeeID   string `json:"employee_id"`
	Image        string `json:"image"`
	CameraDenied bool   `json:"camera_denied"`
}

func (s *Server) checkIn(c *gin.Context)  { s.attend(c, records.CheckIn) }
func (s *Server) checkOut(c *gin.Context) { s.attend(c, records.CheckOut) }

func (s *Server) attend(c *gin.Context, dir records.Direction) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	settings, err := s.opts.Attendance.Settings(ctx)
	if err != nil {
		log.Printf("read settings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read settings"})
		return
	}

	out, err := s.opts.Attendance.Workflow(settings).Run(ctx, attendance.Attempt{
		EmployeeID: req.EmployeeID,
		Type:       dir,
		Network:    s.resolver(c),
		Capture:    capture.NewChallenge(capture.Uploaded{DataURL: req.Image, Denied: req.CameraDenied}),
	})
	if err != nil {
		if e, ok := attendance.AsError(err); ok {
			if e.Err != nil {
				log.Printf("attendance %s for %s aborted: %v", dir, req.EmployeeID, e)
			}
			c.JSON(e.HTTPStatus(), gin.H{"error": e.Msg, "kind": e.Kind, "state": e.State, "trace": out.Trace})
			return
		}
		log.Printf("attendance %s for %s: %v", dir, req.EmployeeID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "attendance failed"})
		return
	}

	msg := "Check-in successful"
	if dir == records.CheckOut {
		msg = "Check-out successful"
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg, "outcome": out})
}

type employeeView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Position  string `json:"position"`
	HasAvatar bool   `json:"has_avatar"`
}

func (s *Server) listEmployees(c *gin.Context) {
	list, err := s.opts.Records.ListEmployees(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]employeeView, 0, len(list))
	for _, e := range list {
		out = append(out, employeeView{ID: e.ID, Name: e.Name, Position: e.Position, HasAvatar: e.HasAvatar()})
	}
	c.JSON(http.StatusOK, gin.H{"employees": out})
}

// network reports the caller's address and whether it matches a saved network.
func (s *Server) network(c *gin.Context) {
	ctx := c.Request.Context()
	saved, err := netident.ListSavedNetworks(ctx, s.opts.Records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ip, _ := s.currentIP(ctx, c)
	c.JSON(http.StatusOK, gin.H{
		"current_ip": ip,
		"networks":   saved,
		"allowed":    len(saved) == 0 || netident.IsAddressAllowed(ip, saved),
	})
}

func (s *Server) currentIP(ctx context.Context, c *gin.Context) (string, error) {
	return s.resolver(c).ResolvePublicAddress(ctx)
}
