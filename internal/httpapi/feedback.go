package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"officeclock/internal/feedback"
)

type feedbackRequest struct {
	Rating       int    `json:"rating"`
	Scope        string `json:"scope"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Comment      string `json:"comment"`
	Source       string `json:"source"`
}

func (s *Server) submitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	receipt, err := s.opts.Feedback.Submit(c.Request.Context(), feedback.Submission{
		Rating:       req.Rating,
		Scope:        feedback.Scope(req.Scope),
		EmployeeID:   req.EmployeeID,
		EmployeeName: req.EmployeeName,
		Comment:      req.Comment,
		UserAgent:    c.Request.UserAgent(),
		Source:       req.Source,
		Network:      s.resolver(c),
	})
	var remote *feedback.RemoteDeliveryError
	switch {
	case feedback.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &remote):
		c.JSON(http.StatusBadGateway, gin.H{"error": feedback.MsgSendFailed})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": feedback.MsgSendFailed})
	default:
		c.JSON(http.StatusOK, receipt)
	}
}
