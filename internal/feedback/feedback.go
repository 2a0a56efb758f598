// Package feedback validates and forwards anonymous service ratings.
package feedback

import (
	"context"
	"errors"
	"log"
	"strings"

	"officeclock/internal/logrelay"
	"officeclock/internal/metrics"
	"officeclock/internal/netident"
)

// Scope says whether a rating is about the office or one employee.
type Scope string

const (
	ScopeGeneral  Scope = "GENERAL"
	ScopeEmployee Scope = "EMPLOYEE"
)

const (
	MsgThanks       = "Thank you! Your feedback has been recorded."
	MsgSendFailed   = "Could not send your feedback. Please try again."
	msgRatingRange  = "choose a rating from 1 to 5"
	msgPickEmployee = "you chose to rate an employee, please select one"
	msgUnknownScope = "unknown feedback scope"
)

// ValidationError blocks a submission before any network call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// RemoteDeliveryError means the rating could not be written to the remote log.
type RemoteDeliveryError struct {
	Err error
}

func (e *RemoteDeliveryError) Error() string { return "feedback delivery failed: " + e.Err.Error() }
func (e *RemoteDeliveryError) Unwrap() error { return e.Err }

// Submission is one rating as entered on the page.
type Submission struct {
	Rating       int
	Scope        Scope
	EmployeeID   string
	EmployeeName string
	Comment      string
	UserAgent    string
	Source       string
	Network      netident.Resolver
}

// Form is the state of the page after a submission.
type Form struct {
	Scope        Scope  `json:"scope"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
}

// Receipt is returned for a delivered submission.
type Receipt struct {
	Message string `json:"message"`
	Form    Form   `json:"form"`
}

// Sender writes a feedback event to the remote log.
type Sender interface {
	SendFeedback(ctx context.Context, e logrelay.FeedbackEvent) error
}

// Names resolves directory employee ids.
type Names interface {
	Name(id string) (string, bool)
}

type Service struct {
	sender Sender
	names  Names
}

func NewService(sender Sender, names Names) *Service {
	return &Service{sender: sender, names: names}
}

// Validate checks a submission without sending it.
func Validate(sub Submission) error {
	if sub.Rating < 1 || sub.Rating > 5 {
		return &ValidationError{Msg: msgRatingRange}
	}
	switch sub.Scope {
	case ScopeGeneral, "":
	case ScopeEmployee:
		if strings.TrimSpace(sub.EmployeeID) == "" {
			return &ValidationError{Msg: msgPickEmployee}
		}
	default:
		return &ValidationError{Msg: msgUnknownScope}
	}
	return nil
}

// Submit validates, resolves the sender's address best effort and sends the
// rating synchronously.
func (s *Service) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if err := Validate(sub); err != nil {
		metrics.FeedbackSubmissions.WithLabelValues("invalid").Inc()
		return Receipt{}, err
	}

	ev := logrelay.FeedbackEvent{
		Rating:    sub.Rating,
		Scope:     string(ScopeGeneral),
		Comment:   sub.Comment,
		UserAgent: sub.UserAgent,
		Source:    sub.Source,
	}
	if sub.Scope == ScopeEmployee {
		ev.Scope = string(ScopeEmployee)
		ev.EmployeeID = strings.TrimSpace(sub.EmployeeID)
		ev.EmployeeName = sub.EmployeeName
		if ev.EmployeeName == "" && s.names != nil {
			ev.EmployeeName, _ = s.names.Name(ev.EmployeeID)
		}
	}
	if sub.Network != nil {
		if ip, err := sub.Network.ResolvePublicAddress(ctx); err == nil {
			ev.IP = ip
		}
	}

	if err := s.sender.SendFeedback(ctx, ev); err != nil {
		log.Printf("feedback delivery failed: %v", err)
		metrics.FeedbackSubmissions.WithLabelValues("failed").Inc()
		return Receipt{}, &RemoteDeliveryError{Err: err}
	}
	metrics.FeedbackSubmissions.WithLabelValues("sent").Inc()
	return Receipt{Message: MsgThanks, Form: Form{Scope: ScopeGeneral}}, nil
}

// IsValidation reports whether err blocked the submission locally.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
