// Package facematch asks a generative vision model whether two photos show
// the same person.
package facematch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
)

// Prompt is sent with every comparison, followed by the reference and the live image.
const Prompt = `
You are a strict biometric verification system.
Compare the face in the FIRST image (Reference)
with the face in the SECOND image (Live Capture).

Focus on stable facial features. Ignore minor differences like lighting.

Respond with a SINGLE JSON object ONLY:
{
  "isMatch": boolean,
  "confidence": number,
  "reasoning": "string"
}
`

var (
	ErrMissingCredential = errors.New("model credential missing")
	ErrMissingImages     = errors.New("missing images")
	ErrRelayUnavailable  = errors.New("verify relay unavailable")
	ErrEmptyResponse     = errors.New("empty model response")
)

// Result is the verdict for one comparison.
type Result struct {
	IsMatch    bool    `json:"isMatch"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Transport performs one comparison of two image data URLs.
type Transport interface {
	Verify(ctx context.Context, referenceImage, currentImage string) (Result, error)
}

// Service wraps a Transport so that every failure is a negative verdict.
type Service struct {
	transport Transport
}

func NewService(t Transport) *Service {
	return &Service{transport: t}
}

// Verify never returns an error. Failures resolve to a non-match with zero
// confidence and the error text as reasoning.
func (s *Service) Verify(ctx context.Context, referenceImage, currentImage string) Result {
	if s.transport == nil {
		return failure(ErrMissingCredential)
	}
	res, err := s.transport.Verify(ctx, referenceImage, currentImage)
	if err != nil {
		log.Printf("face verification failed: %v", err)
		return failure(err)
	}
	return res
}

func failure(err error) Result {
	return Result{IsMatch: false, Confidence: 0, Reasoning: "error: " + err.Error()}
}

var fencePattern = regexp.MustCompile("(?i)```json")

// StripFences removes markdown code fences around a model response.
func StripFences(text string) string {
	text = fencePattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// ParseVerdict decodes a model response into a Result. Field types are coerced
// rather than enforced: isMatch by truthiness, a non-numeric confidence becomes 0,
// and an absent reasoning becomes defaultReasoning.
func ParseVerdict(text, defaultReasoning string) (Result, error) {
	text = StripFences(text)
	if text == "" {
		text = "{}"
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Result{}, fmt.Errorf("parse verdict: %w", err)
	}

	res := Result{
		IsMatch:   truthy(raw["isMatch"]),
		Reasoning: defaultReasoning,
	}
	if n, ok := raw["confidence"].(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			res.Confidence = f
		}
	}
	switch r := raw["reasoning"].(type) {
	case string:
		if r != "" {
			res.Reasoning = r
		}
	case nil:
	default:
		if truthy(r) {
			res.Reasoning = fmt.Sprint(r)
		}
	}
	return res, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	default:
		return true
	}
}
