package facematch

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"

	"officeclock/internal/capture"
)

// DefaultModel is used when no model id is configured.
const DefaultModel = "gemini-2.0-flash-exp"

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini calls the model directly with a locally held credential.
type Gemini struct {
	models generator
	model  string
}

// NewGemini returns a client that fails every call with ErrMissingCredential
// when apiKey is empty.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if model == "" {
		model = DefaultModel
	}
	if apiKey == "" {
		return &Gemini{model: model}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{models: client.Models, model: model}, nil
}

func (g *Gemini) Model() string { return g.model }

// Configured reports whether a credential was supplied.
func (g *Gemini) Configured() bool { return g.models != nil }

// Compare sends the prompt and both images and returns the parsed verdict.
func (g *Gemini) Compare(ctx context.Context, referenceImage, currentImage, defaultReasoning string) (Result, error) {
	if g.models == nil {
		return Result{}, ErrMissingCredential
	}
	if referenceImage == "" || currentImage == "" {
		return Result{}, ErrMissingImages
	}
	ref, _, err := capture.ParseDataURL(referenceImage)
	if err != nil {
		return Result{}, fmt.Errorf("reference image: %w", err)
	}
	cur, _, err := capture.ParseDataURL(currentImage)
	if err != nil {
		return Result{}, fmt.Errorf("current image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: Prompt},
				{InlineData: &genai.Blob{Data: ref, MIMEType: "image/jpeg"}},
				{InlineData: &genai.Blob{Data: cur, MIMEType: "image/jpeg"}},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Result{}, fmt.Errorf("gemini API error: %w", err)
	}
	return ParseVerdict(result.Text(), defaultReasoning)
}

// Verify implements Transport.
func (g *Gemini) Verify(ctx context.Context, referenceImage, currentImage string) (Result, error) {
	return g.Compare(ctx, referenceImage, currentImage, "Gemini direct check")
}

// Select probes the relay once and returns the transport to use for the
// lifetime of the process.
func Select(ctx context.Context, relay *RelayTransport, direct Transport) Transport {
	if relay.Probe(ctx) {
		log.Printf("face match: using relay %s", relay.BaseURL)
		return relay
	}
	log.Printf("face match: relay unavailable, using direct model calls")
	return direct
}
