package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Schema types
const (
	TypeString = "string"
	TypeObject = "object"
	TypeArray  = "array"
)

// Schema constrains the JSON the model must answer with
type Schema struct {
	Type       string
	Items      *Schema
	Properties map[string]*Schema
	Required   []string
	Enum       []string
}

// Request is one structured generation call. Image is optional.
type Request struct {
	Prompt   string
	Image    []byte
	MIMEType string
	Schema   *Schema
}

// Model returns JSON text conforming to the request schema
type Model interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
}

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-3-flash-preview"

// GeminiModel calls the Gemini API
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates a Gemini backend for the given API key
func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiModel{client: client, model: model}, nil
}

// GenerateJSON implements Model
func (m *GeminiModel) GenerateJSON(ctx context.Context, req Request) (string, error) {
	var contents []*genai.Content
	if len(req.Image) > 0 {
		contents = []*genai.Content{genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Image, req.MIMEType),
			genai.NewPartFromText(req.Prompt),
		}, genai.RoleUser)}
	} else {
		contents = genai.Text(req.Prompt)
	}

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if req.Schema != nil {
		cfg.ResponseSchema = toGenaiSchema(req.Schema)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Required: s.Required,
		Enum:     s.Enum,
		Items:    toGenaiSchema(s.Items),
	}
	switch s.Type {
	case TypeArray:
		out.Type = genai.TypeArray
	case TypeObject:
		out.Type = genai.TypeObject
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}
