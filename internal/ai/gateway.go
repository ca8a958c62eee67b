// Package ai is the gateway to the generative model used for drug
// interaction checks and handwritten prescription digitization.
//
// Both operations are advisory. A failed interaction check returns an empty
// list exactly like a clean result, so callers must look at the Outcome
// before treating "no interactions" as safe.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/webp"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// Outcome reports how a gateway call ended
type Outcome string

const (
	// OutcomeSuccess means the model answered with data matching the schema
	OutcomeSuccess Outcome = "success"
	// OutcomeSkipped means the call was not needed and the model was not invoked
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the model could not be reached or answered badly
	OutcomeFailed Outcome = "failed"
)

// Operation names used in logs, spans and metrics
const (
	OpCheckInteractions = "check_interactions"
	OpDigitize          = "digitize_prescription"
)

const (
	interactionPrompt = "Analyze potential drug interactions for this list of medications: %s. Provide severity (low, moderate, high), description, and recommendation."
	digitizePrompt    = "Extract medication details from this handwritten prescription. Return as a list of medications with name, dosage, frequency, and instructions."
)

// ErrNotConfigured is returned when no model backend is available
var ErrNotConfigured = errors.New("generative model is not configured")

// Recorder receives one observation per model call
type Recorder interface {
	RecordAICall(operation, outcome string, duration time.Duration)
}

// Gateway wraps a Model with prompts, schemas and result validation
type Gateway struct {
	model    Model
	logger   *logrus.Entry
	recorder Recorder
	timeout  time.Duration
	tracer   trace.Tracer
}

// Option configures a Gateway
type Option func(*Gateway)

// WithTimeout bounds each model call; zero disables the bound
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// NewGateway creates a gateway over model. A nil model makes every
// call fail without leaving the process.
func NewGateway(model Model, log *logger.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		model:   model,
		logger:  log.WithComponent("ai_gateway"),
		timeout: 30 * time.Second,
		tracer:  otel.Tracer("github.com/Adarsh-shaw/MedScriptAI/internal/ai"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var interactionSchema = &Schema{
	Type: TypeArray,
	Items: &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"severity":       {Type: TypeString, Enum: []string{"low", "moderate", "high"}},
			"description":    {Type: TypeString},
			"recommendation": {Type: TypeString},
		},
		Required: []string{"severity", "description", "recommendation"},
	},
}

var medicationSchema = &Schema{
	Type: TypeArray,
	Items: &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"name":         {Type: TypeString},
			"dosage":       {Type: TypeString},
			"frequency":    {Type: TypeString},
			"instructions": {Type: TypeString},
		},
	},
}

// CheckInteractions asks the model for interactions between the named
// medications. Fewer than two medications skip the call. The returned slice
// is never nil; on failure it is empty and the outcome is OutcomeFailed.
func (g *Gateway) CheckInteractions(ctx context.Context, meds []types.Medication) ([]types.DrugInteraction, Outcome) {
	if len(meds) < 2 {
		return []types.DrugInteraction{}, OutcomeSkipped
	}

	names := make([]string, 0, len(meds))
	for _, m := range meds {
		names = append(names, m.Name)
	}

	req := Request{
		Prompt: fmt.Sprintf(interactionPrompt, strings.Join(names, ", ")),
		Schema: interactionSchema,
	}

	var interactions []types.DrugInteraction
	err := g.call(ctx, OpCheckInteractions, req, func(text string) error {
		if err := json.Unmarshal([]byte(text), &interactions); err != nil {
			return fmt.Errorf("malformed interaction response: %w", err)
		}
		for i := range interactions {
			sev := types.InteractionSeverity(strings.ToLower(strings.TrimSpace(string(interactions[i].Severity))))
			if !sev.Valid() {
				return fmt.Errorf("interaction %d has unknown severity %q", i, interactions[i].Severity)
			}
			interactions[i].Severity = sev
		}
		return nil
	}, attribute.Int("medications", len(meds)))
	if err != nil {
		return []types.DrugInteraction{}, OutcomeFailed
	}
	if interactions == nil {
		interactions = []types.DrugInteraction{}
	}
	return interactions, OutcomeSuccess
}

// DigitizePrescriptionImage extracts medications from a photo of a handwritten
// prescription. Entries the model returned without a name are dropped; the
// rest are kept. On failure, including an image that cannot be decoded
// locally, it returns nil; a legible prescription with no medications returns
// an empty, non-nil slice.
func (g *Gateway) DigitizePrescriptionImage(ctx context.Context, img []byte) ([]types.Medication, Outcome) {
	mime, err := DetectImageType(img)
	if err != nil {
		g.logger.WithError(err).Warn("Rejected prescription image")
		g.record(OpDigitize, OutcomeFailed, 0)
		return nil, OutcomeFailed
	}

	req := Request{
		Prompt:   digitizePrompt,
		Image:    img,
		MIMEType: mime,
		Schema:   medicationSchema,
	}

	var meds []types.Medication
	err = g.call(ctx, OpDigitize, req, func(text string) error {
		var extracted []types.Medication
		if err := json.Unmarshal([]byte(text), &extracted); err != nil {
			return fmt.Errorf("malformed medication response: %w", err)
		}
		meds = make([]types.Medication, 0, len(extracted))
		for _, m := range extracted {
			m.Name = strings.TrimSpace(m.Name)
			if m.Name == "" {
				continue
			}
			meds = append(meds, m)
		}
		if dropped := len(extracted) - len(meds); dropped > 0 {
			g.logger.WithField("dropped", dropped).Warn("Skipped illegible medication entries")
		}
		return nil
	}, attribute.String("mime_type", mime), attribute.Int("image_bytes", len(img)))
	if err != nil {
		return nil, OutcomeFailed
	}
	if meds == nil {
		meds = []types.Medication{}
	}
	return meds, OutcomeSuccess
}

// call runs one model request inside a span and hands the text to parse.
// Errors are logged and recorded here; callers only map them to an outcome.
func (g *Gateway) call(ctx context.Context, op string, req Request, parse func(string) error, attrs ...attribute.KeyValue) error {
	ctx, span := g.tracer.Start(ctx, "ai."+op, trace.WithAttributes(attrs...))
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	err := g.invoke(ctx, req, parse)
	duration := time.Since(start)

	entry := g.logger.WithFields(logrus.Fields{
		"operation":   op,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Warn("Model call failed")
		g.record(op, OutcomeFailed, duration)
		return err
	}

	entry.Debug("Model call completed")
	g.record(op, OutcomeSuccess, duration)
	return nil
}

func (g *Gateway) invoke(ctx context.Context, req Request, parse func(string) error) error {
	if g.model == nil {
		return ErrNotConfigured
	}
	text, err := g.model.GenerateJSON(ctx, req)
	if err != nil {
		return err
	}
	return parse(stripFence(text))
}

func (g *Gateway) record(op string, outcome Outcome, d time.Duration) {
	if g.recorder != nil {
		g.recorder.RecordAICall(op, string(outcome), d)
	}
}

// DetectImageType decodes the image header and returns its MIME type
func DetectImageType(img []byte) (string, error) {
	if len(img) == 0 {
		return "", errors.New("empty image")
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("unreadable image: %w", err)
	}
	return "image/" + format, nil
}

// stripFence removes a markdown code fence some models wrap JSON in
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
