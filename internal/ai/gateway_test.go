package ai

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// MockModel is a testify mock of Model
type MockModel struct {
	mock.Mock
}

func (m *MockModel) GenerateJSON(ctx context.Context, req Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type fakeRecorder struct {
	calls []string
}

func (f *fakeRecorder) RecordAICall(operation, outcome string, _ time.Duration) {
	f.calls = append(f.calls, operation+":"+outcome)
}

func setupGateway(model Model) (*Gateway, *fakeRecorder) {
	rec := &fakeRecorder{}
	return NewGateway(model, logger.Discard(), WithRecorder(rec), WithTimeout(time.Second)), rec
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var twoMeds = []types.Medication{{Name: "Warfarin"}, {Name: "Aspirin"}}

func TestCheckInteractions_SkipsSingleMedication(t *testing.T) {
	model := &MockModel{}
	gw, rec := setupGateway(model)

	result, outcome := gw.CheckInteractions(context.Background(), []types.Medication{{Name: "Paracetamol"}})

	assert.NotNil(t, result)
	assert.Empty(t, result)
	assert.Equal(t, OutcomeSkipped, outcome)
	model.AssertNotCalled(t, "GenerateJSON", mock.Anything, mock.Anything)
	assert.Empty(t, rec.calls)
}

func TestCheckInteractions_Success(t *testing.T) {
	model := &MockModel{}
	model.On("GenerateJSON", mock.Anything, mock.MatchedBy(func(req Request) bool {
		return req.Prompt == "Analyze potential drug interactions for this list of medications: Warfarin, Aspirin. Provide severity (low, moderate, high), description, and recommendation." &&
			req.Schema == interactionSchema && req.Image == nil
	})).Return(`[{"severity":"HIGH","description":"Bleeding risk","recommendation":"Avoid combination"}]`, nil)

	gw, rec := setupGateway(model)
	result, outcome := gw.CheckInteractions(context.Background(), twoMeds)

	require.Equal(t, OutcomeSuccess, outcome)
	require.Len(t, result, 1)
	assert.Equal(t, types.SeverityHigh, result[0].Severity)
	assert.Equal(t, "Bleeding risk", result[0].Description)
	assert.Equal(t, []string{"check_interactions:success"}, rec.calls)
	model.AssertExpectations(t)
}

func TestCheckInteractions_Failures(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
	}{
		{"transport error", "", errors.New("connection reset")},
		{"malformed json", "not json", nil},
		{"unknown severity", `[{"severity":"fatal","description":"x","recommendation":"y"}]`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &MockModel{}
			model.On("GenerateJSON", mock.Anything, mock.Anything).Return(tt.text, tt.err)
			gw, rec := setupGateway(model)

			result, outcome := gw.CheckInteractions(context.Background(), twoMeds)

			assert.NotNil(t, result)
			assert.Empty(t, result)
			assert.Equal(t, OutcomeFailed, outcome)
			assert.Equal(t, []string{"check_interactions:failed"}, rec.calls)
		})
	}
}

func TestCheckInteractions_EmptyArrayIsSuccess(t *testing.T) {
	model := &MockModel{}
	model.On("GenerateJSON", mock.Anything, mock.Anything).Return("```json\n[]\n```", nil)
	gw, _ := setupGateway(model)

	result, outcome := gw.CheckInteractions(context.Background(), twoMeds)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestCheckInteractions_NoModel(t *testing.T) {
	gw, rec := setupGateway(nil)

	result, outcome := gw.CheckInteractions(context.Background(), twoMeds)
	assert.Empty(t, result)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, []string{"check_interactions:failed"}, rec.calls)
}

func TestCheckInteractions_Timeout(t *testing.T) {
	model := &MockModel{}
	model.On("GenerateJSON", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	gw := NewGateway(model, logger.Discard(), WithTimeout(10*time.Millisecond))
	_, outcome := gw.CheckInteractions(context.Background(), twoMeds)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestDigitizePrescriptionImage_CorruptImage(t *testing.T) {
	model := &MockModel{}
	gw, rec := setupGateway(model)

	result, outcome := gw.DigitizePrescriptionImage(context.Background(), []byte("definitely not an image"))

	assert.Nil(t, result)
	assert.Equal(t, OutcomeFailed, outcome)
	model.AssertNotCalled(t, "GenerateJSON", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"digitize_prescription:failed"}, rec.calls)
}

func TestDigitizePrescriptionImage_Success(t *testing.T) {
	img := pngImage(t)
	model := &MockModel{}
	model.On("GenerateJSON", mock.Anything, mock.MatchedBy(func(req Request) bool {
		return req.MIMEType == "image/png" && bytes.Equal(req.Image, img) && req.Schema == medicationSchema
	})).Return(`[{"name":"Amoxicillin","dosage":"500mg","frequency":"1-0-1","instructions":"After food"}]`, nil)

	gw, _ := setupGateway(model)
	result, outcome := gw.DigitizePrescriptionImage(context.Background(), img)

	require.Equal(t, OutcomeSuccess, outcome)
	require.Len(t, result, 1)
	assert.Equal(t, types.Medication{Name: "Amoxicillin", Dosage: "500mg", Frequency: "1-0-1", Instructions: "After food"}, result[0])
	model.AssertExpectations(t)
}

func TestDigitizePrescriptionImage_EmptyResult(t *testing.T) {
	model := &MockModel{}
	model.On("GenerateJSON", mock.Anything, mock.Anything).Return(`[]`, nil)
	gw, _ := setupGateway(model)

	result, outcome := gw.DigitizePrescriptionImage(context.Background(), pngImage(t))
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestDigitizePrescriptionImage_KeepsLegibleEntries(t *testing.T) {
	model := &MockModel{}
	model.On("GenerateJSON", mock.Anything, mock.Anything).Return(
		`[{"name":"Amoxicillin","dosage":"500mg","frequency":"1-0-1"},{"name":"","dosage":"5mg"},{"name":" Cetirizine "}]`, nil)
	gw, rec := setupGateway(model)

	result, outcome := gw.DigitizePrescriptionImage(context.Background(), pngImage(t))

	require.Equal(t, OutcomeSuccess, outcome)
	require.Len(t, result, 2)
	assert.Equal(t, "Amoxicillin", result[0].Name)
	assert.Equal(t, "Cetirizine", result[1].Name)
	assert.Empty(t, result[1].Dosage)
	assert.Equal(t, []string{"digitize_prescription:success"}, rec.calls)
}

func TestDigitizePrescriptionImage_OnlyNamelessEntries(t *testing.T) {
	model := &MockModel{}
	model.On("GenerateJSON", mock.Anything, mock.Anything).Return(`[{"dosage":"5mg"}]`, nil)
	gw, _ := setupGateway(model)

	result, outcome := gw.DigitizePrescriptionImage(context.Background(), pngImage(t))
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestMedicationSchema_NoRequiredFields(t *testing.T) {
	s := toGenaiSchema(medicationSchema)
	require.NotNil(t, s.Items)
	assert.Empty(t, s.Items.Required)
	assert.Len(t, s.Items.Properties, 4)
}

func TestDigitizePrescriptionImage_ModelFailure(t *testing.T) {
	for _, tc := range []struct {
		text string
		err  error
	}{
		{"", errors.New("quota exceeded")},
		{`{"name":"not an array"}`, nil},
	} {
		model := &MockModel{}
		model.On("GenerateJSON", mock.Anything, mock.Anything).Return(tc.text, tc.err)
		gw, _ := setupGateway(model)

		result, outcome := gw.DigitizePrescriptionImage(context.Background(), pngImage(t))
		assert.Nil(t, result)
		assert.Equal(t, OutcomeFailed, outcome)
	}
}

func TestDetectImageType(t *testing.T) {
	mime, err := DetectImageType(pngImage(t))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = DetectImageType(nil)
	assert.Error(t, err)
}

func TestNewGeminiModel_RequiresKey(t *testing.T) {
	_, err := NewGeminiModel(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(interactionSchema)
	require.NotNil(t, s.Items)
	assert.Equal(t, "ARRAY", string(s.Type))
	assert.Equal(t, "OBJECT", string(s.Items.Type))
	assert.Equal(t, []string{"low", "moderate", "high"}, s.Items.Properties["severity"].Enum)
	assert.ElementsMatch(t, []string{"severity", "description", "recommendation"}, s.Items.Required)
}
