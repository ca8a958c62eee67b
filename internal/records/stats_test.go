package records

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

func TestBuildReminderSchedule(t *testing.T) {
	history := []types.Prescription{
		{
			ID:         "RX-1",
			DoctorName: "Dr. Wilson",
			Date:       "2024-05-12T09:30:00.000Z",
			Medications: []types.Medication{
				{Name: "Paracetamol", Frequency: "1-0-1"},
				{Name: "Vitamin D", Frequency: "0-1-0"},
			},
		},
		{
			ID:         "RX-2",
			DoctorName: "Dr. Rao",
			Medications: []types.Medication{
				{Name: "Metformin", Frequency: "1-1-1"},
				{Name: "Metformin", Frequency: "0-0-0"},
			},
		},
	}

	schedule := BuildReminderSchedule(history)

	names := func(items []ReminderItem) []string {
		out := make([]string, 0, len(items))
		for _, i := range items {
			out = append(out, i.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Paracetamol", "Metformin"}, names(schedule.Morning))
	assert.Equal(t, []string{"Vitamin D", "Metformin"}, names(schedule.Afternoon))
	assert.Equal(t, []string{"Paracetamol", "Metformin"}, names(schedule.Evening))
	assert.Equal(t, "Dr. Wilson", schedule.Morning[0].Doctor)
	assert.Equal(t, 4, schedule.Total())
}

func TestBuildReminderSchedule_Empty(t *testing.T) {
	schedule := BuildReminderSchedule(nil)
	assert.NotNil(t, schedule.Morning)
	assert.Empty(t, schedule.Evening)
	assert.Zero(t, schedule.Total())
}

type stubRenderer struct {
	png []byte
	err error
}

func (s stubRenderer) RenderPNG(string) ([]byte, error) { return s.png, s.err }

func TestRenderPDF(t *testing.T) {
	p := samplePrescription("RX-1", "a@b.com")
	p.Notes = "Review after a week"

	doc, err := RenderPDF(p, nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF-")))

	_, err = RenderPDF(p, stubRenderer{err: errors.New("boom")})
	assert.Error(t, err)
}

func TestDisplayDate(t *testing.T) {
	assert.Equal(t, "2024-05-12", displayDate("2024-05-12T09:30:00.000Z"))
	assert.Equal(t, "yesterday", displayDate("yesterday"))
}

func TestRecentInteractions(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	dates := []string{
		"2024-05-03T10:00:00.000Z",
		"2024-05-09T10:00:00.000Z",
		"2024-05-01T10:00:00.000Z",
		"2024-05-11T10:00:00.000Z",
		"2024-05-07T10:00:00.000Z",
		"2024-05-05T10:00:00.000Z",
	}
	for i, date := range dates {
		p := samplePrescription(string(rune('A'+i)), "p@x.com")
		p.Date = date
		require.NoError(t, store.SavePrescription(ctx, p))
	}
	other := samplePrescription("Z", "q@x.com")
	other.DoctorID = "9"
	other.Date = "2024-05-12T10:00:00.000Z"
	require.NoError(t, store.SavePrescription(ctx, other))

	recent, err := store.RecentInteractions(ctx, "1")
	require.NoError(t, err)
	require.Len(t, recent, 5)

	ids := make([]string, 0, len(recent))
	for _, r := range recent {
		ids = append(ids, r.PrescriptionID)
	}
	assert.Equal(t, []string{"D", "B", "E", "F", "A"}, ids)
	assert.Equal(t, Interaction{
		PrescriptionID: "D",
		PatientEmail:   "p@x.com",
		Date:           "2024-05-11T10:00:00.000Z",
		Diagnosis:      "Seasonal flu",
	}, recent[0])

	none, err := store.RecentInteractions(ctx, "404")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
