package records

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

// DoctorStats summarizes a doctor's issued prescriptions
type DoctorStats struct {
	TotalPrescriptions int `json:"totalPrescriptions"`
	TotalPatients      int `json:"totalPatients"`
	PendingCount       int `json:"pendingCount"`
}

// DoctorStats counts the prescriptions issued under doctorID
func (s *Store) DoctorStats(ctx context.Context, doctorID string) (DoctorStats, error) {
	list, err := s.filterPrescriptions(ctx, func(p types.Prescription) bool { return p.DoctorID == doctorID })
	if err != nil {
		return DoctorStats{}, err
	}

	patients := make(map[string]struct{})
	stats := DoctorStats{TotalPrescriptions: len(list)}
	for _, p := range list {
		patients[strings.ToLower(p.PatientEmail)] = struct{}{}
		if p.Status == types.StatusPending {
			stats.PendingCount++
		}
	}
	stats.TotalPatients = len(patients)
	return stats, nil
}

// recentLimit caps the doctor's recent interactions list
const recentLimit = 5

// Interaction is one recent patient encounter of a doctor
type Interaction struct {
	PrescriptionID string `json:"prescriptionId"`
	PatientEmail   string `json:"patientEmail"`
	Date           string `json:"date"`
	Diagnosis      string `json:"diagnosis"`
}

// RecentInteractions returns the newest prescriptions issued under doctorID,
// ordered by date and capped at five. Undated records sort last.
func (s *Store) RecentInteractions(ctx context.Context, doctorID string) ([]Interaction, error) {
	list, err := s.filterPrescriptions(ctx, func(p types.Prescription) bool { return p.DoctorID == doctorID })
	if err != nil {
		return nil, err
	}

	sort.SliceStable(list, func(i, j int) bool {
		return issuedAt(list[i]).After(issuedAt(list[j]))
	})
	if len(list) > recentLimit {
		list = list[:recentLimit]
	}

	out := make([]Interaction, 0, len(list))
	for _, p := range list {
		out = append(out, Interaction{
			PrescriptionID: p.ID,
			PatientEmail:   p.PatientEmail,
			Date:           p.Date,
			Diagnosis:      p.Diagnosis,
		})
	}
	return out, nil
}

func issuedAt(p types.Prescription) time.Time {
	t, err := time.Parse(time.RFC3339Nano, p.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Overview summarizes the whole store for the admin console
type Overview struct {
	Users         map[types.UserRole]int           `json:"users"`
	Prescriptions map[types.PrescriptionStatus]int `json:"prescriptions"`
	TotalUsers    int                              `json:"totalUsers"`
	TotalIssued   int                              `json:"totalIssued"`
}

// AdminOverview counts users per role and prescriptions per status
func (s *Store) AdminOverview(ctx context.Context) (Overview, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return Overview{}, err
	}
	list, err := s.ListPrescriptions(ctx)
	if err != nil {
		return Overview{}, err
	}

	o := Overview{
		Users:         make(map[types.UserRole]int),
		Prescriptions: make(map[types.PrescriptionStatus]int),
		TotalUsers:    len(users),
		TotalIssued:   len(list),
	}
	for _, u := range users {
		o.Users[u.Role]++
	}
	for _, p := range list {
		o.Prescriptions[p.Status]++
	}
	return o, nil
}

// ReminderItem is one medication due in a slot
type ReminderItem struct {
	types.Medication
	PrescriptionID string `json:"prescriptionId"`
	Doctor         string `json:"doctor"`
	Date           string `json:"date"`
}

// ReminderSchedule groups a patient's medications by time of day.
// Active counts every medication in the history, scheduled or not.
type ReminderSchedule struct {
	Morning   []ReminderItem `json:"morning"`
	Afternoon []ReminderItem `json:"afternoon"`
	Evening   []ReminderItem `json:"evening"`
	Active    int            `json:"active"`
}

// Total returns the number of active reminders
func (r ReminderSchedule) Total() int {
	return r.Active
}

// BuildReminderSchedule places every medication of history into the slots
// its frequency code marks.
func BuildReminderSchedule(history []types.Prescription) ReminderSchedule {
	schedule := ReminderSchedule{
		Morning:   []ReminderItem{},
		Afternoon: []ReminderItem{},
		Evening:   []ReminderItem{},
	}
	for _, p := range history {
		for _, m := range p.Medications {
			schedule.Active++
			item := ReminderItem{Medication: m, PrescriptionID: p.ID, Doctor: p.DoctorName, Date: p.Date}
			slots := m.DoseSlots()
			if slots[0] {
				schedule.Morning = append(schedule.Morning, item)
			}
			if slots[1] {
				schedule.Afternoon = append(schedule.Afternoon, item)
			}
			if slots[2] {
				schedule.Evening = append(schedule.Evening, item)
			}
		}
	}
	return schedule
}

// PatientReminders builds the reminder schedule for a patient's history
func (s *Store) PatientReminders(ctx context.Context, email string) (ReminderSchedule, error) {
	history, err := s.GetPatientHistory(ctx, email)
	if err != nil {
		return ReminderSchedule{}, err
	}
	return BuildReminderSchedule(history), nil
}
