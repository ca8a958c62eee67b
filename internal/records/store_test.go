package records

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/storage"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/types"
)

var fixedNow = time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)

func sequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func setupStore(t *testing.T, opts ...Option) (*Store, *storage.MemoryStore) {
	t.Helper()
	kv := storage.NewMemoryStore()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequence("id-")),
		WithTokenGenerator(func() (string, error) { return "VERIFY-XYZ123", nil }),
	}
	return NewStore(kv, logger.Discard(), append(base, opts...)...), kv
}

func samplePrescription(id, patient string) types.Prescription {
	return types.Prescription{
		ID:           id,
		PatientEmail: patient,
		DoctorID:     "1",
		DoctorName:   "Dr. Wilson",
		DoctorEmail:  "doctor@medscript.com",
		Date:         "2024-05-12T09:30:00.000Z",
		Diagnosis:    "Seasonal flu",
		Medications: []types.Medication{
			{Name: "Paracetamol", Dosage: "500mg", Frequency: "1-0-1", Duration: "5 days", Instructions: "After food"},
		},
		Status: types.StatusPending,
		QRCode: "VERIFY-" + id,
	}
}

func statusPtr(s types.PrescriptionStatus) *types.PrescriptionStatus { return &s }

func TestListUsers_SeedsOnFirstAccess(t *testing.T) {
	store, kv := setupStore(t)
	ctx := context.Background()

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedUsers, users)

	raw, err := kv.Get(ctx, UsersKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "doctor@medscript.com")
}

func TestListUsers_NoSeedWhenCollectionExists(t *testing.T) {
	store, kv := setupStore(t)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, UsersKey, []byte(`[]`)))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestListUsers_SeedingDisabled(t *testing.T) {
	store, kv := setupStore(t, WithSeedUsers(nil))
	ctx := context.Background()

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	_, err = kv.Get(ctx, UsersKey)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestListUsers_CorruptedCollectionReadsEmpty(t *testing.T) {
	store, kv := setupStore(t)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, UsersKey, []byte(`{not json`)))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestAddUser_PreservesFields(t *testing.T) {
	store, _ := setupStore(t, WithSeedUsers(nil))
	ctx := context.Background()

	user := types.User{ID: "u1", Name: "Dr. Rao", Role: types.RoleDoctor, Email: "rao@medscript.com", Specialty: "Cardiology", Phone: "+91 1"}
	require.NoError(t, store.AddUser(ctx, user))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, user, users[0])
}

func TestFindUserByEmailAndRole(t *testing.T) {
	store, _ := setupStore(t, WithSeedUsers(nil))
	ctx := context.Background()
	require.NoError(t, store.AddUser(ctx, types.User{ID: "d", Name: "Doc", Role: types.RoleDoctor, Email: "Doc@Med.com"}))

	found, err := store.FindUserByEmailAndRole(ctx, "doc@med.com", types.RoleDoctor)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "d", found.ID)

	missing, err := store.FindUserByEmailAndRole(ctx, "doc@med.com", types.RolePatient)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteUser(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.DeleteUser(ctx, "2"))
	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, len(SeedUsers)-1)
	for _, u := range users {
		assert.NotEqual(t, "2", u.ID)
	}

	require.NoError(t, store.DeleteUser(ctx, "does-not-exist"))
	after, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, users, after)
}

func TestRegisterPatient(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	user, err := store.RegisterPatient(ctx, types.PatientRegistrationRequest{Name: " Asha ", Email: "asha@example.com", Phone: "123", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, types.RolePatient, user.Role)
	assert.Equal(t, "Asha", user.Name)
	assert.Equal(t, "id-1", user.ID)

	// the same email under a different role is still taken
	_, err = store.RegisterPatient(ctx, types.PatientRegistrationRequest{Name: "Other", Email: "DOCTOR@medscript.com"})
	require.Error(t, err)
	assert.Equal(t, types.ErrorTypeConflict, types.ErrorTypeOf(err))
}

func TestSearchUsers(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	tests := []struct {
		term string
		want []string
	}{
		{term: "", want: []string{"1", "2", "3", "4"}},
		{term: "MEDSCRIPT", want: []string{"1", "3", "4"}},
		{term: "wilson", want: []string{"1"}},
		{term: "  gmail ", want: []string{"2"}},
		{term: "pharma", want: []string{"3"}},
		{term: "nobody", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			users, err := store.SearchUsers(ctx, tt.term)
			require.NoError(t, err)
			ids := make([]string, 0, len(users))
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestCreateUser_SpecialtyOnlyForDoctors(t *testing.T) {
	store, _ := setupStore(t, WithSeedUsers(nil))
	ctx := context.Background()

	doc, err := store.CreateUser(ctx, types.CreateUserRequest{Name: "Dr. Rao", Email: "rao@medscript.com", Role: types.RoleDoctor, Specialty: "Cardiology"})
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", doc.Specialty)

	ph, err := store.CreateUser(ctx, types.CreateUserRequest{Name: "Care Pharmacy", Email: "care@medscript.com", Role: types.RolePharmacist, Specialty: "Cardiology"})
	require.NoError(t, err)
	assert.Empty(t, ph.Specialty)

	_, err = store.CreateUser(ctx, types.CreateUserRequest{Name: "X", Email: "x@y.z", Role: "NURSE"})
	assert.Equal(t, types.ErrorTypeValidation, types.ErrorTypeOf(err))
}

func TestSavePrescription_NewestFirst(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	p1 := samplePrescription("RX-1", "a@b.com")
	p2 := samplePrescription("RX-2", "c@d.com")
	require.NoError(t, store.SavePrescription(ctx, p1))
	require.NoError(t, store.SavePrescription(ctx, p2))

	list, err := store.ListPrescriptions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "RX-2", list[0].ID)
	assert.Equal(t, "RX-1", list[1].ID)
	assert.Equal(t, p1, list[1])
}

func TestConcurrentWritesAreNotLost(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	const writers = 100

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.SavePrescription(ctx, samplePrescription(fmt.Sprintf("RX-%d", i), "patient@gmail.com")))
		}(i)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.AddUser(ctx, types.User{ID: fmt.Sprintf("u-%d", i), Role: types.RolePatient, Email: fmt.Sprintf("p%d@example.com", i)}))
		}(i)
	}
	wg.Wait()

	list, err := store.ListPrescriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, writers)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, writers+len(SeedUsers))
}

func TestUpdatePrescription_ChangesOnlyStatus(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	p := samplePrescription("RX-1", "a@b.com")
	require.NoError(t, store.SavePrescription(ctx, p))

	updated, err := store.UpdatePrescription(ctx, "RX-1", types.PrescriptionUpdate{Status: statusPtr(types.StatusDispensed)})
	require.NoError(t, err)
	require.NotNil(t, updated)

	want := p
	want.Status = types.StatusDispensed
	assert.Equal(t, want, *updated)

	stored, err := store.GetPrescription(ctx, "RX-1")
	require.NoError(t, err)
	assert.Equal(t, want, *stored)
}

func TestUpdatePrescription_UnknownIDIsNoOp(t *testing.T) {
	store, kv := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePrescription(ctx, samplePrescription("RX-1", "a@b.com")))
	before, err := kv.Get(ctx, PrescriptionsKey)
	require.NoError(t, err)

	updated, err := store.UpdatePrescription(ctx, "RX-404", types.PrescriptionUpdate{Status: statusPtr(types.StatusDispensed)})
	require.NoError(t, err)
	assert.Nil(t, updated)

	after, err := kv.Get(ctx, PrescriptionsKey)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdatePrescription_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		from     types.PrescriptionStatus
		to       types.PrescriptionStatus
		wantType types.ErrorType
	}{
		{"pending to dispensed", types.StatusPending, types.StatusDispensed, ""},
		{"pending to canceled", types.StatusPending, types.StatusCanceled, ""},
		{"dispensed again", types.StatusDispensed, types.StatusDispensed, types.ErrorTypeConflict},
		{"dispensed to canceled", types.StatusDispensed, types.StatusCanceled, types.ErrorTypeConflict},
		{"canceled to dispensed", types.StatusCanceled, types.StatusDispensed, types.ErrorTypeConflict},
		{"back to pending", types.StatusDispensed, types.StatusPending, types.ErrorTypeConflict},
		{"unknown status", types.StatusPending, "LOST", types.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := setupStore(t)
			ctx := context.Background()
			p := samplePrescription("RX-1", "a@b.com")
			p.Status = tt.from
			require.NoError(t, store.SavePrescription(ctx, p))

			_, err := store.UpdatePrescription(ctx, "RX-1", types.PrescriptionUpdate{Status: statusPtr(tt.to)})
			if tt.wantType == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantType, types.ErrorTypeOf(err))

			stored, err := store.GetPrescription(ctx, "RX-1")
			require.NoError(t, err)
			assert.Equal(t, tt.from, stored.Status)
		})
	}
}

func TestGetPatientHistory_CaseInsensitiveAndOrdered(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePrescription(ctx, samplePrescription("RX-1", "a@b.com")))
	require.NoError(t, store.SavePrescription(ctx, samplePrescription("RX-2", "other@b.com")))
	require.NoError(t, store.SavePrescription(ctx, samplePrescription("RX-3", "A@B.COM")))

	history, err := store.GetPatientHistory(ctx, "a@B.com")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "RX-3", history[0].ID)
	assert.Equal(t, "RX-1", history[1].ID)

	none, err := store.GetPatientHistory(ctx, "nobody@b.com")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGetDoctorRecordsAndStats(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePrescription(ctx, samplePrescription("RX-1", "a@b.com")))
	require.NoError(t, store.SavePrescription(ctx, samplePrescription("RX-2", "A@b.com")))
	other := samplePrescription("RX-3", "c@d.com")
	other.DoctorID, other.DoctorEmail = "9", "rao@medscript.com"
	require.NoError(t, store.SavePrescription(ctx, other))
	_, err := store.UpdatePrescription(ctx, "RX-1", types.PrescriptionUpdate{Status: statusPtr(types.StatusDispensed)})
	require.NoError(t, err)

	records, err := store.GetDoctorRecords(ctx, "DOCTOR@medscript.com")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	stats, err := store.DoctorStats(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, DoctorStats{TotalPrescriptions: 2, TotalPatients: 1, PendingCount: 1}, stats)

	overview, err := store.AdminOverview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, overview.TotalIssued)
	assert.Equal(t, len(SeedUsers), overview.TotalUsers)
	assert.Equal(t, 2, overview.Prescriptions[types.StatusPending])
	assert.Equal(t, 1, overview.Users[types.RoleDoctor])
}

func TestFindByToken(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.SavePrescription(ctx, samplePrescription("RX-1", "a@b.com")))

	found, err := store.FindByToken(ctx, "  VERIFY-RX-1 ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "RX-1", found.ID)

	for _, token := range []string{"", "verify-rx-1", "VERIFY-RX-2"} {
		miss, err := store.FindByToken(ctx, token)
		require.NoError(t, err)
		assert.Nil(t, miss, token)
	}
}

func TestSession(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	current, err := store.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)

	user, err := store.Login(ctx, "PHARMACIST@medscript.com", types.RolePharmacist)
	require.NoError(t, err)
	require.NotNil(t, user)

	current, err = store.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, user, current)

	miss, err := store.Login(ctx, "pharmacist@medscript.com", types.RoleDoctor)
	require.NoError(t, err)
	assert.Nil(t, miss)
	current, _ = store.CurrentSession(ctx)
	assert.Equal(t, user, current)

	require.NoError(t, store.Logout(ctx))
	current, err = store.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestGenerateVerificationToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		token, err := GenerateVerificationToken()
		require.NoError(t, err)
		assert.Regexp(t, `^VERIFY-[0-9A-Z]{6}$`, token)
		seen[token] = struct{}{}
	}
	assert.Greater(t, len(seen), 40)
}

func TestIssueToDispense(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	patient, err := store.RegisterPatient(ctx, types.PatientRegistrationRequest{Name: "A", Email: "a@b.com"})
	require.NoError(t, err)

	doctor, err := store.FindUserByEmailAndRole(ctx, "doctor@medscript.com", types.RoleDoctor)
	require.NoError(t, err)
	require.NotNil(t, doctor)

	issued, err := store.IssuePrescription(ctx, *doctor, types.IssueRequest{
		PatientEmail: "A@B.com",
		Diagnosis:    "Throat infection",
		Medications:  []types.Medication{{Name: "Amoxicillin", Dosage: "250mg", Frequency: "1-1-1", Duration: "7 days"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "RX-id-2", issued.ID)
	assert.Equal(t, "2024-05-12T09:30:00.000Z", issued.Date)
	assert.Equal(t, "VERIFY-XYZ123", issued.QRCode)
	assert.Equal(t, types.StatusPending, issued.Status)

	history, err := store.GetPatientHistory(ctx, patient.Email)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.StatusPending, history[0].Status)
	assert.Equal(t, "VERIFY-XYZ123", history[0].QRCode)

	verified, err := store.FindByToken(ctx, "VERIFY-XYZ123")
	require.NoError(t, err)
	require.NotNil(t, verified)
	assert.Equal(t, issued.ID, verified.ID)

	dispensed, err := store.UpdatePrescription(ctx, verified.ID, types.PrescriptionUpdate{Status: statusPtr(types.StatusDispensed)})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDispensed, dispensed.Status)

	_, err = store.UpdatePrescription(ctx, verified.ID, types.PrescriptionUpdate{Status: statusPtr(types.StatusDispensed)})
	require.Error(t, err)
	assert.Equal(t, types.ErrorTypeConflict, types.ErrorTypeOf(err))
}

func TestIssuePrescription_TokenFailure(t *testing.T) {
	store, _ := setupStore(t, WithTokenGenerator(func() (string, error) { return "", fmt.Errorf("entropy exhausted") }))
	ctx := context.Background()

	_, err := store.IssuePrescription(ctx, SeedUsers[0], types.IssueRequest{
		PatientEmail: "a@b.com",
		Diagnosis:    "Flu",
		Medications:  []types.Medication{{Name: "Paracetamol"}},
	})
	require.Error(t, err)

	list, err := store.ListPrescriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
