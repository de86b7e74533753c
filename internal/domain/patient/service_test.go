package patient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// -- Mock Patient Repository --

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.patients {
		if existing.PatientNumber == p.PatientNumber {
			return ErrNumberTaken
		}
	}
	p.ID = uuid.New()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetByNumber(_ context.Context, number int64) (*Patient, error) {
	for _, p := range m.patients {
		if p.PatientNumber == number {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		result = append(result, p)
	}
	return result, len(result), nil
}

func strPtr(s string) *string { return &s }

func TestService_Register(t *testing.T) {
	svc := NewService(newMockRepo())
	doctorID := uuid.New()

	p, err := svc.Register(context.Background(), RegisterInput{
		PatientNumber: 12345,
		Name:          "  john smith ",
		DateOfBirth:   "1990-06-15",
		Gender:        "Male",
		Country:       strPtr("new zealand"),
		Occupation:    strPtr("carpenter"),
	}, doctorID)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if p.ID == uuid.Nil {
		t.Error("expected assigned patient ID")
	}
	if p.Name != "John Smith" {
		t.Errorf("name not normalized: %q", p.Name)
	}
	if p.Gender != "male" {
		t.Errorf("gender not lowercased: %q", p.Gender)
	}
	if p.Country == nil || *p.Country != "New Zealand" {
		t.Errorf("country not title-cased: %v", p.Country)
	}
	if p.Occupation == nil || *p.Occupation != "Carpenter" {
		t.Errorf("occupation not title-cased: %v", p.Occupation)
	}
	if p.Ethnicity != nil {
		t.Errorf("unset ethnicity should stay nil, got %v", p.Ethnicity)
	}
	if p.Notes == nil || len(p.Notes) != 0 {
		t.Errorf("notes should default to empty list, got %v", p.Notes)
	}
	if p.RegisteredBy != doctorID {
		t.Errorf("registered_by = %s, want %s", p.RegisteredBy, doctorID)
	}
}

func TestService_Register_DuplicateNumber(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	in := RegisterInput{
		PatientNumber: 12345,
		Name:          "John Smith",
		DateOfBirth:   "1990-06-15",
		Gender:        "male",
	}
	if _, err := svc.Register(context.Background(), in, uuid.New()); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	in.Name = "Someone Else"
	if _, err := svc.Register(context.Background(), in, uuid.New()); !errors.Is(err, ErrNumberTaken) {
		t.Fatalf("second Register err = %v, want ErrNumberTaken", err)
	}
	if len(repo.patients) != 1 {
		t.Errorf("duplicate registration changed the registry: %d patients", len(repo.patients))
	}
}

func TestService_Register_Validation(t *testing.T) {
	svc := NewService(newMockRepo())

	base := RegisterInput{
		PatientNumber: 12345,
		Name:          "John Smith",
		DateOfBirth:   "1990-06-15",
		Gender:        "male",
	}

	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		want   error
	}{
		{"zero number", func(in *RegisterInput) { in.PatientNumber = 0 }, ErrInvalidNumber},
		{"negative number", func(in *RegisterInput) { in.PatientNumber = -3 }, ErrInvalidNumber},
		{"missing name", func(in *RegisterInput) { in.Name = "" }, nil},
		{"bad date format", func(in *RegisterInput) { in.DateOfBirth = "15/06/1990" }, nil},
		{"impossible date", func(in *RegisterInput) { in.DateOfBirth = "1990-13-40" }, nil},
		{"missing gender", func(in *RegisterInput) { in.Gender = "  " }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := svc.Register(context.Background(), in, uuid.New())
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestService_GetByNumber(t *testing.T) {
	svc := NewService(newMockRepo())

	created, err := svc.Register(context.Background(), RegisterInput{
		PatientNumber: 777,
		Name:          "Jane Roe",
		DateOfBirth:   "1985-01-02",
		Gender:        "female",
	}, uuid.New())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err := svc.GetByNumber(context.Background(), 777)
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if p.ID != created.ID {
		t.Errorf("got patient %s, want %s", p.ID, created.ID)
	}

	if _, err := svc.GetByNumber(context.Background(), 0); !errors.Is(err, ErrInvalidNumber) {
		t.Errorf("GetByNumber(0) err = %v, want ErrInvalidNumber", err)
	}
	if _, err := svc.GetByNumber(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByNumber(999) err = %v, want ErrNotFound", err)
	}
}

func TestService_IDByNumber(t *testing.T) {
	svc := NewService(newMockRepo())

	created, err := svc.Register(context.Background(), RegisterInput{
		PatientNumber: 42,
		Name:          "Jane Roe",
		DateOfBirth:   "1985-01-02",
		Gender:        "female",
	}, uuid.New())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	id, err := svc.IDByNumber(context.Background(), 42)
	if err != nil {
		t.Fatalf("IDByNumber: %v", err)
	}
	if id != created.ID {
		t.Errorf("id = %s, want %s", id, created.ID)
	}

	if _, err := svc.IDByNumber(context.Background(), 41); !errors.Is(err, ErrNotFound) {
		t.Errorf("IDByNumber(41) err = %v, want ErrNotFound", err)
	}
}
