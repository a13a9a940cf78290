package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"bidflow/fault"
)

type fakeTenantDirectory struct {
	known map[string]bool
	err   error
}

func (f *fakeTenantDirectory) Exists(_ context.Context, schoolID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.known[schoolID], nil
}

func TestCreate_RejectsBadParams(t *testing.T) {
	closes := time.Now().Add(time.Hour)
	lateOpen := time.Now().Add(2 * time.Hour)

	cases := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"missing school", func(p *CreateParams) { p.SchoolID = "" }},
		{"missing title", func(p *CreateParams) { p.Title = "" }},
		{"fee rate above cap", func(p *CreateParams) { p.FeeBps = 10001 }},
		{"negative minimum fee", func(p *CreateParams) { p.FeeMinimum = -1 }},
		{"missing close time", func(p *CreateParams) { p.ClosesAt = nil }},
		{"close before open", func(p *CreateParams) { p.OpensAt = &lateOpen }},
		{"auto-extend without window", func(p *CreateParams) { p.AutoExtend = true }},
		{"negative extension budget", func(p *CreateParams) { p.MaxExtensions = -1 }},
	}

	svc := NewCRUDService(nil, &fakeTenantDirectory{known: map[string]bool{"school-1": true}})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := CreateParams{SchoolID: "school-1", Title: "Spring Gala", ClosesAt: &closes}
			tc.mutate(&params)
			if _, err := svc.Create(context.Background(), "organizer-1", params); !fault.Is(err, fault.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreate_RejectsUnknownSchool(t *testing.T) {
	closes := time.Now().Add(time.Hour)
	svc := NewCRUDService(nil, &fakeTenantDirectory{})

	_, err := svc.Create(context.Background(), "organizer-1", CreateParams{
		SchoolID: "no-such-school",
		Title:    "Spring Gala",
		ClosesAt: &closes,
	})
	if !fault.Is(err, fault.KindValidation) {
		t.Fatalf("expected validation error for unknown school, got %v", err)
	}
}

func TestCreate_SchoolLookupFailurePropagates(t *testing.T) {
	closes := time.Now().Add(time.Hour)
	lookupErr := errors.New("school: query by id: connection refused")
	svc := NewCRUDService(nil, &fakeTenantDirectory{err: lookupErr})

	_, err := svc.Create(context.Background(), "organizer-1", CreateParams{
		SchoolID: "school-1",
		Title:    "Spring Gala",
		ClosesAt: &closes,
	})
	if !errors.Is(err, lookupErr) {
		t.Fatalf("expected lookup error in chain, got %v", err)
	}
	if fault.KindOf(err) != "" {
		t.Fatalf("infrastructure failure must not carry a kind, got %q", fault.KindOf(err))
	}
}
