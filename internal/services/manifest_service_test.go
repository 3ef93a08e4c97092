package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"sharedtrips/internal/domain"
	"sharedtrips/internal/domain/models"
	"sharedtrips/internal/repositories/memory"
)

func TestManifestServiceGenerate(t *testing.T) {
	ctx := context.Background()
	res := NewReservationService(memory.New())
	trip, err := res.CreateTrip(ctx, models.TripInput{
		From: "Sofia", To: "Veliko Tarnovo", Date: "2025-09-10", Time: "06:45", Driver: "Georgi", SeatsTotal: 3,
	})
	if err != nil {
		t.Fatalf("CreateTrip error: %v", err)
	}
	a, _ := res.SubmitJoinRequest(ctx, trip.ID, "anna")
	b, _ := res.SubmitJoinRequest(ctx, trip.ID, "boris")
	res.SubmitJoinRequest(ctx, trip.ID, "vera")
	res.DecideJoinRequest(ctx, trip.ID, a.ID, models.DecisionApprove)
	res.DecideJoinRequest(ctx, trip.ID, b.ID, models.DecisionDecline)

	svc := ManifestService{Reservations: res, RequestID: "test"}
	pdf, filename, err := svc.Generate(ctx, trip.ID)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
	if !strings.HasPrefix(filename, "MANIFEST_2025-09-10_") || !strings.HasSuffix(filename, ".pdf") || strings.Contains(filename, " ") {
		t.Fatalf("unexpected filename %q", filename)
	}
}

func TestManifestServiceUnknownTrip(t *testing.T) {
	svc := ManifestService{Reservations: NewReservationService(memory.New())}
	if _, _, err := svc.Generate(context.Background(), "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
