package services

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"sharedtrips/internal/domain/models"
	"sharedtrips/internal/utils"

	"github.com/phpdave11/gofpdf"
)

// ManifestService renders the driver's passenger manifest for a trip.
type ManifestService struct {
	Reservations *ReservationService
	RequestID    string
}

func (s ManifestService) Generate(ctx context.Context, tripID string) ([]byte, string, error) {
	trip, reqs, err := s.Reservations.TripWithRequests(ctx, tripID)
	if err != nil {
		return nil, "", err
	}
	utils.LogEvent(s.RequestID, "manifest", "generate", fmt.Sprintf("trip=%s requests=%d", trip.ID, len(reqs)))
	return buildManifestPDF(trip, reqs)
}

var statusRank = map[models.RequestStatus]int{
	models.RequestApproved: 0,
	models.RequestPending:  1,
	models.RequestDeclined: 2,
}

func buildManifestPDF(trip models.Trip, reqs []models.JoinRequest) ([]byte, string, error) {
	sorted := make([]models.JoinRequest, len(reqs))
	copy(sorted, reqs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return statusRank[sorted[i].Status] < statusRank[sorted[j].Status]
	})

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Trip manifest", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "TRIP MANIFEST")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Trip     : %s", trip.ID),
		fmt.Sprintf("Route    : %s -> %s", trip.From, trip.To),
		fmt.Sprintf("Departure: %s %s", trip.Date, trip.Time),
		fmt.Sprintf("Driver   : %s", trip.Driver),
		fmt.Sprintf("Seats    : %d taken of %d (%d left)", trip.SeatsTaken, trip.SeatsTotal, trip.SeatsLeft()),
	}
	for _, l := range lines {
		pdf.Cell(0, 7, l)
		pdf.Ln(7)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(10, 8, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(90, 8, "User", "1", 0, "L", false, 0, "")
	pdf.CellFormat(35, 8, "Status", "1", 0, "L", false, 0, "")
	pdf.CellFormat(45, 8, "Requested (UTC)", "1", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	if len(sorted) == 0 {
		pdf.CellFormat(180, 8, "No join requests yet.", "1", 1, "C", false, 0, "")
	}
	for i, r := range sorted {
		pdf.CellFormat(10, 8, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(90, 8, r.UserID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 8, string(r.Status), "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 8, r.CreatedAt.UTC().Format("2006-01-02 15:04"), "1", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("MANIFEST_%s_%s_%s.pdf", utils.SafeFilenamePart(trip.Date), utils.SafeFilenamePart(trip.From), utils.SafeFilenamePart(trip.To))
	return buf.Bytes(), filename, nil
}
