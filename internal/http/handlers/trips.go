package handlers

import (
	"net/http"

	"sharedtrips/internal/domain/models"
	"sharedtrips/internal/http/middleware"
	"sharedtrips/internal/utils"

	"github.com/gin-gonic/gin"
)

type createTripRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Driver     string `json:"driver"`
	SeatsTotal int    `json:"seatsTotal"`
}

// ListTrips serves GET /api/trips?from=&to=&date=.
func (h *Handlers) ListTrips(c *gin.Context) {
	filter := models.TripFilter{
		From: utils.TrimOrEmpty(c.Query("from")),
		To:   utils.TrimOrEmpty(c.Query("to")),
		Date: utils.TrimOrEmpty(c.Query("date")),
	}
	trips, err := h.Reservations.ListTrips(c.Request.Context(), filter)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, trips)
}

func (h *Handlers) CreateTrip(c *gin.Context) {
	var req createTripRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	trip, err := h.Reservations.CreateTrip(c.Request.Context(), models.TripInput{
		From:       req.From,
		To:         req.To,
		Date:       req.Date,
		Time:       req.Time,
		Driver:     req.Driver,
		SeatsTotal: req.SeatsTotal,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	utils.LogEvent(middleware.GetRequestID(c), "trips", "create", "trip "+trip.ID+" "+trip.From+" -> "+trip.To)
	c.JSON(http.StatusCreated, gin.H{"id": trip.ID, "trip": trip})
}

func (h *Handlers) GetTrip(c *gin.Context) {
	trip, reqs, err := h.Reservations.TripWithRequests(c.Request.Context(), c.Param("tripId"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	summaries := make([]models.RequestSummary, 0, len(reqs))
	for _, r := range reqs {
		summaries = append(summaries, r.Summary())
	}
	c.JSON(http.StatusOK, models.TripListing{Trip: trip, Requests: summaries})
}
