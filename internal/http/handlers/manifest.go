package handlers

import (
	"net/http"

	"sharedtrips/internal/http/middleware"
	"sharedtrips/internal/services"

	"github.com/gin-gonic/gin"
)

// TripManifest returns the trip's passenger manifest as an inline PDF.
func (h *Handlers) TripManifest(c *gin.Context) {
	svc := services.ManifestService{
		Reservations: h.Reservations,
		RequestID:    middleware.GetRequestID(c),
	}
	pdfBytes, filename, err := svc.Generate(c.Request.Context(), c.Param("tripId"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}
