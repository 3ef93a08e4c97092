package handlers

import (
	"net/http"

	"sharedtrips/internal/domain"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) ListCities(c *gin.Context) {
	cities, err := h.Cities.ListCities(c.Request.Context())
	if err != nil {
		RespondDomainError(c, domain.InternalError{Msg: "failed to list cities", Err: err})
		return
	}
	c.JSON(http.StatusOK, cities)
}
