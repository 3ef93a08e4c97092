package handlers

import (
	"net/http"

	"sharedtrips/internal/domain/models"
	"sharedtrips/internal/http/middleware"
	"sharedtrips/internal/utils"

	"github.com/gin-gonic/gin"
)

type joinRequestBody struct {
	UserID string `json:"userId"`
}

// SubmitJoinRequest serves POST /api/trips/:tripId/request.
func (h *Handlers) SubmitJoinRequest(c *gin.Context) {
	var body joinRequestBody
	if !BindJSONOrError(c, &body) {
		return
	}
	req, err := h.Reservations.SubmitJoinRequest(c.Request.Context(), c.Param("tripId"), body.UserID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"requestId": req.ID, "status": req.Status})
}

// DecideJoinRequest serves POST /api/trips/:tripId/requests/:requestId/:action
// where action is approve or decline.
func (h *Handlers) DecideJoinRequest(c *gin.Context) {
	action := models.Decision(c.Param("action"))
	req, err := h.Reservations.DecideJoinRequest(c.Request.Context(), c.Param("tripId"), c.Param("requestId"), action)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	utils.LogEvent(middleware.GetRequestID(c), "requests", string(action), "request "+req.ID+" is now "+string(req.Status))
	c.JSON(http.StatusOK, gin.H{"ok": true, "request": req})
}
