package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type postMessageBody struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Text     string `json:"text"`
}

// ChatHistory serves GET /api/trips/:tripId/chat.
func (h *Handlers) ChatHistory(c *gin.Context) {
	msgs, err := h.Chat.History(c.Request.Context(), c.Param("tripId"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// PostMessage serves POST /api/trips/:tripId/chat. The stored message is
// returned; live subscribers get it through the websocket.
func (h *Handlers) PostMessage(c *gin.Context) {
	var body postMessageBody
	if !BindJSONOrError(c, &body) {
		return
	}
	msg, err := h.Chat.Post(c.Request.Context(), c.Param("tripId"), body.UserID, body.UserName, body.Text)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
