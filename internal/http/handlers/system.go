package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Rooms lists the live chat rooms and their subscriber counts.
func (h *Handlers) Rooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.Chat.Rooms())
}
