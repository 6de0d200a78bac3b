package handler

import (
	"net/http"

	"github.com/Gofven/flowback-backend-sub001/internal/modules/chat/service"
	"github.com/Gofven/flowback-backend-sub001/pkg/response"
	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	service service.ChatService
}

func NewChatHandler(service service.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

func (h *ChatHandler) MyChannels(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	channels, err := h.service.MyChannels(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": channels})
}

func (h *ChatHandler) Participants(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	channelID, err := response.ParamID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	participants, err := h.service.Participants(c.Request.Context(), userID, channelID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": participants})
}
