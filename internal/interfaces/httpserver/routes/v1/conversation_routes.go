package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/interfaces/httpserver/handlers"
	"jan-server/services/chat-client/internal/interfaces/httpserver/requests"
	"jan-server/services/chat-client/internal/interfaces/httpserver/responses"
)

// RegisterConversationRoutes registers the conversation control surface.
func RegisterConversationRoutes(router gin.IRoutes, handler *handlers.ChatHandler, log zerolog.Logger) {
	router.GET("/conversations/:id/messages", listMessages(handler))
	router.POST("/conversations/:id/messages", sendMessage(handler, log))
	router.GET("/conversations/:id/status", getStatus(handler))
	router.GET("/conversations/:id/sessions", getSessions(handler))
	router.POST("/conversations/:id/stop", stopStream(handler))
	router.POST("/conversations/:id/retry", retrySend(handler, log))
	router.POST("/conversations/:id/responder", switchResponder(handler))
	router.POST("/conversations/:id/resume", resumeStream(handler, log))
	router.DELETE("/conversations/:id", closeConversation(handler))
}

func listMessages(handler *handlers.ChatHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs := handler.Messages(c.Param("id"))
		c.JSON(http.StatusOK, responses.NewMessagesResponse(msgs))
	}
}

func sendMessage(handler *handlers.ChatHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requests.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.HandleValidationError(c, err)
			return
		}

		receipt, err := handler.Send(c.Request.Context(), c.Param("id"), req.Text, req.ResponderID)
		if err != nil {
			responses.HandleError(c, err, "failed to send message", log)
			return
		}

		c.JSON(http.StatusAccepted, responses.NewSendResponse(receipt))
	}
}

func getStatus(handler *handlers.ChatHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := handler.Status(c.Param("id"))
		c.JSON(http.StatusOK, responses.NewStatusResponse(info))
	}
}

func getSessions(handler *handlers.ChatHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := handler.Sessions(c.Param("id"))
		c.JSON(http.StatusOK, responses.NewSessionsResponse(st))
	}
}

func stopStream(handler *handlers.ChatHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		handler.Stop(c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"status": "stopped"})
	}
}

func retrySend(handler *handlers.ChatHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		receipt, err := handler.Retry(c.Param("id"))
		if err != nil {
			responses.HandleError(c, err, "failed to retry send", log)
			return
		}

		c.JSON(http.StatusAccepted, responses.NewSendResponse(receipt))
	}
}

func switchResponder(handler *handlers.ChatHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requests.SwitchResponderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.HandleValidationError(c, err)
			return
		}

		sessionID := handler.SwitchResponder(c.Param("id"), req.ResponderID)
		c.JSON(http.StatusOK, responses.SwitchResponse{
			SessionID:   sessionID,
			ResponderID: req.ResponderID,
		})
	}
}

func resumeStream(handler *handlers.ChatHandler, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := handler.Resume(c.Request.Context(), c.Param("id")); err != nil {
			responses.HandleError(c, err, "failed to resume stream", log)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "resumed"})
	}
}

func closeConversation(handler *handlers.ChatHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		handler.Close(c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"status": "closed"})
	}
}
