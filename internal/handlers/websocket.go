package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gorillawebsocket "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"medicare-scheduler/internal/utils"
	"medicare-scheduler/internal/websocket"
)

// WebSocketHandler upgrades authenticated connections and hands them to the hub.
type WebSocketHandler struct {
	hub      *websocket.Hub
	secret   string
	upgrader gorillawebsocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler accepts connections from origin, or from anywhere when
// origin is empty or "*".
func NewWebSocketHandler(hub *websocket.Hub, secret, origin string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		secret: secret,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if origin == "" || origin == "*" {
					return true
				}
				return r.Header.Get("Origin") == origin
			},
		},
		logger: logger.Named("push"),
	}
}

// Connect authenticates with ?token= (browsers cannot set headers on the
// upgrade) or a bearer header, then serves the connection until it closes.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		utils.Unauthorized(c, "token required")
		return
	}
	claims, err := utils.ValidateToken(token, h.secret)
	if err != nil {
		utils.Unauthorized(c, "Invalid token: "+err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", claims.UserID), zap.Error(err))
		return
	}

	client := websocket.NewClient(claims.UserID, conn)
	h.logger.Info("push client connected", zap.String("user_id", claims.UserID), zap.String("client_id", client.ID))
	h.hub.Serve(client)
	h.logger.Info("push client disconnected", zap.String("user_id", claims.UserID), zap.String("client_id", client.ID))
}
