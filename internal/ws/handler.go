package ws

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"
)

const (
	pendingChannel = "lender:pending"
	roleAdmin      = "admin"
)

// PendingTopic is the hub channel carrying a lender's reconciliation updates.
func PendingTopic(lenderID string) string {
	return pendingChannel + ":" + lenderID
}

type Handler struct {
	hub    *Hub
	logger *slog.Logger
}

func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, logger: logger}
}

type subscribeMessage struct {
	Action   string `json:"action"`
	Channel  string `json:"channel"`
	LenderID string `json:"lenderId"`
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	subject := c.GetString("user_id")
	admin := c.GetString("user_role") == roleAdmin
	websocket.Handler(func(conn *websocket.Conn) {
		client := NewClient(conn, subject, admin)
		go h.writer(client)
		h.reader(client)
	}).ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) reader(client *Client) {
	defer func() {
		h.hub.UnsubscribeAll(client)
		client.close()
		_ = client.conn.Close()
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(client.conn, &raw); err != nil {
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		action := strings.ToLower(strings.TrimSpace(msg.Action))
		if action != "subscribe" && action != "unsubscribe" {
			continue
		}
		topic := subscriptionTopic(msg, client)
		if topic == "" {
			h.logger.Debug("ws subscription refused", "channel", msg.Channel, "lender_id", msg.LenderID)
			continue
		}
		event := "subscribed"
		if action == "unsubscribe" {
			h.hub.Unsubscribe(topic, client)
			event = "unsubscribed"
		} else {
			h.hub.Subscribe(topic, client)
		}
		ack, _ := json.Marshal(map[string]string{"event": event, "channel": topic})
		client.send(ack)
	}
}

func (h *Handler) writer(client *Client) {
	for payload := range client.out {
		if err := websocket.Message.Send(client.conn, string(payload)); err != nil {
			return
		}
	}
}

func subscriptionTopic(msg subscribeMessage, client *Client) string {
	if strings.ToLower(strings.TrimSpace(msg.Channel)) != pendingChannel {
		return ""
	}
	lenderID := strings.TrimSpace(msg.LenderID)
	if lenderID == "" {
		lenderID = client.subject
	}
	if lenderID == "" || !client.canWatch(lenderID) {
		return ""
	}
	return PendingTopic(lenderID)
}
