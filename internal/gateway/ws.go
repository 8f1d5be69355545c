package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/agentgate/internal/agent"
	"github.com/nextlevelbuilder/agentgate/internal/providers"
	"github.com/nextlevelbuilder/agentgate/internal/rbac"
	"github.com/nextlevelbuilder/agentgate/internal/store"
	"github.com/nextlevelbuilder/agentgate/pkg/protocol"
)

// Client is one WebSocket connection. Writes are serialized through
// writeMu because gorilla connections allow a single concurrent writer.
type Client struct {
	conn    *websocket.Conn
	user    *rbac.UserContext
	server  *Server
	writeMu sync.Mutex
}

// NewClient wraps an upgraded connection for an authenticated user.
func NewClient(conn *websocket.Conn, user *rbac.UserContext, server *Server) *Client {
	return &Client{conn: conn, user: user, server: server}
}

// Send writes one frame to the client.
func (c *Client) Send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Run reads frames until the connection drops.
func (c *Client) Run(ctx context.Context) {
	for {
		var req protocol.RequestFrame
		if err := c.conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws.read_error", "user", c.user.UserID, "error", err)
			}
			return
		}
		c.dispatch(ctx, req)
	}
}

func (c *Client) dispatch(ctx context.Context, req protocol.RequestFrame) {
	switch req.Method {
	case protocol.MethodPing:
		c.Send(protocol.OKResponse(req.ID, map[string]string{"pong": "ok"}))

	case protocol.MethodChatSend:
		c.handleChatSend(ctx, req)

	case protocol.MethodSessionsList:
		result, err := c.server.sessions.List(ctx, c.user.UserID, store.SessionListOpts{})
		if err != nil {
			c.Send(protocol.ErrResponse(req.ID, err.Error()))
			return
		}
		c.Send(protocol.OKResponse(req.ID, result))

	default:
		c.Send(protocol.ErrResponse(req.ID, "unknown method "+req.Method))
	}
}

func (c *Client) handleChatSend(ctx context.Context, req protocol.RequestFrame) {
	if !c.server.rateLimiter.Allow(c.user.UserID) {
		c.Send(protocol.ErrResponse(req.ID, "rate limit exceeded"))
		return
	}

	var params protocol.ChatSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.Send(protocol.ErrResponse(req.ID, "invalid params: "+err.Error()))
		return
	}
	if params.Message == "" {
		c.Send(protocol.ErrResponse(req.ID, "message is required"))
		return
	}

	target, err := c.server.resolveAgent(ctx, params.AgentKey, c.user.Groups)
	if err != nil {
		c.Send(protocol.ErrResponse(req.ID, err.Error()))
		return
	}

	result, err := c.server.orch.InvokeStream(ctx, agent.InvokeRequest{
		Agent:     target,
		UserID:    c.user.UserID,
		SessionID: params.SessionID,
		Message:   params.Message,
	}, func(chunk providers.StreamChunk) {
		if chunk.Content != "" {
			c.Send(protocol.NewEvent(protocol.EventChatChunk, map[string]string{"delta": chunk.Content}))
		}
	})
	if err != nil {
		if errors.Is(err, agent.ErrInvocationTimeout) {
			c.Send(protocol.NewEvent(protocol.EventError, map[string]string{"error": err.Error()}))
		}
		c.Send(protocol.ErrResponse(req.ID, err.Error()))
		return
	}

	c.Send(protocol.NewEvent(protocol.EventChatDone, map[string]interface{}{
		"session_id": result.SessionID,
		"usage":      result.Usage,
	}))
	c.Send(protocol.OKResponse(req.ID, map[string]interface{}{
		"session_id": result.SessionID,
		"content":    result.Content,
	}))
}
