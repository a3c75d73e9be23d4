package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/state"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChannelResponse is a channel snapshot together with its users.
type ChannelResponse struct {
	state.ChannelInfo
	Members []state.UserInfo `json:"members"`
}

// ChannelHandlers serves the status API.
type ChannelHandlers struct {
	svc ChatService
	log *zerolog.Logger
}

// NewChannelHandlers creates new channel handlers.
func NewChannelHandlers(svc ChatService, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{svc: svc, log: logger}
}

// Status handles GET /api/status
func (h *ChannelHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

// ListChannels handles GET /api/channels
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	channels := h.svc.Channels()
	if channels == nil {
		channels = []state.ChannelInfo{}
	}
	c.JSON(http.StatusOK, channels)
}

// GetChannel handles GET /api/channels/:name
func (h *ChannelHandlers) GetChannel(c *gin.Context) {
	name, ok := channelParam(c)
	if !ok {
		return
	}

	info, ok := h.svc.Channel(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		return
	}
	users, _ := h.svc.Users(name)
	if users == nil {
		users = []state.UserInfo{}
	}

	c.JSON(http.StatusOK, ChannelResponse{ChannelInfo: info, Members: users})
}

// GetUser handles GET /api/channels/:name/users/:user
func (h *ChannelHandlers) GetUser(c *gin.Context) {
	name, ok := channelParam(c)
	if !ok {
		return
	}

	user, ok := h.svc.User(name, strings.ToLower(c.Param("user")))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// JoinChannel handles POST /api/channels/:name
func (h *ChannelHandlers) JoinChannel(c *gin.Context) {
	name, ok := channelParam(c)
	if !ok {
		return
	}

	if err := h.svc.Join(name); err != nil {
		h.log.Debug().Err(err).Str("channel", name).Msg("join failed")
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"channel": name})
}

// PartChannel handles DELETE /api/channels/:name
func (h *ChannelHandlers) PartChannel(c *gin.Context) {
	name, ok := channelParam(c)
	if !ok {
		return
	}

	if _, ok := h.svc.Channel(name); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
		return
	}
	if err := h.svc.Part(name); err != nil {
		h.log.Debug().Err(err).Str("channel", name).Msg("part failed")
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// SendMessage handles POST /api/channels/:name/messages
func (h *ChannelHandlers) SendMessage(c *gin.Context) {
	name, ok := channelParam(c)
	if !ok {
		return
	}

	var req SayData
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "text is required"})
		return
	}
	if err := sayMessage(name, req.Text).Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.svc.Say(name, req.Text, req.HighPriority); err != nil {
		h.log.Debug().Err(err).Str("channel", name).Msg("send failed")
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"channel": name, "queued": true})
}

// channelParam reads :name. The leading '#' is optional since browsers treat
// it as a fragment.
func channelParam(c *gin.Context) (string, bool) {
	name := state.NormalizeChannel(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid channel name"})
		return "", false
	}
	return name, true
}
