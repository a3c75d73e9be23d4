package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat/internal/auth"
	"github.com/vovakirdan/streamchat/internal/chat"
	"github.com/vovakirdan/streamchat/internal/config"
	"github.com/vovakirdan/streamchat/internal/irc"
	"github.com/vovakirdan/streamchat/internal/state"
)

// ChatService is the part of chat.Client the status API uses.
type ChatService interface {
	Status() chat.Status
	Channels() []state.ChannelInfo
	Channel(name string) (state.ChannelInfo, bool)
	Users(channel string) ([]state.UserInfo, bool)
	User(channel, name string) (state.UserInfo, bool)
	Join(channels ...string) error
	Part(channels ...string) error
	Say(channel, text string, high bool) error
	OnMessage(fn func(msg irc.Message)) func()
}

// Options configures access control on the router.
type Options struct {
	// JWT guards the mutating routes and /ws. Nil disables them.
	JWT *auth.JWTConfig
	// AllowedOrigins are extra browser origins accepted by /ws.
	AllowedOrigins []string
}

// NewServer builds the status HTTP server. metrics may be nil.
func NewServer(svc ChatService, metrics stdhttp.Handler, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	opts := Options{
		JWT:            auth.NewJWTConfig(cfg.APISecret, 0),
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if opts.JWT == nil {
		logger.Warn().Msg("api_secret not set, join, part, say and /ws are disabled")
	}
	return &stdhttp.Server{
		Addr:              cfg.StatusAddr,
		Handler:           NewRouter(svc, metrics, opts, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter wires every route onto a gin engine. Reads are open; anything that
// talks to the chat server needs a bearer token.
func NewRouter(svc ChatService, metrics stdhttp.Handler, opts Options, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	requireToken := AuthMiddleware(opts.JWT, logger)
	router.GET("/ws", requireToken, gin.WrapH(NewWSHandler(svc, opts.AllowedOrigins, logger)))

	h := NewChannelHandlers(svc, logger)
	api := router.Group("/api")
	api.GET("/status", h.Status)
	api.GET("/channels", h.ListChannels)
	api.GET("/channels/:name", h.GetChannel)
	api.GET("/channels/:name/users/:user", h.GetUser)

	protected := api.Group("", requireToken)
	protected.POST("/channels/:name", h.JoinChannel)
	protected.DELETE("/channels/:name", h.PartChannel)
	protected.POST("/channels/:name/messages", h.SendMessage)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
