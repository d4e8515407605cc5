// Package httpapi exposes the integration facade over HTTP with gin.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"

	integrations "github.com/goliatone/go-integrations"
	"github.com/goliatone/go-integrations/identity"
)

const (
	SessionUserID      = "user_id"
	SessionAccessToken = "access_token"

	DefaultSessionName = "integrations_session"

	ctxUserID      = "integrations.user_id"
	ctxBearerToken = "integrations.bearer_token"
)

type Server struct {
	commands integrations.Commands
	queries  integrations.Queries
	identity identity.Resolver
	logger   glog.Logger
}

type Option func(*Server)

func WithLogger(logger glog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewServer(facade *integrations.Facade, resolver identity.Resolver, opts ...Option) (*Server, error) {
	if facade == nil {
		return nil, fmt.Errorf("httpapi: facade is required")
	}
	s := &Server{
		commands: facade.Commands(),
		queries:  facade.Queries(),
		identity: resolver,
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

type RouterConfig struct {
	SessionName   string
	SessionSecret []byte
	SecureCookies bool
}

// NewRouter builds a gin engine with cookie sessions and every route
// registered.
func NewRouter(s *Server, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if len(cfg.SessionSecret) > 0 {
		name := strings.TrimSpace(cfg.SessionName)
		if name == "" {
			name = DefaultSessionName
		}
		store := cookie.NewStore(cfg.SessionSecret)
		store.Options(sessions.Options{
			Path:     "/",
			HttpOnly: true,
			Secure:   cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		r.Use(sessions.Sessions(name, store))
	}

	s.Register(r)
	return r
}

// Register mounts the routes on r. Session middleware, when wanted, must
// already be installed.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/oauth/:provider/web-callback", s.handleCallback)

	api := r.Group("/api")
	api.GET("/providers", s.handleListProviders)

	authed := api.Group("")
	authed.Use(s.requireUser())

	authed.GET("/integrations", s.handleListIntegrations)
	authed.POST("/integrations/:id/refresh", s.handleRefresh)
	authed.POST("/integrations/:id/reconnect", s.handleReconnect)
	authed.DELETE("/integrations/:id", s.handleDisconnect)

	authed.POST("/oauth/initiate", s.handleInitiate)
	authed.GET("/oauth/attempts/:state", s.handleAttemptStatus)
	authed.POST("/oauth/attempts/:state/cancel", s.handleCancelAttempt)

	authed.POST("/automations/trigger", s.handleTrigger)

	authed.POST("/requests", s.handleCreateRequest)
	authed.GET("/requests/:id", s.handleRequestStatus)
	authed.PATCH("/requests/:id", s.handleUpdateRequest)
	authed.POST("/requests/:id/cancel", s.handleCancelRequest)
	authed.GET("/requests/:id/cancelled", s.handleIsCancelled)
}

// requireUser resolves the caller from a bearer token first and the cookie
// session second.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			if s.identity == nil {
				s.writeError(c, errUnauthenticated)
				c.Abort()
				return
			}
			who, err := s.identity.Resolve(c.Request.Context(), token)
			if err != nil {
				s.writeError(c, err)
				c.Abort()
				return
			}
			c.Set(ctxUserID, who.UserID)
			c.Set(ctxBearerToken, token)
			c.Next()
			return
		}

		if _, ok := c.Get(sessions.DefaultKey); ok {
			session := sessions.Default(c)
			userID, _ := session.Get(SessionUserID).(string)
			if strings.TrimSpace(userID) != "" {
				accessToken, _ := session.Get(SessionAccessToken).(string)
				c.Set(ctxUserID, strings.TrimSpace(userID))
				c.Set(ctxBearerToken, strings.TrimSpace(accessToken))
				c.Next()
				return
			}
		}

		s.writeError(c, errUnauthenticated)
		c.Abort()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func callerToken(c *gin.Context) string {
	return c.GetString(ctxBearerToken)
}

// sessionUserID reads the session without requiring one.
func sessionUserID(c *gin.Context) string {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return ""
	}
	value, _ := sessions.Default(c).Get(SessionUserID).(string)
	return strings.TrimSpace(value)
}

func execute[T any, R any](ctx context.Context, cmd gocmd.Commander[T], msg T) (R, error) {
	collector := gocmd.NewResult[R]()
	if err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		var zero R
		return zero, err
	}
	out, _ := collector.Load()
	return out, nil
}
