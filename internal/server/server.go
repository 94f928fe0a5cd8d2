package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/teamauth/internal/audit/domain"
	"github.com/smallbiznis/teamauth/internal/authstate"
	"github.com/smallbiznis/teamauth/internal/config"
	"github.com/smallbiznis/teamauth/internal/guard"
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	impersonationdomain "github.com/smallbiznis/teamauth/internal/impersonation/domain"
	"github.com/smallbiznis/teamauth/internal/observability"
	obsmiddleware "github.com/smallbiznis/teamauth/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/teamauth/internal/observability/metrics"
	obstracing "github.com/smallbiznis/teamauth/internal/observability/tracing"
	profiledomain "github.com/smallbiznis/teamauth/internal/profile/domain"
	"github.com/smallbiznis/teamauth/internal/role"
	"github.com/smallbiznis/teamauth/internal/session"
	teamdomain "github.com/smallbiznis/teamauth/internal/team/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(session.NewManager),
	fx.Provide(session.NewCustodyManager),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine           *gin.Engine
	cfg              config.Config
	identitySvc      identitydomain.Provider
	profileSvc       profiledomain.Service
	teamSvc          teamdomain.Service
	impersonationSvc impersonationdomain.Service
	auditSvc         auditdomain.Service
	auth             *authstate.Manager
	pipeline         *guard.Pipeline
	sessions         *session.Manager
	custody          *session.CustodyManager
	obsMetrics       *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	IdentitySvc      identitydomain.Provider
	ProfileSvc       profiledomain.Service
	TeamSvc          teamdomain.Service
	ImpersonationSvc impersonationdomain.Service
	AuditSvc         auditdomain.Service
	Auth             *authstate.Manager
	Pipeline         *guard.Pipeline
	Sessions         *session.Manager
	Custody          *session.CustodyManager
	ObsMetrics       *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		identitySvc:      p.IdentitySvc,
		profileSvc:       p.ProfileSvc,
		teamSvc:          p.TeamSvc,
		impersonationSvc: p.ImpersonationSvc,
		auditSvc:         p.AuditSvc,
		auth:             p.Auth,
		pipeline:         p.Pipeline,
		sessions:         p.Sessions,
		custody:          p.Custody,
		obsMetrics:       p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerPageRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Impersonation --------
	api.POST("/impersonate", s.StartImpersonation)
	api.POST("/impersonate/stop", s.StopImpersonation)

	// -------- Profile --------
	api.GET("/profile", s.GetProfile)
	api.PATCH("/profile", s.UpdateProfile)

	// -------- Team --------
	api.POST("/team", s.CreateTeam)
	api.POST("/team/invites/accept", s.AcceptInvite)

	team := api.Group("/team", s.TeamContext())
	{
		team.GET("", s.GetTeam)
		team.GET("/members", s.ListTeamMembers)
		team.PATCH("/members/:userId/role", s.RequireRole(role.Admin), s.UpdateMemberRole)
		team.DELETE("/members/:userId", s.RequireRole(role.Admin), s.RemoveMember)
		team.POST("/transfer-ownership", s.RequireRole(role.Owner), s.TransferOwnership)

		team.GET("/invites", s.RequireRole(role.Admin), s.ListInvites)
		team.POST("/invites", s.RequireRole(role.Admin), s.InviteMember)
		team.DELETE("/invites/:id", s.RequireRole(role.Admin), s.RevokeInvite)
	}

	api.GET("/audit-logs", s.TeamContext(), s.RequireRole(role.Admin), s.ListAuditLogs)
}

// registerPageRoutes applies the guard pipeline to page navigations. The
// NoRoute handler catches every path the explicit routes above do not
// claim, so unlisted pages still pass through the policy before the SPA
// shell is served.
func (s *Server) registerPageRoutes() {
	guarded := guard.Middleware(s.pipeline, s.sessions)

	s.engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Status(http.StatusNotFound)
			return
		}

		// static assets (vite)
		if fileExists("./public", c.Request.URL.Path) {
			c.File("./public" + c.Request.URL.Path)
			return
		}

		guarded(c)
		if c.IsAborted() {
			return
		}

		c.File("./public/index.html")
	})
}

func fileExists(publicDir, reqPath string) bool {
	clean := filepath.Clean(reqPath)

	// prevent path traversal
	if clean == "." || clean == "/" || clean == ".." {
		return false
	}

	fullPath := filepath.Join(publicDir, clean)

	info, err := os.Stat(fullPath)
	if err != nil {
		return false
	}

	return !info.IsDir()
}
