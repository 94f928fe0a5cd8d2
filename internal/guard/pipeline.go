package guard

import (
	"context"
	"net/url"
	"time"

	"github.com/smallbiznis/teamauth/internal/authstate"
	"github.com/smallbiznis/teamauth/internal/config"
	impersonationdomain "github.com/smallbiznis/teamauth/internal/impersonation/domain"
	"github.com/smallbiznis/teamauth/internal/observability/metrics"
	"github.com/smallbiznis/teamauth/internal/role"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// waitBudget bounds how long a navigation waits for the first auth state
// load. Past the budget the pipeline proceeds with whatever snapshot is
// available rather than blocking the navigation.
const waitBudget = 5 * time.Second

const (
	errAccountMisconfigured = "account_misconfigured"
	errInsufficientRole     = "insufficient_permissions"
	errAdminBlocked         = "admin_blocked_during_impersonation"
	errDangerousBlocked     = "dangerous_operations_blocked_during_impersonation"
)

// Navigation is one attempted page navigation.
type Navigation struct {
	Path     string
	RawQuery string
}

// Decision is the pipeline's verdict. Stage names the stage that decided,
// for logs and metrics.
type Decision struct {
	Allow      bool
	RedirectTo string
	Stage      string
}

type Params struct {
	fx.In

	Log           *zap.Logger
	Config        config.Config
	Routes        config.Routes
	Auth          *authstate.Manager
	Impersonation impersonationdomain.Service
	Metrics       *metrics.Metrics `optional:"true"`
}

// Pipeline evaluates navigations through a fixed stage order: public
// bypass, auth, team, role, impersonation restriction, reverse redirect.
// Stages never run out of order and the first verdict wins.
type Pipeline struct {
	log     *zap.Logger
	cfg     config.Config
	routes  config.Routes
	auth    *authstate.Manager
	imp     impersonationdomain.Service
	metrics *metrics.Metrics

	public    *Matcher
	protected *Matcher
	authPages *Matcher
	roleRules []roleRule
}

func New(p Params) *Pipeline {
	return &Pipeline{
		log:       p.Log.Named("guard"),
		cfg:       p.Config,
		routes:    p.Routes,
		auth:      p.Auth,
		imp:       p.Impersonation,
		metrics:   p.Metrics,
		public:    compileMatcher(p.Routes.PublicRoutes),
		protected: compileMatcher(p.Routes.ProtectedRoutes),
		authPages: compileMatcher(p.Routes.AuthPages),
		roleRules: compileRoleRules(p.Routes.RoleRules),
	}
}

// Resolve runs the pipeline for one navigation. token is the raw session
// token from the cookie, empty when absent.
func (p *Pipeline) Resolve(ctx context.Context, token string, nav Navigation) Decision {
	state := p.waitForState(ctx, token)
	decision := p.evaluate(ctx, state, nav)

	outcome := "redirect"
	if decision.Allow {
		outcome = "allow"
	}
	p.metrics.RecordGuardDecision(ctx, decision.Stage, outcome)
	if !decision.Allow {
		p.log.Debug("navigation redirected",
			zap.String("path", nav.Path),
			zap.String("guard.stage", decision.Stage),
			zap.String("guard.decision", decision.RedirectTo),
		)
	}
	return decision
}

// waitForState initializes the requester's auth store with a bounded
// wait. The underlying load keeps running past the budget and will serve
// the next navigation; only this navigation proceeds degraded.
func (p *Pipeline) waitForState(ctx context.Context, token string) authstate.AuthState {
	if token == "" {
		return authstate.AuthState{Status: authstate.StatusUnauthenticated}
	}

	store := p.auth.For(token)
	go store.Init(context.WithoutCancel(ctx))

	waitCtx, cancel := context.WithTimeout(ctx, waitBudget)
	defer cancel()
	if !store.Wait(waitCtx) {
		p.log.Warn("auth state still loading past wait budget, proceeding")
	}

	state := store.Snapshot()
	// Tokens that resolved to nothing do not get to keep a store; a
	// request spray of invented cookies would otherwise grow the manager
	// without bound.
	if state.Status == authstate.StatusUnauthenticated {
		p.auth.Forget(token, store)
	}
	return state
}

func (p *Pipeline) evaluate(ctx context.Context, state authstate.AuthState, nav Navigation) Decision {
	isAuthPage := p.authPages.Matches(nav.Path)

	// Stage 1: public bypass. Auth pages stay in the chain so the
	// reverse redirect can see them.
	if p.isPublic(nav.Path) && !isAuthPage {
		return Decision{Allow: true, Stage: "public_bypass"}
	}

	if !isAuthPage {
		// Stage 2: auth requirement.
		if !state.SignedIn() {
			return Decision{Stage: "auth", RedirectTo: p.loginRedirect(nav)}
		}

		// Stage 3: team requirement. super_admin operators legitimately
		// carry no team; anyone else without a membership is a data
		// integrity fault in the single-team model.
		if state.Role() != role.SuperAdmin && (!state.HasTeam() || !state.Role().Known()) {
			p.log.Error("authenticated user without team context",
				zap.String("path", nav.Path),
			)
			return Decision{Stage: "team", RedirectTo: withError(p.cfg.LoginPage, errAccountMisconfigured)}
		}

		impersonating := p.impersonating(ctx, state)

		// The stop action must stay reachable while impersonating even
		// though its prefix demands super_admin.
		if impersonating && nav.Path == p.routes.StopImpersonationPath {
			return Decision{Allow: true, Stage: "impersonation_stop"}
		}

		// Stage 4: role requirement.
		if rule, ok := matchRoleRule(p.roleRules, nav.Path); ok {
			if !state.Role().Satisfies(rule.role, rule.strict) {
				return Decision{Stage: "role", RedirectTo: withError(p.routes.RoleFallback, errInsufficientRole)}
			}
		}

		// Stage 5: impersonation restriction. Denied regardless of role;
		// the nominal role here is the target's, not the operator's.
		if impersonating {
			if prefixMatch(p.routes.AdminPrefixes, nav.Path) {
				return Decision{Stage: "impersonation", RedirectTo: withError(p.cfg.DashboardPage, errAdminBlocked)}
			}
			if prefixMatch(p.routes.DangerousPrefixes, nav.Path) {
				return Decision{Stage: "impersonation", RedirectTo: withError(p.cfg.DashboardPage, errDangerousBlocked)}
			}
		}

		return Decision{Allow: true, Stage: "role"}
	}

	// Stage 6: reverse redirect for auth pages.
	if state.SignedIn() {
		if target, ok := safeRedirectTarget(nav.RawQuery); ok {
			return Decision{Stage: "reverse_redirect", RedirectTo: target}
		}
		if state.HasTeam() {
			return Decision{Stage: "reverse_redirect", RedirectTo: p.cfg.DashboardPage}
		}
		return Decision{Stage: "reverse_redirect", RedirectTo: p.cfg.TeamPage}
	}
	return Decision{Allow: true, Stage: "public_bypass"}
}

// isPublic computes "not protected" under the configured mode. Stage
// ordering is identical in both modes; only this predicate differs.
func (p *Pipeline) isPublic(path string) bool {
	switch p.routes.Mode {
	case config.PublicByDefault:
		return !p.protected.Matches(path)
	default:
		return p.public.Matches(path)
	}
}

func (p *Pipeline) impersonating(ctx context.Context, state authstate.AuthState) bool {
	if state.Session == nil {
		return false
	}
	record, err := p.imp.ActiveFor(ctx, state.Session.UserID)
	if err != nil {
		p.log.Warn("impersonation lookup failed", zap.Error(err))
		return false
	}
	return record != nil
}

func (p *Pipeline) loginRedirect(nav Navigation) string {
	target := nav.Path
	if nav.RawQuery != "" {
		target += "?" + nav.RawQuery
	}
	q := url.Values{}
	q.Set("redirect", target)
	return p.cfg.LoginPage + "?" + q.Encode()
}

func withError(page, code string) string {
	q := url.Values{}
	q.Set("error", code)
	return page + "?" + q.Encode()
}

// safeRedirectTarget honors a same-origin redirect parameter: a rooted
// path that is not scheme-relative and carries no scheme of its own.
func safeRedirectTarget(rawQuery string) (string, bool) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", false
	}
	target := values.Get("redirect")
	if target == "" || target[0] != '/' {
		return "", false
	}
	if len(target) > 1 && target[1] == '/' {
		return "", false
	}
	return target, true
}
