package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/audit"
	"github.com/smallbiznis/teamauth/internal/authstate"
	"github.com/smallbiznis/teamauth/internal/clock"
	"github.com/smallbiznis/teamauth/internal/config"
	"github.com/smallbiznis/teamauth/internal/guard"
	"github.com/smallbiznis/teamauth/internal/identity"
	"github.com/smallbiznis/teamauth/internal/impersonation"
	"github.com/smallbiznis/teamauth/internal/migration"
	"github.com/smallbiznis/teamauth/internal/observability"
	"github.com/smallbiznis/teamauth/internal/profile"
	"github.com/smallbiznis/teamauth/internal/ratelimit"
	"github.com/smallbiznis/teamauth/internal/server"
	"github.com/smallbiznis/teamauth/internal/sessioncache"
	"github.com/smallbiznis/teamauth/internal/team"
	"github.com/smallbiznis/teamauth/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,

		identity.Module,
		profile.Module,
		team.Module,
		sessioncache.Module,
		authstate.Module,
		guard.Module,
		ratelimit.Module,
		impersonation.Module,
		audit.Module,

		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
