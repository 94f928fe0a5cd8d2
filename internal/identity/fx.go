package identity

import (
	"github.com/smallbiznis/teamauth/internal/identity/event"
	"github.com/smallbiznis/teamauth/internal/identity/repository"
	"github.com/smallbiznis/teamauth/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(repository.New),
	fx.Provide(event.NewHub),
	fx.Provide(service.New),
)
