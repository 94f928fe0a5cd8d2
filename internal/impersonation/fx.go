package impersonation

import (
	"github.com/smallbiznis/teamauth/internal/impersonation/repository"
	"github.com/smallbiznis/teamauth/internal/impersonation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("impersonation.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
