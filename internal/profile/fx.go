package profile

import (
	"github.com/smallbiznis/teamauth/internal/profile/repository"
	"github.com/smallbiznis/teamauth/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
