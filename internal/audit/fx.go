package audit

import (
	"github.com/smallbiznis/teamauth/internal/audit/repository"
	"github.com/smallbiznis/teamauth/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
