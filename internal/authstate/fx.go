package authstate

import (
	"context"

	"github.com/smallbiznis/teamauth/internal/identity/event"
	"go.uber.org/fx"
)

var Module = fx.Module("authstate",
	fx.Provide(NewManager),
	fx.Invoke(func(hub *event.Hub, manager *Manager) {
		hub.Subscribe(func(e event.Event) {
			manager.ApplyEvent(context.Background(), e)
		})
	}),
)
