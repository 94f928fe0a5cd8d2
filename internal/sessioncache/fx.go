package sessioncache

import (
	"github.com/smallbiznis/teamauth/internal/identity/event"
	"go.uber.org/fx"
)

var Module = fx.Module("sessioncache",
	fx.Provide(New),
	fx.Invoke(func(hub *event.Hub, cache *Cache) {
		hub.Subscribe(cache.ApplyEvent)
	}),
)
