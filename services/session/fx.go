package session

import (
	"go.uber.org/fx"
)

var Module = fx.Module("session.service",
	fx.Provide(NewService),
)
