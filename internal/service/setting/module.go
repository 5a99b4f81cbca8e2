package setting

import "go.uber.org/fx"

// Module provides the setting service to Fx.
var Module = fx.Provide(NewService)
