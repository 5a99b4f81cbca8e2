package card

import "go.uber.org/fx"

// Module provides the card repository to Fx.
var Module = fx.Provide(NewRepository)
