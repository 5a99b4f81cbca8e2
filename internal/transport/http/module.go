package http

import (
	"go.uber.org/fx"

	admintransport "github.com/Additional-Code/vendo/internal/transport/http/admin"
	notifytransport "github.com/Additional-Code/vendo/internal/transport/http/notify"
	ordertransport "github.com/Additional-Code/vendo/internal/transport/http/order"
	producttransport "github.com/Additional-Code/vendo/internal/transport/http/product"
	reviewtransport "github.com/Additional-Code/vendo/internal/transport/http/review"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	notifytransport.Module,
	producttransport.Module,
	ordertransport.Module,
	reviewtransport.Module,
	admintransport.Module,
)
