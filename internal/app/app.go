package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/vendo/internal/cache"
	"github.com/Additional-Code/vendo/internal/config"
	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/logger"
	"github.com/Additional-Code/vendo/internal/messaging"
	"github.com/Additional-Code/vendo/internal/observability"
	repositorycard "github.com/Additional-Code/vendo/internal/repository/card"
	repositoryorder "github.com/Additional-Code/vendo/internal/repository/order"
	repositoryproduct "github.com/Additional-Code/vendo/internal/repository/product"
	repositoryreview "github.com/Additional-Code/vendo/internal/repository/review"
	repositorysetting "github.com/Additional-Code/vendo/internal/repository/setting"
	grpcserver "github.com/Additional-Code/vendo/internal/server/grpc"
	httpserver "github.com/Additional-Code/vendo/internal/server/http"
	servicefulfillment "github.com/Additional-Code/vendo/internal/service/fulfillment"
	serviceorder "github.com/Additional-Code/vendo/internal/service/order"
	serviceproduct "github.com/Additional-Code/vendo/internal/service/product"
	servicereview "github.com/Additional-Code/vendo/internal/service/review"
	servicesetting "github.com/Additional-Code/vendo/internal/service/setting"
	transporthttp "github.com/Additional-Code/vendo/internal/transport/http"
	"github.com/Additional-Code/vendo/internal/worker"
	workerfulfillment "github.com/Additional-Code/vendo/internal/worker/fulfillment"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryproduct.Module,
	repositorycard.Module,
	repositoryorder.Module,
	repositoryreview.Module,
	repositorysetting.Module,
	servicefulfillment.Module,
	serviceproduct.Module,
	serviceorder.Module,
	servicereview.Module,
	servicesetting.Module,
)

// HTTP wires the HTTP and gRPC transports on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerfulfillment.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
