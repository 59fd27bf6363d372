package api

import (
	"crypto/tls"
	"strconv"
	"sync/atomic"
	"time"

	"com.aviebrantz.statistics/pkg/config"
	"com.aviebrantz.statistics/pkg/core/stats"
	"github.com/apex/log"
	"github.com/gofiber/fiber"
)

type ApiServer struct {
	service  *stats.Service
	config   config.APIServerConfig
	location atomic.Value
	app      *fiber.App
	logger   *log.Entry
}

func NewServer(service *stats.Service, config config.APIServerConfig, location *time.Location) *ApiServer {
	as := &ApiServer{
		service: service,
		config:  config,
		logger:  log.WithField("module", "api"),
	}
	as.SetDefaultLocation(location)
	as.app = as.routes()
	return as
}

func (as *ApiServer) routes() *fiber.App {
	app := fiber.New(&fiber.Settings{
		DisableStartupMessage: true,
	})

	api := app.Group(as.config.Prefix)
	api.Get("/providers", as.listProviders)
	api.Get("/providers/:providerID/:id", as.getProviderStatistic)
	api.Get("/views/:resourceType/:id", as.getViews)
	api.Get("/:resourceType/:kind/:id", as.getStatistic)

	return app
}

// SetDefaultLocation sets the timezone used when a request names none.
func (as *ApiServer) SetDefaultLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	as.location.Store(loc)
}

func (as *ApiServer) defaultLocation() *time.Location {
	return as.location.Load().(*time.Location)
}

// Start listens until Shutdown. tlsConfig may be nil.
func (as *ApiServer) Start(tlsConfig *tls.Config) error {
	addr := ":" + strconv.Itoa(as.config.Port)
	as.logger.Infof("listening on %s%s", addr, as.config.Prefix)
	if tlsConfig != nil {
		return as.app.Listen(addr, tlsConfig)
	}
	return as.app.Listen(addr)
}

func (as *ApiServer) Shutdown() error {
	return as.app.Shutdown()
}
