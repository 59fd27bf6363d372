package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"com.aviebrantz.statistics/pkg/api"
	"com.aviebrantz.statistics/pkg/config"
	"com.aviebrantz.statistics/pkg/core/stats"
	"com.aviebrantz.statistics/pkg/core/store/historical"
	"com.aviebrantz.statistics/pkg/core/store/influx"
	"com.aviebrantz.statistics/pkg/ingestion"
	"com.aviebrantz.statistics/pkg/ingestion/ownership"
	"com.aviebrantz.statistics/pkg/ingestion/timeseries"
	"com.aviebrantz.statistics/pkg/metrics"
	"com.aviebrantz.statistics/pkg/util"
	"github.com/apex/log"
	"go.opencensus.io/stats/view"
	"gocloud.dev/pubsub"

	_ "gocloud.dev/docstore/memdocstore"
	_ "gocloud.dev/docstore/mongodocstore"
	_ "gocloud.dev/pubsub/mempubsub"
)

func openStore(ctx context.Context, cfg *config.PlatformConfig) (historical.Store, error) {
	switch cfg.StorageConfig.Type {
	case "docstore":
		return historical.OpenDocStore(ctx, cfg.StorageConfig.URL)
	case "influx":
		return influx.Open(cfg.InfluxSnapshot())
	default:
		return historical.OpenLocalStore(cfg.StorageConfig.URL)
	}
}

// openBus opens the topic before the subscription so in-memory subscriptions
// find it.
func openBus(ctx context.Context, cfg config.TopicConfig) (*pubsub.Topic, *pubsub.Subscription, error) {
	topic, err := pubsub.OpenTopic(ctx, cfg.Topic)
	if err != nil {
		return nil, nil, err
	}
	sub, err := pubsub.OpenSubscription(ctx, cfg.Subscription)
	if err != nil {
		topic.Shutdown(ctx)
		return nil, nil, err
	}
	return topic, sub, nil
}

type reloader struct {
	path     string
	current  *config.PlatformConfig
	registry *stats.Registry
	store    historical.Store
	server   *api.ApiServer
}

// reload applies the parts of a changed configuration that can change at
// runtime. A broken file leaves everything as it was.
func (r *reloader) reload() {
	next, err := config.LoadConfigFromFile(r.path)
	if err != nil {
		log.Errorf("keeping current config, reload failed: %v", err)
		return
	}
	if err := util.SetupLogging(next.LoggingConfig); err != nil {
		log.Errorf("logging config: %v", err)
	}
	providers, err := next.Providers()
	if err != nil {
		log.Errorf("keeping current providers: %v", err)
	} else if err := r.registry.Replace(providers); err != nil {
		log.Errorf("keeping current providers: %v", err)
	}
	if loc, err := next.Location(); err == nil {
		r.server.SetDefaultLocation(loc)
	}

	if next.StorageConfig.Type != r.current.StorageConfig.Type || next.StorageConfig.URL != r.current.StorageConfig.URL {
		log.Warnf("storage %s changed to %s, restart to apply", r.current.StorageConfig.Type, next.StorageConfig.Type)
	} else if s, ok := r.store.(*influx.Store); ok && next.InfluxSnapshot() != r.current.InfluxSnapshot() {
		if err := s.Reconfigure(next.InfluxSnapshot()); err != nil {
			log.Errorf("keeping current influx connection: %v", err)
			return
		}
	}
	r.current = next
	log.Infof("reloaded %s", r.path)
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path of the YAML configuration")
	flag.Parse()

	cfg, err := config.LoadConfigFromFile(*configPath)
	if err != nil {
		log.Fatalf("could not load config :%v", err)
	}
	if err := util.SetupLogging(cfg.LoggingConfig); err != nil {
		log.Fatalf("could not setup logging :%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("could not open %s store :%v", cfg.StorageConfig.Type, err)
	}
	defer store.Close()

	providers, err := cfg.Providers()
	if err != nil {
		log.Fatalf("invalid providers :%v", err)
	}
	registry, err := stats.NewRegistry(providers)
	if err != nil {
		log.Fatalf("invalid providers :%v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid timezone :%v", err)
	}
	assembler := stats.NewAssembler(store, cfg.StatisticsConfig.MaxParallelQueries)
	service := stats.NewService(registry, assembler)

	if cfg.MetricsConfig.IsEnabled() {
		views := append(stats.Views(), api.Views()...)
		views = append(views, ingestion.Views()...)
		exporter, err := metrics.StartMetricsExporter(cfg.MetricsConfig, views...)
		if err != nil {
			log.Fatalf("Failed to create the Prometheus stats exporter: %v", err)
		}
		defer exporter.Shutdown(context.Background())
		defer view.Unregister(views...)
	}

	messaging := cfg.MessagingConfig
	if !messaging.Impressions.Disabled {
		topic, sub, err := openBus(ctx, messaging.Impressions)
		if err != nil {
			log.Fatalf("could not open impressions bus :%v", err)
		}
		defer topic.Shutdown(context.Background())
		defer sub.Shutdown(context.Background())

		ingestor := timeseries.NewIngestor(sub, store, cfg.StatisticsConfig.Measurement)
		go func() {
			if err := ingestor.Start(ctx); err != nil {
				log.Errorf("impression ingestion stopped: %v", err)
			}
		}()
	}
	if !messaging.Ownership.Disabled {
		topic, sub, err := openBus(ctx, messaging.Ownership)
		if err != nil {
			log.Fatalf("could not open ownership bus :%v", err)
		}
		defer topic.Shutdown(context.Background())
		defer sub.Shutdown(context.Background())

		o := cfg.StatisticsConfig.Ownership
		consumer := ownership.NewConsumer(sub, store, ownership.Config{
			Measurements:  cfg.Measurements(),
			EpisodePath:   o.EpisodePath,
			SeriesPath:    o.SeriesPath,
			EpisodeColumn: o.EpisodeColumn,
			SeriesColumn:  o.SeriesColumn,
			MaxRetries:    o.MaxRetries,
			RetryInterval: o.RetryInterval,
		})
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Errorf("ownership consumer stopped: %v", err)
			}
		}()
	}

	tlsConfig, err := util.LoadTLSConfig(cfg.APIServerConfig.TLS)
	if err != nil {
		log.Fatalf("could not load tls config :%v", err)
	}
	apiServer := api.NewServer(service, cfg.APIServerConfig, loc)
	go func() {
		if err := apiServer.Start(tlsConfig); err != nil {
			log.Fatalf("api server failed :%v", err)
		}
	}()

	r := &reloader{
		path:     *configPath,
		current:  cfg,
		registry: registry,
		store:    store,
		server:   apiServer,
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	log.Info("Server Started")
	for sig := range signals {
		if sig == syscall.SIGHUP {
			r.reload()
			continue
		}
		break
	}

	cancel()
	if err := apiServer.Shutdown(); err != nil {
		log.Warnf("api shutdown: %v", err)
	}
	log.Info("Server Stopped")
}
