// Package prompthub assembles and runs the API server.
package prompthub

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	genericapiserver "github.com/prompthub/prompthub/internal/pkg/server"
	"github.com/prompthub/prompthub/internal/prompthub/config"
	"github.com/prompthub/prompthub/internal/prompthub/handler/middleware"
	"github.com/prompthub/prompthub/internal/prompthub/service/cache"
	"github.com/prompthub/prompthub/internal/prompthub/service/calllog"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/service"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/store/sqlite"
	"github.com/prompthub/prompthub/pkg/logger"
)

type apiServer struct {
	genericAPIServer *genericapiserver.GenericAPIServer

	cfg      *config.Config
	db       *sqlite.DB
	rdb      *redis.Client
	sink     *calllog.Sink
	registry *registry.Module
}

type preparedAPIServer struct {
	*apiServer
}

func createAPIServer(cfg *config.Config) (*apiServer, error) {
	genericConfig := genericapiserver.NewConfig()
	genericConfig.Mode = cfg.GenericServerRunOptions.Mode
	genericConfig.BindAddress = cfg.GenericServerRunOptions.BindAddress
	genericConfig.BindPort = cfg.GenericServerRunOptions.BindPort
	genericConfig.Healthz = cfg.GenericServerRunOptions.Healthz
	genericConfig.Metrics = cfg.GenericServerRunOptions.Metrics

	genericServer, err := genericConfig.Complete().New()
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.SQLiteOptions.Path)
	if err != nil {
		return nil, err
	}
	logger.Infof("sqlite store opened at %s", cfg.SQLiteOptions.Path)

	var (
		rdb          *redis.Client
		resolveCache service.ResolveCache
		invalidator  service.Invalidator
	)
	if cfg.RedisOptions.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisOptions.Addr,
			Password: cfg.RedisOptions.Password,
			DB:       cfg.RedisOptions.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("redis unreachable at %s, resolve cache disabled: %v", cfg.RedisOptions.Addr, err)
			_ = rdb.Close()
			rdb = nil
		} else {
			c := cache.New(rdb)
			resolveCache = c
			invalidator = c
			logger.Infof("resolve cache connected to %s", cfg.RedisOptions.Addr)
		}
	}

	registryCfg := &registry.Config{
		DB:          db,
		Cache:       resolveCache,
		Invalidator: invalidator,
		CacheTTL:    time.Duration(cfg.CacheOptions.TTLSeconds) * time.Second,
	}
	completed := registryCfg.Complete()

	// The sink needs a store, which needs the module's db; build it between
	// the two wiring steps.
	sink := calllog.NewSink(sqlite.NewCallLogStore(db), cfg.CallLogOptions.QueueSize, cfg.CallLogOptions.MaxContent)
	completed.Sink = sink

	registryModule, err := completed.New()
	if err != nil {
		return nil, err
	}

	return &apiServer{
		genericAPIServer: genericServer,
		cfg:              cfg,
		db:               db,
		rdb:              rdb,
		sink:             sink,
		registry:         registryModule,
	}, nil
}

func (s *apiServer) PrepareRun() preparedAPIServer {
	s.genericAPIServer.Use(middleware.Timeout(
		time.Duration(s.cfg.APIOptions.RequestTimeoutSeconds) * time.Second))

	initRouter(s.genericAPIServer.Engine, &routerDeps{
		registry:    s.registry,
		maxPageSize: s.cfg.APIOptions.MaxPageSize,
	})
	return preparedAPIServer{s}
}

func (s preparedAPIServer) Run(stopCh <-chan struct{}) error {
	go func() {
		<-stopCh
		s.Close()
	}()
	return s.genericAPIServer.Run()
}

func (s *apiServer) Close() {
	s.genericAPIServer.Close()
	if s.sink != nil {
		s.sink.Close()
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
