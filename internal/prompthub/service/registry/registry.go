// Package registry assembles the prompt registry module: sqlite stores,
// domain services, the dependency resolver, and the scene engine.
package registry

import (
	"time"

	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/service"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/store/sqlite"
	"github.com/prompthub/prompthub/internal/prompthub/service/render"
)

// Config wires the module's external collaborators. Cache, Invalidator and
// Sink may be nil; the module falls back to no-op implementations.
type Config struct {
	DB          *sqlite.DB
	Cache       service.ResolveCache
	Invalidator service.Invalidator
	Sink        service.CallSink
	CacheTTL    time.Duration
}

// CompletedConfig is a Config with defaults filled in.
type CompletedConfig struct {
	*Config
}

// Complete fills in derivable fields.
func (c *Config) Complete() CompletedConfig {
	if c.Cache == nil {
		c.Cache = service.NoopCache{}
	}
	if c.Invalidator == nil {
		c.Invalidator = service.NoopInvalidator{}
	}
	if c.Sink == nil {
		c.Sink = service.NoopSink{}
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 300 * time.Second
	}
	return CompletedConfig{c}
}

// Module bundles the registry's services and repositories.
type Module struct {
	Prompts  *service.PromptService
	Scenes   *service.SceneService
	Projects *service.ProjectService
	Engine   *service.Engine
	Resolver *service.Resolver

	Users    repo.UserRepository
	CallLogs repo.CallLogRepository
}

// New builds the module.
func (c CompletedConfig) New() (*Module, error) {
	promptStore := sqlite.NewPromptStore(c.DB)
	sceneStore := sqlite.NewSceneStore(c.DB)
	refStore := sqlite.NewRefStore(c.DB)
	projectStore := sqlite.NewProjectStore(c.DB)
	callLogStore := sqlite.NewCallLogStore(c.DB)
	userStore := sqlite.NewUserStore(c.DB)

	renderer := render.New()
	resolver := service.NewResolver(promptStore, refStore)

	return &Module{
		Prompts: service.NewPromptService(
			promptStore, sceneStore, refStore, projectStore, renderer, c.Invalidator, c.Sink),
		Scenes: service.NewSceneService(
			sceneStore, promptStore, refStore, projectStore, resolver, c.Invalidator),
		Projects: service.NewProjectService(projectStore),
		Engine: service.NewEngine(
			sceneStore, resolver, renderer.Render, c.Cache, c.Sink, c.CacheTTL),
		Resolver: resolver,
		Users:    userStore,
		CallLogs: callLogStore,
	}, nil
}
