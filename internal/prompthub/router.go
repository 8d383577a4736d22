package prompthub

import (
	"github.com/gin-gonic/gin"

	"github.com/prompthub/prompthub/internal/prompthub/handler/middleware"
	v1 "github.com/prompthub/prompthub/internal/prompthub/handler/v1"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry"
)

// routerDeps holds the dependencies needed for route registration.
type routerDeps struct {
	registry    *registry.Module
	maxPageSize int
}

func initRouter(g *gin.Engine, deps *routerDeps) {
	installMiddleware(g)
	installController(g, deps)
}

func installMiddleware(g *gin.Engine) {
	g.Use(middleware.RequestID())
	g.Use(middleware.CORS())
}

func installController(g *gin.Engine, deps *routerDeps) {
	promptHandler := v1.NewPromptHandler(deps.registry.Prompts, deps.maxPageSize)
	sceneHandler := v1.NewSceneHandler(deps.registry.Scenes, deps.registry.Engine, deps.maxPageSize)
	projectHandler := v1.NewProjectHandler(deps.registry.Projects, deps.registry.Prompts, deps.maxPageSize)
	sharedHandler := v1.NewSharedHandler(deps.registry.Prompts, deps.maxPageSize)

	apiV1 := g.Group("/api/v1")
	apiV1.Use(middleware.BearerAuth(deps.registry.Users))
	{
		apiV1.POST("/prompts", promptHandler.Create)
		apiV1.GET("/prompts", promptHandler.List)
		apiV1.GET("/prompts/:id", promptHandler.Get)
		apiV1.PUT("/prompts/:id", promptHandler.Update)
		apiV1.DELETE("/prompts/:id", promptHandler.Delete)
		apiV1.GET("/prompts/:id/versions", promptHandler.ListVersions)
		apiV1.GET("/prompts/:id/versions/:version", promptHandler.GetVersion)
		apiV1.POST("/prompts/:id/publish", promptHandler.Publish)
		apiV1.POST("/prompts/:id/render", promptHandler.Render)
		apiV1.POST("/prompts/:id/share", promptHandler.Share)
		apiV1.GET("/prompts/:id/refs", promptHandler.Refs)
		apiV1.POST("/prompts/:id/refs", promptHandler.CreateRef)
		apiV1.DELETE("/prompts/:id/refs/:refid", promptHandler.DeleteRef)
		apiV1.GET("/prompts/:id/impact", promptHandler.Impact)

		apiV1.POST("/scenes", sceneHandler.Create)
		apiV1.GET("/scenes", sceneHandler.List)
		apiV1.GET("/scenes/:id", sceneHandler.Get)
		apiV1.PUT("/scenes/:id", sceneHandler.Update)
		apiV1.DELETE("/scenes/:id", sceneHandler.Delete)
		apiV1.POST("/scenes/:id/resolve", sceneHandler.Resolve)
		apiV1.GET("/scenes/:id/dependencies", sceneHandler.Dependencies)

		apiV1.POST("/projects", projectHandler.Create)
		apiV1.GET("/projects", projectHandler.List)
		apiV1.GET("/projects/:id", projectHandler.Get)
		apiV1.PUT("/projects/:id", projectHandler.Update)
		apiV1.DELETE("/projects/:id", projectHandler.Delete)
		apiV1.GET("/projects/:id/prompts", projectHandler.Prompts)

		apiV1.GET("/shared/prompts", sharedHandler.Browse)
		apiV1.POST("/shared/prompts/:id/fork", sharedHandler.Fork)
	}
}
