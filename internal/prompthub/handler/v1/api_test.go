package v1

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompthub/prompthub/internal/prompthub/handler/middleware"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/store/sqlite"
	"github.com/prompthub/prompthub/pkg/utils/json"
)

const testAPIKey = "test-key"

type testAPI struct {
	engine *gin.Engine
	module *registry.Module
	db     *sqlite.DB
}

// newTestAPI boots the full stack (sqlite, registry module, auth, handlers)
// against a temp database, seeded with one user and one project.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &registry.Config{DB: db}
	module, err := cfg.Complete().New()
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, module.Users.Create(context.Background(), &entity.User{
		ID: "u-1", Email: "dev@example.com", Name: "Dev", Role: "editor",
		APIKey: testAPIKey, CreatedAt: now,
	}))
	require.NoError(t, sqlite.NewProjectStore(db).Create(context.Background(), &entity.Project{
		ID: "proj-1", Name: "Project One", Slug: "project-one",
		CreatedAt: now, UpdatedAt: now,
	}))

	engine := gin.New()
	promptHandler := NewPromptHandler(module.Prompts, 100)
	sceneHandler := NewSceneHandler(module.Scenes, module.Engine, 100)
	projectHandler := NewProjectHandler(module.Projects, module.Prompts, 100)
	sharedHandler := NewSharedHandler(module.Prompts, 100)

	apiV1 := engine.Group("/api/v1")
	apiV1.Use(middleware.BearerAuth(module.Users))
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
	return &testAPI{engine: engine, module: module, db: db}
}

type envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	List    []any          `json:"-"`
	Meta    *struct {
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
		Total    int64 `json:"total"`
	} `json:"meta"`
	Detail string `json:"detail"`
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf.Write(data)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)

	var env envelope
	// List payloads carry an array in data; re-decode into List then.
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		var listEnv struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    []any  `json:"data"`
			Meta    *struct {
				Page     int   `json:"page"`
				PageSize int   `json:"page_size"`
				Total    int64 `json:"total"`
			} `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listEnv), "body: %s", rec.Body.String())
		env.Code = listEnv.Code
		env.Message = listEnv.Message
		env.List = listEnv.Data
		env.Meta = listEnv.Meta
	}
	return rec, env
}

func (a *testAPI) createPrompt(t *testing.T, body map[string]any) string {
	t.Helper()
	rec, env := a.do(t, http.MethodPost, "/api/v1/prompts", testAPIKey, body)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	require.Equal(t, 0, env.Code)
	return env.Data["id"].(string)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodGet, "/api/v1/prompts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 40100, env.Code)

	rec, env = api.do(t, http.MethodGet, "/api/v1/prompts", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 40100, env.Code)
}

func TestPromptLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	id := api.createPrompt(t, map[string]any{
		"project_id":      "proj-1",
		"name":            "Greeting",
		"slug":            "greeting",
		"content":         "Hello {{ name }}",
		"template_engine": "simple",
		"variables": []map[string]any{
			{"name": "name", "type": "string", "required": true},
		},
	})

	rec, env := api.do(t, http.MethodGet, "/api/v1/prompts/"+id, testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "greeting", env.Data["slug"])
	assert.Equal(t, "1.0.0", env.Data["current_version"])

	rec, env = api.do(t, http.MethodPut, "/api/v1/prompts/"+id, testAPIKey,
		map[string]any{"content": "Hi {{ name }}"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi {{ name }}", env.Data["content"])

	rec, env = api.do(t, http.MethodPost, "/api/v1/prompts/"+id+"/publish", testAPIKey,
		map[string]any{"bump": "minor", "changelog": "friendlier greeting"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.1.0", env.Data["version"])

	rec, env = api.do(t, http.MethodPost, "/api/v1/prompts/"+id+"/render", testAPIKey,
		map[string]any{"variables": map[string]any{"name": "World"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi World", env.Data["content"])

	// The immutable 1.0.0 snapshot still renders the old content.
	rec, env = api.do(t, http.MethodPost, "/api/v1/prompts/"+id+"/render", testAPIKey,
		map[string]any{"version": "1.0.0", "variables": map[string]any{"name": "World"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World", env.Data["content"])

	rec, env = api.do(t, http.MethodDelete, "/api/v1/prompts/"+id, testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = api.do(t, http.MethodGet, "/api/v1/prompts/"+id, testAPIKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 40400, env.Code)
}

func TestPromptValidationEnvelope(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodPost, "/api/v1/prompts", testAPIKey, map[string]any{
		"project_id": "proj-1",
		"name":       "Bad",
		"slug":       "Not A Slug",
		"content":    "x",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 42200, env.Code)
	assert.Contains(t, env.Detail, "kebab-case")
}

func TestPromptListPagination(t *testing.T) {
	api := newTestAPI(t)
	for _, slug := range []string{"alpha", "bravo", "charlie"} {
		api.createPrompt(t, map[string]any{
			"project_id": "proj-1", "name": slug, "slug": slug, "content": "x",
			"template_engine": "none",
		})
	}

	rec, env := api.do(t, http.MethodGet,
		"/api/v1/prompts?project_id=proj-1&page=1&page_size=2&sort_by=slug", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 3, env.Meta.Total)
	assert.Equal(t, 2, env.Meta.PageSize)
	assert.Len(t, env.List, 2)
}

func TestSceneResolveOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.createPrompt(t, map[string]any{
		"project_id": "proj-1", "name": "Greet", "slug": "greet",
		"content": "Hello {{ name }}", "template_engine": "simple",
	})
	greetID := func() string {
		rec, env := api.do(t, http.MethodGet, "/api/v1/prompts?slug=greet&project_id=proj-1", testAPIKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, env.List, 1, "slug filter should match exactly one prompt")
		return env.List[0].(map[string]any)["id"].(string)
	}()
	byeID := api.createPrompt(t, map[string]any{
		"project_id": "proj-1", "name": "Bye", "slug": "bye",
		"content": "Bye {{ name }}", "template_engine": "simple",
	})

	rec, env := api.do(t, http.MethodPost, "/api/v1/scenes", testAPIKey, map[string]any{
		"project_id": "proj-1",
		"name":       "Greet Flow",
		"slug":       "greet-flow",
		"separator":  "\n",
		"pipeline": map[string]any{
			"steps": []map[string]any{
				{"id": "s1", "prompt_ref": map[string]any{"prompt_id": greetID}},
				{"id": "s2", "prompt_ref": map[string]any{"prompt_id": byeID}},
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	sceneID := env.Data["id"].(string)

	rec, env = api.do(t, http.MethodPost, "/api/v1/scenes/"+sceneID+"/resolve", testAPIKey,
		map[string]any{"variables": map[string]any{"name": "World"}})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, "Hello World\nBye World", env.Data["final_content"])
	assert.Equal(t, false, env.Data["cached"])

	rec, env = api.do(t, http.MethodGet, "/api/v1/scenes/"+sceneID+"/dependencies", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sceneID, env.Data["scene_id"])

	// A render failure inside a step surfaces the render error code.
	rec, env = api.do(t, http.MethodPost, "/api/v1/scenes/"+sceneID+"/resolve", testAPIKey,
		map[string]any{"variables": map[string]any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 42201, env.Code)
}

func TestSharedBrowseAndFork(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, sqlite.NewProjectStore(api.db).Create(context.Background(), &entity.Project{
		ID: "proj-2", Name: "Project Two", Slug: "project-two",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}))

	id := api.createPrompt(t, map[string]any{
		"project_id": "proj-1", "name": "Shared", "slug": "shared-prompt",
		"content": "shared", "template_engine": "none",
	})

	rec, env := api.do(t, http.MethodGet, "/api/v1/shared/prompts", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.List)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/prompts/"+id+"/share", testAPIKey, map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = api.do(t, http.MethodGet, "/api/v1/shared/prompts", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.List, 1)

	rec, env = api.do(t, http.MethodPost, "/api/v1/shared/prompts/"+id+"/fork", testAPIKey,
		map[string]any{"target_project_id": "proj-2"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, "proj-2", env.Data["project_id"])
	assert.Equal(t, "shared-prompt", env.Data["slug"])
}

func TestPromptRefsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	childID := api.createPrompt(t, map[string]any{
		"project_id": "proj-1", "name": "Child", "slug": "child",
		"content": "child", "template_engine": "none",
	})
	baseID := api.createPrompt(t, map[string]any{
		"project_id": "proj-1", "name": "Base", "slug": "base",
		"content": "base", "template_engine": "none",
	})

	rec, env := api.do(t, http.MethodPost, "/api/v1/prompts/"+childID+"/refs", testAPIKey,
		map[string]any{"target_prompt_id": baseID, "ref_type": "extends", "pinned_version": "1.0.0"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	refID := env.Data["id"].(string)
	assert.Equal(t, "1.0.0", env.Data["pinned_version"])

	// The reverse edge would close a cycle.
	rec, env = api.do(t, http.MethodPost, "/api/v1/prompts/"+baseID+"/refs", testAPIKey,
		map[string]any{"target_prompt_id": childID, "ref_type": "extends"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 40901, env.Code)

	rec, env = api.do(t, http.MethodGet, "/api/v1/prompts/"+childID+"/refs", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	outgoing := env.Data["outgoing"].([]any)
	require.Len(t, outgoing, 1)

	rec, _ = api.do(t, http.MethodDelete, "/api/v1/prompts/"+childID+"/refs/"+refID, testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = api.do(t, http.MethodGet, "/api/v1/prompts/"+childID+"/refs", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.Data["outgoing"])
}

func TestProjectEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodPost, "/api/v1/projects", testAPIKey, map[string]any{
		"name": "New Project", "slug": "new-project",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	projectID := env.Data["id"].(string)

	api.createPrompt(t, map[string]any{
		"project_id": projectID, "name": "P", "slug": "p", "content": "x",
		"template_engine": "none",
	})

	rec, env = api.do(t, http.MethodGet, "/api/v1/projects/"+projectID, testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, env.Data["prompt_count"])

	// A project still holding prompts cannot be deleted.
	rec, env = api.do(t, http.MethodDelete, "/api/v1/projects/"+projectID, testAPIKey, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 40900, env.Code)
}
