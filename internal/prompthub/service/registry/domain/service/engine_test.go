package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/render"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/pkg/errorx"
)

type engineFixture struct {
	prompts *memPromptRepo
	refs    *memRefRepo
	scenes  *memSceneRepo
	cache   *mapCache
	sink    *recordSink
	engine  *Engine
}

func newEngineFixture() *engineFixture {
	prompts := newMemPromptRepo()
	refs := newMemRefRepo()
	scenes := newMemSceneRepo(refs)
	cache := newMapCache()
	sink := &recordSink{}
	f := &engineFixture{
		prompts: prompts,
		refs:    refs,
		scenes:  scenes,
		cache:   cache,
		sink:    sink,
	}
	f.engine = NewEngine(scenes, NewResolver(prompts, refs), render.New().Render, cache, sink, time.Minute)
	return f
}

func (f *engineFixture) addScene(scene *entity.Scene) {
	f.scenes.scenes[scene.ID] = scene
}

var testCaller = Caller{UserID: "u-1", ProjectID: "proj-1", IP: "127.0.0.1"}

func TestResolveConcatAndCache(t *testing.T) {
	f := newEngineFixture()
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-greet", ProjectID: "proj-1", Slug: "greet",
		TemplateEngine: entity.EngineSimple, Content: "Hello {{ name }}",
	})
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-bye", ProjectID: "proj-1", Slug: "bye",
		TemplateEngine: entity.EngineSimple, Content: "Bye {{ name }}",
	})
	scene := sceneWith("proj-1",
		entity.PipelineStep{ID: "s1", PromptRef: entity.PromptReference{PromptID: "p-greet"}},
		entity.PipelineStep{ID: "s2", PromptRef: entity.PromptReference{PromptID: "p-bye"}},
	)
	scene.Separator = "\n---\n"
	f.addScene(scene)

	res, err := f.engine.Resolve(context.Background(), scene.ID, map[string]any{"name": "World"}, testCaller, 0)
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n---\nBye World", res.FinalContent)
	assert.False(t, res.Cached)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, res.Steps[0].TokenEstimate+res.Steps[1].TokenEstimate, res.TotalTokenEstimate)
	assert.Equal(t, 1, f.sink.count())
	assert.Equal(t, 1, f.cache.sets)

	// The second identical resolve is served from the cache and logs nothing.
	res2, err := f.engine.Resolve(context.Background(), scene.ID, map[string]any{"name": "World"}, testCaller, 0)
	require.NoError(t, err)
	assert.True(t, res2.Cached)
	assert.Equal(t, res.FinalContent, res2.FinalContent)
	assert.Equal(t, 1, f.sink.count())
	assert.Equal(t, 1, f.cache.sets)

	// Different variables miss the cache.
	res3, err := f.engine.Resolve(context.Background(), scene.ID, map[string]any{"name": "Gopher"}, testCaller, 0)
	require.NoError(t, err)
	assert.False(t, res3.Cached)
	assert.Equal(t, 2, f.cache.sets)
}

func TestResolveChainInjectsPriorOutput(t *testing.T) {
	f := newEngineFixture()
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-draft", ProjectID: "proj-1", Slug: "draft",
		TemplateEngine: entity.EngineSimple, Content: "Summary of {{ topic }}",
	})
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-refine", ProjectID: "proj-1", Slug: "refine",
		TemplateEngine: entity.EngineSimple, Content: "Refined: {{ prior_output }} [{{ draft_text }}]",
	})
	scene := sceneWith("proj-1",
		entity.PipelineStep{ID: "s1", PromptRef: entity.PromptReference{PromptID: "p-draft"}, OutputKey: "draft_text"},
		entity.PipelineStep{ID: "s2", PromptRef: entity.PromptReference{PromptID: "p-refine"}},
	)
	scene.MergeStrategy = entity.MergeChain
	f.addScene(scene)

	res, err := f.engine.Resolve(context.Background(), scene.ID, map[string]any{"topic": "caching"}, testCaller, 0)
	require.NoError(t, err)
	assert.Equal(t, "Refined: Summary of caching [Summary of caching]", res.FinalContent)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "Summary of caching", res.Steps[0].RenderedContent)
}

func TestResolveSelectBest(t *testing.T) {
	f := newEngineFixture()
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-low", ProjectID: "proj-1", Slug: "low",
		TemplateEngine: entity.EngineNone, Content: "Option A {{!score=2}}",
	})
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-high", ProjectID: "proj-1", Slug: "high",
		TemplateEngine: entity.EngineNone, Content: "Option B {{!score=5.5}}",
	})
	scene := sceneWith("proj-1",
		entity.PipelineStep{ID: "s1", PromptRef: entity.PromptReference{PromptID: "p-low"}},
		entity.PipelineStep{ID: "s2", PromptRef: entity.PromptReference{PromptID: "p-high"}},
	)
	scene.MergeStrategy = entity.MergeSelectBest
	f.addScene(scene)

	res, err := f.engine.Resolve(context.Background(), scene.ID, nil, testCaller, 0)
	require.NoError(t, err)
	assert.Equal(t, "Option B", res.FinalContent)
	assert.Empty(t, res.Warnings)
}

func TestResolveSelectBestWithoutMarkersFallsBack(t *testing.T) {
	f := newEngineFixture()
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-one", ProjectID: "proj-1", Slug: "one",
		TemplateEngine: entity.EngineNone, Content: "first",
	})
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-two", ProjectID: "proj-1", Slug: "two",
		TemplateEngine: entity.EngineNone, Content: "second",
	})
	scene := sceneWith("proj-1",
		entity.PipelineStep{ID: "s1", PromptRef: entity.PromptReference{PromptID: "p-one"}},
		entity.PipelineStep{ID: "s2", PromptRef: entity.PromptReference{PromptID: "p-two"}},
	)
	scene.MergeStrategy = entity.MergeSelectBest
	f.addScene(scene)

	res, err := f.engine.Resolve(context.Background(), scene.ID, nil, testCaller, 0)
	require.NoError(t, err)
	assert.Equal(t, "second", res.FinalContent)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "score marker")
}

func TestResolveVariablePrecedence(t *testing.T) {
	f := newEngineFixture()
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-layers", ProjectID: "proj-1", Slug: "layers",
		TemplateEngine: entity.EngineSimple,
		Content:        "{{ a }}/{{ b }}/{{ c }}/{{ d }}",
		Variables: []entity.VariableSpec{
			{Name: "d", Type: entity.VarString, Default: "spec-default"},
		},
	})
	f.refs.edges = append(f.refs.edges, &entity.PromptRef{
		ID:             "src->layers",
		SourceType:     entity.RefSourcePrompt,
		SourceID:       "p-src",
		TargetPromptID: "p-layers",
		RefType:        entity.RefIncludes,
		OverrideConfig: map[string]any{"b": "ref-override", "c": "ref-override"},
	})
	scene := sceneWith("proj-1", entity.PipelineStep{
		ID:        "s1",
		PromptRef: entity.PromptReference{PromptID: "p-layers"},
		Variables: map[string]any{"a": "step-static", "b": "step-static", "c": "step-static"},
	})
	f.addScene(scene)

	res, err := f.engine.Resolve(context.Background(), scene.ID, map[string]any{"c": "caller"}, testCaller, 0)
	require.NoError(t, err)
	assert.Equal(t, "step-static/ref-override/caller/spec-default", res.FinalContent)
}

func TestResolveConditionSkipsStep(t *testing.T) {
	f := newEngineFixture()
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-always", ProjectID: "proj-1", Slug: "always",
		TemplateEngine: entity.EngineNone, Content: "base",
	})
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-expert", ProjectID: "proj-1", Slug: "expert",
		TemplateEngine: entity.EngineNone, Content: "expert extras",
	})
	scene := sceneWith("proj-1",
		entity.PipelineStep{ID: "s1", PromptRef: entity.PromptReference{PromptID: "p-always"}},
		entity.PipelineStep{
			ID:        "s2",
			PromptRef: entity.PromptReference{PromptID: "p-expert"},
			Condition: &entity.StepCondition{Variable: "audience", Operator: entity.OpEq, Value: "expert"},
		},
	)
	f.addScene(scene)

	res, err := f.engine.Resolve(context.Background(), scene.ID, map[string]any{"audience": "novice"}, testCaller, 0)
	require.NoError(t, err)
	assert.Equal(t, "base", res.FinalContent)
	require.Len(t, res.Steps, 2)
	assert.True(t, res.Steps[1].Skipped)
	assert.Equal(t, "condition false", res.Steps[1].SkipReason)

	res, err = f.engine.Resolve(context.Background(), scene.ID, map[string]any{"audience": "expert"}, testCaller, 0)
	require.NoError(t, err)
	assert.Equal(t, "base\n\nexpert extras", res.FinalContent)
}

func TestResolveRenderErrorEmitsCallLog(t *testing.T) {
	f := newEngineFixture()
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-broken", ProjectID: "proj-1", Slug: "broken",
		TemplateEngine: entity.EngineSimple, Content: "{{ missing }}",
	})
	scene := sceneWith("proj-1", entity.PipelineStep{ID: "s1", PromptRef: entity.PromptReference{PromptID: "p-broken"}})
	f.addScene(scene)

	_, err := f.engine.Resolve(context.Background(), scene.ID, nil, testCaller, 0)
	require.Error(t, err)
	assert.True(t, errorx.IsCode(err, code.ErrTemplateRender))
	assert.Contains(t, err.Error(), `step "s1"`)

	require.Equal(t, 1, f.sink.count())
	assert.Equal(t, scene.ID, f.sink.last().SceneID)
	assert.Empty(t, f.sink.last().RenderedContent)
}

func TestResolvePlanFailureEmitsNoCallLog(t *testing.T) {
	f := newEngineFixture()
	scene := sceneWith("proj-1", entity.PipelineStep{ID: "s1", PromptRef: entity.PromptReference{PromptID: "p-ghost"}})
	f.addScene(scene)

	_, err := f.engine.Resolve(context.Background(), scene.ID, nil, testCaller, 0)
	require.Error(t, err)
	assert.True(t, errorx.IsCode(err, code.ErrNotFound))
	assert.Equal(t, 0, f.sink.count())
}

func TestResolveDeadlineAbortsWithoutCallLog(t *testing.T) {
	f := newEngineFixture()
	addPrompt(f.prompts, &entity.Prompt{
		ID: "p-slow", ProjectID: "proj-1", Slug: "slow",
		TemplateEngine: entity.EngineNone, Content: "slow",
	})
	scene := sceneWith("proj-1", entity.PipelineStep{ID: "s1", PromptRef: entity.PromptReference{PromptID: "p-slow"}})
	f.addScene(scene)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Resolve(ctx, scene.ID, nil, testCaller, 0)
	require.Error(t, err)
	assert.True(t, errorx.IsCode(err, code.ErrDeadlineExceeded))
	assert.Equal(t, 0, f.sink.count())
}

func TestFingerprint(t *testing.T) {
	vars := map[string]any{"name": "World", "tone": "formal"}
	plan := []VersionPin{{PromptID: "p-a", Version: "1.0.0"}}

	fp1, err := Fingerprint("scene-1", vars, "proj-1", plan)
	require.NoError(t, err)
	fp2, err := Fingerprint("scene-1", map[string]any{"tone": "formal", "name": "World"}, "proj-1", plan)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2, "fingerprint must be stable under map iteration order")

	fp3, err := Fingerprint("scene-1", vars, "proj-1", []VersionPin{{PromptID: "p-a", Version: "1.0.1"}})
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3, "a version change must change the fingerprint")

	fp4, err := Fingerprint("scene-1", vars, "proj-2", plan)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp4, "the caller project is part of the key")
}
