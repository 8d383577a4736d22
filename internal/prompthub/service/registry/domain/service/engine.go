package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/errorx"
	"github.com/prompthub/prompthub/pkg/logger"
	"github.com/prompthub/prompthub/pkg/utils/json"
)

// priorOutputVar is the reserved variable the chain strategy injects; it
// overrides any caller-supplied value of the same name.
const priorOutputVar = "prior_output"

// ResolveCache stores rendered resolve results keyed by fingerprint. Get
// returns (nil, nil) on a miss. Do collapses concurrent computations of the
// same fingerprint.
type ResolveCache interface {
	Get(ctx context.Context, fingerprint string) ([]byte, error)
	Set(ctx context.Context, fingerprint string, value []byte, ttl time.Duration, promptIDs []string, sceneID string) error
	Do(fingerprint string, fn func() (any, error)) (any, error)
}

// NoopCache satisfies ResolveCache when no cache is wired; every lookup
// misses and Do runs the computation directly.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (NoopCache) Set(context.Context, string, []byte, time.Duration, []string, string) error {
	return nil
}
func (NoopCache) Do(_ string, fn func() (any, error)) (any, error) { return fn() }

// StepResult is one step's outcome inside a SceneResolveResult.
type StepResult struct {
	StepID          string `json:"step_id"`
	PromptID        string `json:"prompt_id"`
	PromptSlug      string `json:"prompt_slug"`
	Version         string `json:"version"`
	RenderedContent string `json:"rendered_content,omitempty"`
	TokenEstimate   int    `json:"token_estimate"`
	Skipped         bool   `json:"skipped"`
	SkipReason      string `json:"skip_reason,omitempty"`
}

// SceneResolveResult is the payload of POST /scenes/{id}/resolve.
type SceneResolveResult struct {
	SceneID            string       `json:"scene_id"`
	FinalContent       string       `json:"final_content"`
	Steps              []StepResult `json:"steps"`
	TotalTokenEstimate int          `json:"total_token_estimate"`
	Warnings           []string     `json:"warnings,omitempty"`
	Cached             bool         `json:"cached"`
}

// Engine composes scenes: plan, cache lookup, per-step render, merge, and
// the fire-and-forget call log.
type Engine struct {
	scenes     repo.SceneRepository
	resolver   *Resolver
	renderer   RendererFunc
	cache      ResolveCache
	sink       CallSink
	defaultTTL time.Duration
}

// RendererFunc renders one version's content with the merged variables.
type RendererFunc func(engine entity.TemplateEngine, content string, specs []entity.VariableSpec, vars map[string]any) (string, error)

// NewEngine wires an Engine. TTL <= 0 falls back to 300 seconds.
func NewEngine(
	scenes repo.SceneRepository,
	resolver *Resolver,
	renderer RendererFunc,
	cache ResolveCache,
	sink CallSink,
	defaultTTL time.Duration,
) *Engine {
	if cache == nil {
		cache = NoopCache{}
	}
	if sink == nil {
		sink = NoopSink{}
	}
	if defaultTTL <= 0 {
		defaultTTL = 300 * time.Second
	}
	return &Engine{
		scenes:     scenes,
		resolver:   resolver,
		renderer:   renderer,
		cache:      cache,
		sink:       sink,
		defaultTTL: defaultTTL,
	}
}

// fingerprintPayload fully determines a resolve's output. The plan-version
// tuple makes latest-bound resolves miss the cache after any upstream
// publish.
type fingerprintPayload struct {
	SceneID         string         `json:"scene_id"`
	Variables       map[string]any `json:"variables"`
	CallerProjectID string         `json:"caller_project_id"`
	Plan            []VersionPin   `json:"plan"`
}

// Fingerprint hashes the canonical JSON of the payload.
func Fingerprint(sceneID string, vars map[string]any, callerProjectID string, plan []VersionPin) (string, error) {
	data, err := json.MarshalCanonical(fingerprintPayload{
		SceneID:         sceneID,
		Variables:       vars,
		CallerProjectID: callerProjectID,
		Plan:            plan,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Resolve expands a scene into its final assembled content. Plan-phase
// failures (missing prompt or version, permission, cycle) produce no call
// log; render failures and successes do.
func (e *Engine) Resolve(ctx context.Context, sceneID string, vars map[string]any, caller Caller, ttl time.Duration) (*SceneResolveResult, error) {
	scene, err := e.scenes.Get(ctx, sceneID)
	if err != nil {
		return nil, storeErr(err, "scene", sceneID)
	}
	plan, err := e.resolver.Plan(ctx, scene)
	if err != nil {
		return nil, err
	}

	fp, err := Fingerprint(sceneID, vars, caller.ProjectID, plan.VersionTuple)
	if err != nil {
		return nil, errorx.WrapC(err, code.ErrInternal, "fingerprint resolve inputs")
	}

	if data, cerr := e.cache.Get(ctx, fp); cerr != nil {
		logger.WithFields(map[string]any{"scene_id": sceneID, "err": cerr.Error()}).
			Warn("resolve cache read failed, computing")
	} else if data != nil {
		var res SceneResolveResult
		if uerr := json.Unmarshal(data, &res); uerr == nil {
			res.Cached = true
			return &res, nil
		}
	}

	if ttl <= 0 {
		ttl = e.defaultTTL
	}
	v, err := e.cache.Do(fp, func() (any, error) {
		res, err := e.compute(ctx, scene, plan, vars, caller)
		if err != nil {
			return nil, err
		}
		if data, merr := json.Marshal(res); merr == nil {
			if serr := e.cache.Set(ctx, fp, data, ttl, plan.PromptIDs(), sceneID); serr != nil {
				logger.WithFields(map[string]any{"scene_id": sceneID, "err": serr.Error()}).
					Warn("resolve cache write failed")
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SceneResolveResult), nil
}

func (e *Engine) compute(ctx context.Context, scene *entity.Scene, plan *Plan, callerVars map[string]any, caller Caller) (*SceneResolveResult, error) {
	start := time.Now()
	result := &SceneResolveResult{SceneID: scene.ID}

	var (
		outputs     []string
		priorOutput string
		havePrior   bool
		runtimeVars = make(map[string]any)
	)
	for _, step := range plan.Steps {
		if step.Hidden {
			continue
		}
		if ctx.Err() != nil {
			// Abandoned requests emit no call log.
			return nil, errorx.WithCode(code.ErrDeadlineExceeded,
				"resolve of scene %q abandoned at step %q", scene.ID, step.StepID)
		}

		merged := mergeStepVars(step, callerVars, runtimeVars)
		if scene.MergeStrategy == entity.MergeChain && havePrior {
			merged[priorOutputVar] = priorOutput
		}

		if step.Condition != nil {
			scope := withDefaults(merged, step.Version.Variables)
			ok, err := evalCondition(step.Condition, scope)
			if err != nil {
				return nil, err
			}
			if !ok {
				result.Steps = append(result.Steps, StepResult{
					StepID:     step.StepID,
					PromptID:   step.Prompt.ID,
					PromptSlug: step.Prompt.Slug,
					Version:    step.Version.Version,
					Skipped:    true,
					SkipReason: "condition false",
				})
				continue
			}
		}

		content, err := e.renderer(step.Prompt.TemplateEngine, step.Version.Content, step.Version.Variables, merged)
		if err != nil {
			e.logCall(scene, caller, callerVars, "", 0, start)
			return nil, errorx.WrapC(err, code.ErrTemplateRender, "step %q", step.StepID)
		}

		stepResult := StepResult{
			StepID:          step.StepID,
			PromptID:        step.Prompt.ID,
			PromptSlug:      step.Prompt.Slug,
			Version:         step.Version.Version,
			RenderedContent: content,
			TokenEstimate:   tokenEstimate(content),
		}
		result.Steps = append(result.Steps, stepResult)
		result.TotalTokenEstimate += stepResult.TokenEstimate
		outputs = append(outputs, content)
		priorOutput = content
		havePrior = true
		if step.OutputKey != "" {
			runtimeVars[step.OutputKey] = content
		}
	}

	final, warnings := mergeOutputs(scene, outputs)
	result.FinalContent = final
	result.Warnings = warnings

	e.logCall(scene, caller, callerVars, final, result.TotalTokenEstimate, start)
	return result, nil
}

// mergeStepVars applies the precedence ladder below defaults: step static,
// then ref override, then caller input, then runtime step outputs. Defaults
// are filled by the renderer as the lowest layer.
func mergeStepVars(step *ResolvedStep, callerVars, runtimeVars map[string]any) map[string]any {
	merged := make(map[string]any, len(step.Static)+len(step.Override)+len(callerVars))
	for k, v := range step.Static {
		merged[k] = v
	}
	for k, v := range step.Override {
		merged[k] = v
	}
	for k, v := range callerVars {
		merged[k] = v
	}
	for k, v := range runtimeVars {
		merged[k] = v
	}
	return merged
}

func withDefaults(vars map[string]any, specs []entity.VariableSpec) map[string]any {
	scope := make(map[string]any, len(vars)+len(specs))
	for k, v := range vars {
		scope[k] = v
	}
	for _, spec := range specs {
		if _, ok := scope[spec.Name]; !ok && spec.Default != nil {
			scope[spec.Name] = spec.Default
		}
	}
	return scope
}

// scoreMarker is the select_best metadata comment a step emits to rank its
// own output.
var scoreMarker = regexp.MustCompile(`\{\{!score=(-?[0-9]+(?:\.[0-9]+)?)\}\}`)

func mergeOutputs(scene *entity.Scene, outputs []string) (string, []string) {
	switch scene.MergeStrategy {
	case entity.MergeChain:
		if len(outputs) == 0 {
			return "", nil
		}
		return outputs[len(outputs)-1], nil
	case entity.MergeSelectBest:
		return selectBest(outputs)
	default:
		return strings.Join(outputs, scene.Separator), nil
	}
}

func selectBest(outputs []string) (string, []string) {
	if len(outputs) == 0 {
		return "", nil
	}
	bestIdx := -1
	bestScore := 0.0
	stripped := make([]string, len(outputs))
	for i, out := range outputs {
		m := scoreMarker.FindStringSubmatch(out)
		stripped[i] = strings.TrimSpace(scoreMarker.ReplaceAllString(out, ""))
		if m == nil {
			continue
		}
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if bestIdx == -1 || score > bestScore {
			bestIdx = i
			bestScore = score
		}
	}
	if bestIdx == -1 {
		return stripped[len(stripped)-1],
			[]string{"select_best: no step emitted a score marker; falling back to the last step's output"}
	}
	return stripped[bestIdx], nil
}

func (e *Engine) logCall(scene *entity.Scene, caller Caller, vars map[string]any, final string, tokens int, start time.Time) {
	e.sink.Enqueue(&entity.CallLog{
		ID:              uuid.NewString(),
		SceneID:         scene.ID,
		CallerID:        caller.UserID,
		CallerIP:        caller.IP,
		InputVariables:  vars,
		RenderedContent: final,
		TokenCount:      tokens,
		ElapsedMS:       time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	})
}
