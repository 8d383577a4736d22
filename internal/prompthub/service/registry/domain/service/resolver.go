package service

import (
	"context"
	"sort"
	"strings"

	"github.com/prompthub/prompthub/internal/prompthub/code"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/entity"
	"github.com/prompthub/prompthub/internal/prompthub/service/registry/domain/repo"
	"github.com/prompthub/prompthub/pkg/errorx"
)

// ResolvedStep is one node of a resolve plan in topological order. Hidden
// nodes are upstream prerequisites pulled in through the reference index;
// they pin versions and order the plan but are never rendered.
type ResolvedStep struct {
	StepID    string
	StepIndex int
	Hidden    bool
	Prompt    *entity.Prompt
	Version   *entity.Version
	Static    map[string]any
	Override  map[string]any
	Condition *entity.StepCondition
	OutputKey string
}

// VersionPin is one (prompt, concrete version) element of the plan-version
// tuple.
type VersionPin struct {
	PromptID string `json:"prompt_id"`
	Version  string `json:"version"`
}

// Plan is a fully resolved scene: ordered steps plus the version tuple that
// keys the resolve cache.
type Plan struct {
	Steps        []*ResolvedStep
	VersionTuple []VersionPin
}

// PromptIDs returns the distinct prompt ids the plan visits.
func (p *Plan) PromptIDs() []string {
	seen := make(map[string]struct{}, len(p.Steps))
	ids := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		if _, ok := seen[step.Prompt.ID]; ok {
			continue
		}
		seen[step.Prompt.ID] = struct{}{}
		ids = append(ids, step.Prompt.ID)
	}
	return ids
}

// Resolver expands a scene into a resolve plan: concrete versions per step,
// hidden prerequisite nodes from the reference index, cycle detection, and a
// stable topological order.
type Resolver struct {
	prompts repo.PromptRepository
	refs    repo.RefRepository
}

// NewResolver wires a Resolver.
func NewResolver(prompts repo.PromptRepository, refs repo.RefRepository) *Resolver {
	return &Resolver{prompts: prompts, refs: refs}
}

// graphState is the per-resolution working set: loaded prompts, the
// prompt-to-prompt adjacency, the version pin per edge target, and the
// override edges per target.
type graphState struct {
	prompts   map[string]*entity.Prompt
	outEdges  map[string][]*entity.PromptRef
	pins      map[string]string
	overrides map[string]map[string]any
}

// Plan resolves the scene. Prompt loads are batched: one query per frontier
// of distinct unseen prompt ids.
func (r *Resolver) Plan(ctx context.Context, scene *entity.Scene) (*Plan, error) {
	state, err := r.expand(ctx, scene)
	if err != nil {
		return nil, err
	}

	// Cross-project gate runs over every visited node before any version
	// lookup or rendering.
	for _, p := range state.prompts {
		if p.ProjectID != scene.ProjectID && !p.IsShared {
			return nil, errorx.WithCode(code.ErrPermissionDenied,
				"prompt %q belongs to another project and is not shared", p.ID)
		}
	}

	if err := r.detectCycles(scene, state); err != nil {
		return nil, err
	}
	return r.order(ctx, scene, state)
}

// expand loads every prompt reachable from the pipeline through the
// reference index, layer by layer.
func (r *Resolver) expand(ctx context.Context, scene *entity.Scene) (*graphState, error) {
	state := &graphState{
		prompts:   make(map[string]*entity.Prompt),
		outEdges:  make(map[string][]*entity.PromptRef),
		pins:      make(map[string]string),
		overrides: make(map[string]map[string]any),
	}

	frontier := scene.Pipeline.PromptIDs()
	stepPrompts := frontier
	for len(frontier) > 0 {
		loaded, err := r.prompts.GetByIDs(ctx, frontier)
		if err != nil {
			return nil, errorx.WrapC(err, code.ErrInternal, "load prompts")
		}
		for _, id := range frontier {
			p, ok := loaded[id]
			if !ok {
				return nil, errorx.WithCode(code.ErrNotFound, "prompt %q not found", id)
			}
			state.prompts[id] = p
		}

		var next []string
		for _, id := range frontier {
			edges, err := r.refs.OutEdges(ctx, id)
			if err != nil {
				return nil, errorx.WrapC(err, code.ErrInternal, "read reference index")
			}
			state.outEdges[id] = edges
			for _, edge := range edges {
				// Record the pin when the edge is expanded, so hidden nodes
				// resolve the same version no matter which edge reached them
				// first. Two edges pinning different versions of one target
				// is a contradiction, not a tie to break.
				if edge.PinnedVersion != "" {
					if prev, pinned := state.pins[edge.TargetPromptID]; pinned && prev != edge.PinnedVersion {
						return nil, errorx.WithCode(code.ErrValidation,
							"conflicting version pins for prompt %q: %s vs %s",
							edge.TargetPromptID, prev, edge.PinnedVersion)
					}
					state.pins[edge.TargetPromptID] = edge.PinnedVersion
				}
				if _, seen := state.prompts[edge.TargetPromptID]; seen {
					continue
				}
				if containsString(next, edge.TargetPromptID) {
					continue
				}
				next = append(next, edge.TargetPromptID)
			}
		}
		frontier = next
	}

	// Ref-level overrides: prompt-sourced in-edges bind variables into the
	// target, oldest first so later edges win.
	for _, id := range stepPrompts {
		in, err := r.refs.InEdges(ctx, id)
		if err != nil {
			return nil, errorx.WrapC(err, code.ErrInternal, "read reference index")
		}
		for _, edge := range in {
			if edge.SourceType != entity.RefSourcePrompt || len(edge.OverrideConfig) == 0 {
				continue
			}
			if state.overrides[id] == nil {
				state.overrides[id] = make(map[string]any)
			}
			for k, v := range edge.OverrideConfig {
				state.overrides[id][k] = v
			}
		}
	}
	return state, nil
}

// detectCycles runs a DFS with a visiting set over the prompt-to-prompt
// graph; re-entering a visiting node is a cycle, reported with its path.
func (r *Resolver) detectCycles(scene *entity.Scene, state *graphState) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	marks := make(map[string]int, len(state.prompts))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch marks[id] {
		case done:
			return nil
		case visiting:
			cycle := append(append([]string{}, path...), id)
			start := 0
			for i, n := range cycle {
				if n == id {
					start = i
					break
				}
			}
			return errorx.WithCode(code.ErrCircularDependency,
				"circular dependency: %s", strings.Join(cycle[start:], " -> "))
		}
		marks[id] = visiting
		path = append(path, id)
		for _, edge := range state.outEdges[id] {
			if err := visit(edge.TargetPromptID); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		marks[id] = done
		return nil
	}

	for _, id := range scene.Pipeline.PromptIDs() {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// planNode is a Kahn work item: a pipeline step or a hidden prerequisite.
type planNode struct {
	key       string
	stepIndex int
	promptID  string
	step      *entity.PipelineStep
}

// order produces the plan in a stable topological order: Kahn's algorithm
// with ties broken by (step index, prompt id).
func (r *Resolver) order(ctx context.Context, scene *entity.Scene, state *graphState) (*Plan, error) {
	nodes := make(map[string]*planNode)
	indegree := make(map[string]int)
	dependents := make(map[string][]string)

	hiddenKey := func(promptID string) string { return "prompt:" + promptID }

	// Hidden nodes inherit the smallest step index that reaches them so the
	// tie-break stays anchored to pipeline order.
	var addHidden func(promptID string, stepIndex int)
	addHidden = func(promptID string, stepIndex int) {
		key := hiddenKey(promptID)
		if n, ok := nodes[key]; ok {
			if stepIndex < n.stepIndex {
				n.stepIndex = stepIndex
			}
			return
		}
		nodes[key] = &planNode{key: key, stepIndex: stepIndex, promptID: promptID}
		for _, edge := range state.outEdges[promptID] {
			addHidden(edge.TargetPromptID, stepIndex)
			upstream := hiddenKey(edge.TargetPromptID)
			dependents[upstream] = append(dependents[upstream], key)
			indegree[key]++
		}
	}

	for i := range scene.Pipeline.Steps {
		step := &scene.Pipeline.Steps[i]
		key := "step:" + step.ID
		nodes[key] = &planNode{key: key, stepIndex: i, promptID: step.PromptRef.PromptID, step: step}
		for _, edge := range state.outEdges[step.PromptRef.PromptID] {
			addHidden(edge.TargetPromptID, i)
			upstream := hiddenKey(edge.TargetPromptID)
			dependents[upstream] = append(dependents[upstream], key)
			indegree[key]++
		}
	}

	var ready []*planNode
	for _, n := range nodes {
		if indegree[n.key] == 0 {
			ready = append(ready, n)
		}
	}
	sortReady := func() {
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].stepIndex != ready[j].stepIndex {
				return ready[i].stepIndex < ready[j].stepIndex
			}
			return ready[i].promptID < ready[j].promptID
		})
	}

	versions := make(map[string]*entity.Version)
	resolveVersion := func(promptID, label string) (*entity.Version, error) {
		p := state.prompts[promptID]
		if label == "" || label == entity.VersionLatest {
			label = p.CurrentVersion
		}
		if v, ok := versions[promptID+"@"+label]; ok {
			return v, nil
		}
		v, err := r.prompts.GetVersion(ctx, promptID, label)
		if err != nil {
			return nil, storeErr(err, "version", promptID+"@"+label)
		}
		versions[promptID+"@"+label] = v
		return v, nil
	}

	plan := &Plan{}
	seenPins := make(map[string]struct{})
	for len(ready) > 0 {
		sortReady()
		n := ready[0]
		ready = ready[1:]

		var (
			resolved *ResolvedStep
			version  *entity.Version
			err      error
		)
		if n.step != nil {
			version, err = resolveVersion(n.promptID, n.step.PromptRef.Version)
			if err != nil {
				return nil, err
			}
			resolved = &ResolvedStep{
				StepID:    n.step.ID,
				StepIndex: n.stepIndex,
				Prompt:    state.prompts[n.promptID],
				Version:   version,
				Static:    n.step.Variables,
				Override:  state.overrides[n.promptID],
				Condition: n.step.Condition,
				OutputKey: n.step.OutputKey,
			}
		} else {
			version, err = resolveVersion(n.promptID, state.pins[n.promptID])
			if err != nil {
				return nil, err
			}
			resolved = &ResolvedStep{
				StepIndex: n.stepIndex,
				Hidden:    true,
				Prompt:    state.prompts[n.promptID],
				Version:   version,
			}
		}
		plan.Steps = append(plan.Steps, resolved)

		pin := VersionPin{PromptID: n.promptID, Version: version.Version}
		pinKey := pin.PromptID + "@" + pin.Version
		if _, dup := seenPins[pinKey]; !dup {
			seenPins[pinKey] = struct{}{}
			plan.VersionTuple = append(plan.VersionTuple, pin)
		}

		for _, dep := range dependents[n.key] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, nodes[dep])
			}
		}
	}

	if len(plan.Steps) != len(nodes) {
		// detectCycles runs first, so a shortfall here means the graph
		// changed mid-resolution.
		return nil, errorx.WithCode(code.ErrCircularDependency,
			"circular dependency: %d of %d nodes unreachable", len(nodes)-len(plan.Steps), len(nodes))
	}
	return plan, nil
}

// GraphNode is one vertex of the dependency visualization payload.
type GraphNode struct {
	PromptID  string `json:"prompt_id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	ProjectID string `json:"project_id"`
	Version   string `json:"version"`
	IsShared  bool   `json:"is_shared"`
	Hidden    bool   `json:"hidden"`
}

// GraphEdge is one edge of the dependency visualization payload.
type GraphEdge struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	RefType string `json:"ref_type"`
	StepID  string `json:"step_id,omitempty"`
}

// DependencyGraph is the payload of GET /scenes/{id}/dependencies.
type DependencyGraph struct {
	SceneID string      `json:"scene_id"`
	Nodes   []GraphNode `json:"nodes"`
	Edges   []GraphEdge `json:"edges"`
}

// Graph builds the visualization view of a scene's reference closure.
func (r *Resolver) Graph(ctx context.Context, scene *entity.Scene) (*DependencyGraph, error) {
	plan, err := r.Plan(ctx, scene)
	if err != nil {
		return nil, err
	}

	graph := &DependencyGraph{SceneID: scene.ID}
	seen := make(map[string]struct{})
	for _, step := range plan.Steps {
		if _, dup := seen[step.Prompt.ID]; !dup {
			seen[step.Prompt.ID] = struct{}{}
			graph.Nodes = append(graph.Nodes, GraphNode{
				PromptID:  step.Prompt.ID,
				Slug:      step.Prompt.Slug,
				Name:      step.Prompt.Name,
				ProjectID: step.Prompt.ProjectID,
				Version:   step.Version.Version,
				IsShared:  step.Prompt.IsShared,
				Hidden:    step.Hidden,
			})
		}
		if !step.Hidden {
			graph.Edges = append(graph.Edges, GraphEdge{
				Source:  scene.ID,
				Target:  step.Prompt.ID,
				RefType: string(entity.RefComposes),
				StepID:  step.StepID,
			})
		}
	}
	promptEdges := make(map[string]struct{})
	for _, step := range plan.Steps {
		edges, err := r.refs.OutEdges(ctx, step.Prompt.ID)
		if err != nil {
			return nil, errorx.WrapC(err, code.ErrInternal, "read reference index")
		}
		for _, edge := range edges {
			key := edge.SourceID + "->" + edge.TargetPromptID
			if _, dup := promptEdges[key]; dup {
				continue
			}
			promptEdges[key] = struct{}{}
			graph.Edges = append(graph.Edges, GraphEdge{
				Source:  edge.SourceID,
				Target:  edge.TargetPromptID,
				RefType: string(edge.RefType),
			})
		}
	}
	return graph, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
