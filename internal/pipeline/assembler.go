package pipeline

import (
	"sync"

	"github.com/friendsincode/stellatune/internal/stellaerr"
)

func errNoActivePipelineForMutation() error {
	return stellaerr.NoActivePipeline("ApplyPipelineMutation")
}

// AssembledPipeline is the runtime artifact `ensure` produces: a plan plus a monotonic
// build generation, bumped every time the decode worker must rebuild its runner (spec
// §4.C "A successful mutation forces the active runner ... to rebuild").
type AssembledPipeline struct {
	Plan       PipelinePlan
	Generation uint64
}

// PipelineAssembler builds or reuses an AssembledPipeline from a plan, and applies
// mutations to the live transform graph (spec §4.C "Contract").
type PipelineAssembler struct {
	mu        sync.Mutex
	current   *AssembledPipeline
	buildGen  uint64
}

// NewAssembler returns an assembler with no current pipeline.
func NewAssembler() *PipelineAssembler {
	return &PipelineAssembler{}
}

// Ensure builds a new AssembledPipeline from plan, reusing the existing one (same
// generation, with its plan replaced by plan) if plan has the same source/decoder/sink
// triple as the currently assembled plan — the transform graph is not compared.
// Otherwise this is a fresh build bumping the generation so the decode worker rebuilds
// its runner.
func (a *PipelineAssembler) Ensure(plan PipelinePlan) *AssembledPipeline {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil && a.samePlanShape(plan) {
		a.current.Plan = plan
		return a.current
	}

	a.buildGen++
	a.current = &AssembledPipeline{Plan: plan, Generation: a.buildGen}
	return a.current
}

func (a *PipelineAssembler) samePlanShape(plan PipelinePlan) bool {
	cur := a.current.Plan
	return cur.Source == plan.Source && cur.Decoder == plan.Decoder && cur.Sink == plan.Sink
}

// ApplyMutation applies m to the current plan's transform graph, bumping the build
// generation so the decode worker rebuilds its runner, carrying over per-key state for
// any retained stage (spec §4.C "carrying over stage state where the key is retained").
// Returns a typed TransformStageNotFound/InvalidArg error without mutating state if the
// mutation is rejected.
func (a *PipelineAssembler) ApplyMutation(m Mutation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return errNoActivePipelineForMutation()
	}

	graph := a.current.Plan.Transform.Clone()
	if err := graph.Apply(m); err != nil {
		return err
	}

	a.current.Plan.Transform = graph
	a.buildGen++
	a.current.Generation = a.buildGen
	return nil
}

// Current returns the currently assembled pipeline, if any.
func (a *PipelineAssembler) Current() (*AssembledPipeline, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.current != nil
}
