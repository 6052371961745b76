package agents

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/quorasec/conclave/pkg/config"
	"github.com/quorasec/conclave/pkg/llms"
	"github.com/quorasec/conclave/pkg/prompts"
	"github.com/quorasec/conclave/pkg/schema"
)

// GeneratorEnsemble fans the scenario out to the full model council in
// parallel and collects exactly one assessment per slot, in council
// order. A failed slot yields a degenerate placeholder instead of
// shrinking the council.
type GeneratorEnsemble struct {
	deps *Deps
}

func NewGeneratorEnsemble(deps *Deps) *GeneratorEnsemble {
	return &GeneratorEnsemble{deps: deps}
}

func (g *GeneratorEnsemble) Name() string { return "generator_ensemble" }

func (g *GeneratorEnsemble) Run(ctx context.Context, state *schema.State) (*schema.State, error) {
	council := g.deps.Config.Models.Generators
	refs := g.deps.referenceSources(ctx, state.RiskInput)
	prompt := prompts.Generator(state.RiskInput, refs)

	assessments := make([]schema.RiskAssessment, len(council))
	eg, ctx := errgroup.WithContext(ctx)
	for i, spec := range council {
				i, spec := i, spec
		eg.Go(func() error {
			assessments[i] = g.assess(ctx, spec, i, state.RevisionCount, prompt)
			return nil
		})
	}
	// Goroutines never return errors; failed slots become placeholders.
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := state.Clone()
	out.DraftAssessments = assessments
	return out, nil
}

// assess runs one council slot. Any failure, provider resolution, call,
// or parse, degrades to the neutral placeholder so positions stay stable.
func (g *GeneratorEnsemble) assess(ctx context.Context, spec config.ModelSpec, slot, revision int, prompt string) schema.RiskAssessment {
	stage := fmt.Sprintf("generator[%d]", slot)
	label, response, err := g.deps.invoke(ctx, llms.CreateRequest{
		Spec:        spec,
		Fallback:    spec.DeclaredFallback(),
		Temperature: g.deps.Config.Models.GeneratorTemperature,
		Context:     stage,
	}, stage, "generator", revision, prompt)
	if err != nil {
		return schema.DegenerateAssessment(label, err)
	}

	assessment, err := schema.ParseAssessment(label, response)
	if err != nil {
		return schema.DegenerateAssessment(label, err)
	}
	return assessment
}
