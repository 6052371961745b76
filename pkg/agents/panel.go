package agents

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/quorasec/conclave/pkg/schema"
)

// Panel runs its critics against the synthesized draft in parallel and
// appends one critique per critic, always in panel order. Critics never
// abort the round; their own fallbacks produce conservative critiques.
type Panel struct {
	critics []Critic
}

func NewPanel(critics ...Critic) *Panel {
	return &Panel{critics: critics}
}

func (p *Panel) Name() string { return "challenger_panel" }

func (p *Panel) Run(ctx context.Context, state *schema.State) (*schema.State, error) {
	verdicts := make([]schema.Critique, len(p.critics))
	eg, ctx := errgroup.WithContext(ctx)
	for i, critic := range p.critics {
				i, critic := i, critic
		eg.Go(func() error {
			verdicts[i] = critic.Critique(ctx, state)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := state.Clone()
	out.Critiques = append(out.Critiques, verdicts...)
	return out, nil
}
