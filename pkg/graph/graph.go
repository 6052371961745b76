// Package graph provides a small directed agent graph: named nodes,
// static edges, and conditional edges routed by a pure function of the
// state. The runtime walks the graph sequentially; parallelism lives
// inside nodes.
package graph

import (
	"context"
	"fmt"

	"github.com/quorasec/conclave/pkg/schema"
)

// End is the terminal pseudo-node.
const End = "__end__"

// maxSteps guards against malformed routing cycles. A full run with the
// default revision cap takes well under twenty steps.
const maxSteps = 100

// Node is one unit of work. Run receives the current state and returns
// the updated state; implementations must not mutate their input.
type Node interface {
	Name() string
	Run(ctx context.Context, state *schema.State) (*schema.State, error)
}

// RouterFunc picks the outgoing route key from the state.
type RouterFunc func(state *schema.State) string

type conditional struct {
	router  RouterFunc
	targets map[string]string
}

// Builder assembles a Graph.
type Builder struct {
	nodes        map[string]Node
	edges        map[string]string
	conditionals map[string]conditional
	entry        string
	err          error
}

func NewBuilder() *Builder {
	return &Builder{
		nodes:        map[string]Node{},
		edges:        map[string]string{},
		conditionals: map[string]conditional{},
	}
}

func (b *Builder) fail(format string, args ...interface{}) *Builder {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
	return b
}

// AddNode registers a node under its own name.
func (b *Builder) AddNode(n Node) *Builder {
	name := n.Name()
	if name == "" || name == End {
		return b.fail("graph: invalid node name %q", name)
	}
	if _, dup := b.nodes[name]; dup {
		return b.fail("graph: duplicate node %q", name)
	}
	b.nodes[name] = n
	return b
}

// AddEdge declares an unconditional transition.
func (b *Builder) AddEdge(from, to string) *Builder {
	if _, dup := b.edges[from]; dup {
		return b.fail("graph: node %q already has an edge", from)
	}
	if _, dup := b.conditionals[from]; dup {
		return b.fail("graph: node %q already has conditional edges", from)
	}
	b.edges[from] = to
	return b
}

// AddConditionalEdges declares a routed transition: router picks a key,
// targets maps keys to destination nodes (or End).
func (b *Builder) AddConditionalEdges(from string, router RouterFunc, targets map[string]string) *Builder {
	if _, dup := b.edges[from]; dup {
		return b.fail("graph: node %q already has an edge", from)
	}
	if _, dup := b.conditionals[from]; dup {
		return b.fail("graph: node %q already has conditional edges", from)
	}
	b.conditionals[from] = conditional{router: router, targets: targets}
	return b
}

// SetEntryPoint names the first node.
func (b *Builder) SetEntryPoint(name string) *Builder {
	b.entry = name
	return b
}

// Compile validates the topology and returns the runnable graph.
func (b *Builder) Compile() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.entry == "" {
		return nil, fmt.Errorf("graph: entry point not set")
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, fmt.Errorf("graph: entry point %q is not a node", b.entry)
	}
	for from, to := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			return nil, fmt.Errorf("graph: edge from unknown node %q", from)
		}
		if to != End {
			if _, ok := b.nodes[to]; !ok {
				return nil, fmt.Errorf("graph: edge %q -> unknown node %q", from, to)
			}
		}
	}
	for from, c := range b.conditionals {
		if _, ok := b.nodes[from]; !ok {
			return nil, fmt.Errorf("graph: conditional edges from unknown node %q", from)
		}
		if c.router == nil {
			return nil, fmt.Errorf("graph: node %q has a nil router", from)
		}
		for key, to := range c.targets {
			if to != End {
				if _, ok := b.nodes[to]; !ok {
					return nil, fmt.Errorf("graph: conditional %q[%q] -> unknown node %q", from, key, to)
				}
			}
		}
	}
	return &Graph{
		nodes:        b.nodes,
		edges:        b.edges,
		conditionals: b.conditionals,
		entry:        b.entry,
	}, nil
}

// Step is one node execution observed through Stream.
type Step struct {
	Node  string
	State *schema.State
	Err   error
}

// Graph is a compiled, immutable graph. Safe for concurrent Invoke calls
// as long as its nodes are.
type Graph struct {
	nodes        map[string]Node
	edges        map[string]string
	conditionals map[string]conditional
	entry        string
}

// Invoke walks the graph to completion. Cancellation stamps the partial
// state END_CANCELLED and returns it alongside the context error.
func (g *Graph) Invoke(ctx context.Context, state *schema.State) (*schema.State, error) {
	return g.run(ctx, state, nil)
}

// Stream walks the graph, emitting a Step after every node. The channel
// closes when the walk ends; the final state arrives on the last step.
func (g *Graph) Stream(ctx context.Context, state *schema.State) <-chan Step {
	steps := make(chan Step)
	go func() {
		defer close(steps)
		final, err := g.run(ctx, state, func(node string, s *schema.State) {
			steps <- Step{Node: node, State: s}
		})
		if err != nil {
			steps <- Step{State: final, Err: err}
		}
	}()
	return steps
}

func (g *Graph) run(ctx context.Context, state *schema.State, observe func(string, *schema.State)) (*schema.State, error) {
	current := g.entry
	for steps := 0; ; steps++ {
		if steps >= maxSteps {
			return state, fmt.Errorf("graph: exceeded %d steps at node %q", maxSteps, current)
		}
		if err := ctx.Err(); err != nil {
			out := state.Clone()
			out.Status = schema.StatusCancelled
			return out, err
		}

		node := g.nodes[current]
		next, err := node.Run(ctx, state)
		if err != nil {
			if ctx.Err() != nil {
				out := state.Clone()
				out.Status = schema.StatusCancelled
				return out, ctx.Err()
			}
			return state, fmt.Errorf("graph: node %q: %w", current, err)
		}
		state = next
		if observe != nil {
			observe(current, state)
		}

		if c, ok := g.conditionals[current]; ok {
			key := c.router(state)
			target, ok := c.targets[key]
			if !ok {
				return state, fmt.Errorf("graph: node %q routed to unmapped key %q", current, key)
			}
			if target == End {
				return state, nil
			}
			current = target
			continue
		}
		target, ok := g.edges[current]
		if !ok || target == End {
			return state, nil
		}
		current = target
	}
}
