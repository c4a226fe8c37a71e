package rewrite

import "context"

// Rewriter is a single content-transform stage. Implementations must be
// pure with respect to anything outside the supplied content: the runner's
// failure isolation only holds if a failed stage leaves no hidden state
// behind.
//
// A stage reporting an error is not fatal to the chain; the runner discards
// the stage's output and hands the prior content to the next stage.
type Rewriter[C Content[C]] interface {
	// Name identifies the stage in configuration, logs and metrics.
	Name() string

	// Rewrite transforms content, returning the transformed artifact or an
	// error describing why this stage could not apply.
	Rewrite(ctx context.Context, content C) (C, error)
}

// ResponseRewriter transforms a raw fetched response. Pre-cache and
// post-cache chains are composed of these.
type ResponseRewriter = Rewriter[*ResponseContent]

// GadgetRewriter transforms parsed gadget markup at render time.
type GadgetRewriter = Rewriter[*MarkupContent]

// Chain is a fixed ordered sequence of stages for one chain role. Order is
// a configuration-time decision and part of the security contract: a
// sanitizing stage must run after any stage that can reintroduce markup.
type Chain[C Content[C]] struct {
	name   string
	stages []Rewriter[C]
}

// NewChain builds a chain executing the given stages strictly in order.
func NewChain[C Content[C]](name string, stages ...Rewriter[C]) Chain[C] {
	return Chain[C]{
		name:   name,
		stages: append([]Rewriter[C](nil), stages...),
	}
}

// Name returns the configured chain role name.
func (c Chain[C]) Name() string {
	return c.name
}

// Len returns the number of stages.
func (c Chain[C]) Len() int {
	return len(c.stages)
}
