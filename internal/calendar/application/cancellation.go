package application

import (
	"context"
	"sync/atomic"
)

// GenerationSource hands out the current store generation. Advancing it
// invalidates every token captured before.
type GenerationSource interface {
	Current(ctx context.Context) (uint64, error)
	Advance(ctx context.Context) (uint64, error)
}

// LocalGenerations is an in-process GenerationSource.
type LocalGenerations struct {
	n atomic.Uint64
}

// NewLocalGenerations creates a generation source starting at zero.
func NewLocalGenerations() *LocalGenerations {
	return &LocalGenerations{}
}

func (g *LocalGenerations) Current(context.Context) (uint64, error) {
	return g.n.Load(), nil
}

func (g *LocalGenerations) Advance(context.Context) (uint64, error) {
	return g.n.Add(1), nil
}

// Token captures a generation at the start of a pass. Work holding a token
// checks it before touching storage and gives up once the generation has
// moved on. The zero Token is never cancelled.
type Token struct {
	source     GenerationSource
	generation uint64
}

// NewToken captures the current generation of source.
func NewToken(ctx context.Context, source GenerationSource) (Token, error) {
	gen, err := source.Current(ctx)
	if err != nil {
		return Token{}, err
	}
	return Token{source: source, generation: gen}, nil
}

// Generation returns the captured generation.
func (t Token) Generation() uint64 {
	return t.generation
}

// Cancelled reports whether the generation has advanced since the token
// was captured.
func (t Token) Cancelled(ctx context.Context) (bool, error) {
	if t.source == nil {
		return false, nil
	}
	current, err := t.source.Current(ctx)
	if err != nil {
		return false, err
	}
	return current != t.generation, nil
}
