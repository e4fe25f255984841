package solver

import (
	"context"
	"fmt"
)

// Routes challenge to the solver registered for its type
type Mux struct {
	routes   map[string]Solver
	fallback Solver
}

func NewMux() *Mux {
	return &Mux{routes: make(map[string]Solver)}
}

func (m *Mux) Handle(challengeType string, s Solver) *Mux {
	m.routes[challengeType] = s
	return m
}

// Solver for types without own route
func (m *Mux) Default(s Solver) *Mux {
	m.fallback = s
	return m
}

func (m *Mux) Solve(ctx context.Context, challenge Challenge) (*Solution, error) {
	if s, ok := m.routes[challenge.Type]; ok {
		return s.Solve(ctx, challenge)
	}
	if m.fallback != nil {
		return m.fallback.Solve(ctx, challenge)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, challenge.Type)
}
