package decider

import "context"

// StaticProvider replays a scripted sequence of decision batches, one batch
// per cycle. Used by the simulated runner and tests; after the script runs out
// it holds forever.
type StaticProvider struct {
	script [][]Decision
	cursor int
}

func NewStaticProvider(script ...[]Decision) *StaticProvider {
	return &StaticProvider{script: script}
}

func (p *StaticProvider) Decide(_ context.Context, _ Context) ([]Decision, error) {
	if p.cursor >= len(p.script) {
		return nil, nil
	}
	batch := p.script[p.cursor]
	p.cursor++
	return batch, nil
}
