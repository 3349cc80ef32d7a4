// Package session owns the sample buffer and the tracking state machine.
package session

import "github.com/verte-zerg/gazemap/internal/model"

type generation struct {
	page    string
	samples []model.GazeSample
	sealed  bool
}

// Buffer stores samples grouped into page generations. The oldest
// generation is the head; it is what gets rendered and exported. Only the
// newest generation accepts samples, and only while it is unsealed and
// the sample's page matches.
type Buffer struct {
	gens []*generation
}

// Append adds s, opening a new generation when needed.
func (b *Buffer) Append(s model.GazeSample) {
	if g := b.newest(); g != nil && !g.sealed && g.page == s.Page {
		g.samples = append(g.samples, s)
		return
	}
	b.gens = append(b.gens, &generation{page: s.Page, samples: []model.GazeSample{s}})
}

// Seal closes the newest generation to further samples.
func (b *Buffer) Seal() {
	if g := b.newest(); g != nil {
		g.sealed = true
	}
}

// HeadSealed reports whether the head generation is closed.
func (b *Buffer) HeadSealed() bool {
	return len(b.gens) > 0 && b.gens[0].sealed
}

// Len returns the number of samples in the head generation.
func (b *Buffer) Len() int {
	if len(b.gens) == 0 {
		return 0
	}
	return len(b.gens[0].samples)
}

// Total returns the number of samples across all generations.
func (b *Buffer) Total() int {
	n := 0
	for _, g := range b.gens {
		n += len(g.samples)
	}
	return n
}

// Page returns the head page, or "" when empty.
func (b *Buffer) Page() string {
	if len(b.gens) == 0 {
		return ""
	}
	return b.gens[0].page
}

// Snapshot returns a copy of the head generation.
func (b *Buffer) Snapshot() []model.GazeSample {
	if len(b.gens) == 0 {
		return nil
	}
	out := make([]model.GazeSample, len(b.gens[0].samples))
	copy(out, b.gens[0].samples)
	return out
}

// Rotate removes the head generation and returns its samples.
func (b *Buffer) Rotate() []model.GazeSample {
	if len(b.gens) == 0 {
		return nil
	}
	head := b.gens[0]
	b.gens[0] = nil
	b.gens = b.gens[1:]
	if len(b.gens) == 0 {
		b.gens = nil
	}
	return head.samples
}

// Pending returns the number of generations queued behind the head.
func (b *Buffer) Pending() int {
	if len(b.gens) <= 1 {
		return 0
	}
	return len(b.gens) - 1
}

// Pages lists generation pages from head to newest.
func (b *Buffer) Pages() []string {
	out := make([]string, len(b.gens))
	for i, g := range b.gens {
		out[i] = g.page
	}
	return out
}

// Generations returns copies of every generation from head to newest.
func (b *Buffer) Generations() [][]model.GazeSample {
	out := make([][]model.GazeSample, 0, len(b.gens))
	for _, g := range b.gens {
		cp := make([]model.GazeSample, len(g.samples))
		copy(cp, g.samples)
		out = append(out, cp)
	}
	return out
}

// Trim keeps at most keepSealed sealed generations, counted from the head,
// plus the open generation. It returns the number of samples discarded.
func (b *Buffer) Trim(keepSealed int) int {
	dropped := 0
	kept := b.gens[:0]
	sealed := 0
	for _, g := range b.gens {
		switch {
		case !g.sealed:
			kept = append(kept, g)
		case sealed < keepSealed:
			sealed++
			kept = append(kept, g)
		default:
			dropped += len(g.samples)
		}
	}
	for i := len(kept); i < len(b.gens); i++ {
		b.gens[i] = nil
	}
	b.gens = kept
	return dropped
}

// Clear drops every generation.
func (b *Buffer) Clear() {
	b.gens = nil
}

func (b *Buffer) newest() *generation {
	if len(b.gens) == 0 {
		return nil
	}
	return b.gens[len(b.gens)-1]
}
