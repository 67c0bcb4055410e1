package core

import (
	"github.com/devblok/prism/gfx"
)

// PassList is the ordered sequence of render passes a Renderer records.
// Draw-once passes are always kept ahead of every-frame passes, and
// each pass's parent is its predecessor in the sequence.
type PassList struct {
	passes []gfx.RenderPass
}

// Insert adds p keeping the schedule ordering and returns its position.
func (l *PassList) Insert(p gfx.RenderPass) int {
	at := len(l.passes)
	if p.Spec().Schedule == gfx.DrawOnce {
		for idx, pass := range l.passes {
			if pass.Spec().Schedule == gfx.EveryFrame {
				at = idx
				break
			}
		}
	}

	l.passes = append(l.passes, nil)
	copy(l.passes[at+1:], l.passes[at:])
	l.passes[at] = p
	l.relink()
	return at
}

// Remove drops p from the sequence, reporting whether it was present.
func (l *PassList) Remove(p gfx.RenderPass) bool {
	for idx, pass := range l.passes {
		if pass == p {
			l.passes = append(l.passes[:idx], l.passes[idx+1:]...)
			p.SetParent(nil)
			l.relink()
			return true
		}
	}
	return false
}

// Passes returns the passes in recording order.
func (l *PassList) Passes() []gfx.RenderPass {
	return append([]gfx.RenderPass(nil), l.passes...)
}

// Len returns the number of passes.
func (l *PassList) Len() int {
	return len(l.passes)
}

func (l *PassList) relink() {
	var parent gfx.RenderPass
	for _, pass := range l.passes {
		pass.SetParent(parent)
		parent = pass
	}
}
