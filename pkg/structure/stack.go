package structure

import (
	"math"

	"github.com/samber/lo"

	"impose/pkg/errdefs"
	"impose/pkg/geometry"
)

// Stack is an ordered list of composites, usually one per dataset.
// Composites are shared, not copied, when stacks are combined.
type Stack struct {
	composites []*Composite
}

// NewStack creates a stack holding the given composites.
func NewStack(composites ...*Composite) *Stack {
	return &Stack{composites: append([]*Composite(nil), composites...)}
}

// Len returns the number of composites.
func (s *Stack) Len() int { return len(s.composites) }

// At returns the i-th composite.
func (s *Stack) At(i int) *Composite { return s.composites[i] }

// Composites returns the composites in order.
func (s *Stack) Composites() []*Composite {
	return append([]*Composite(nil), s.composites...)
}

// Append adds a composite.
func (s *Stack) Append(c *Composite) {
	s.composites = append(s.composites, c)
}

// Concat returns a new stack with the composites of s followed by those
// of other.
func (s *Stack) Concat(other *Stack) *Stack {
	out := NewStack(s.composites...)
	out.Extend(other)
	return out
}

// Extend appends the composites of other.
func (s *Stack) Extend(other *Stack) {
	s.composites = append(s.composites, other.composites...)
}

// Clear removes all composites.
func (s *Stack) Clear() {
	s.composites = nil
}

// Position returns the mean composite position in microns. It is NaN for
// an empty stack.
func (s *Stack) Position() geometry.Point2D {
	if len(s.composites) == 0 {
		return geometry.Point2D{X: math.NaN(), Y: math.NaN()}
	}
	return geometry.Centroid(lo.Map(s.composites, func(c *Composite, _ int) geometry.Point2D {
		return c.Position()
	}))
}

// Rotate rotates every composite by dphi about originUM. A nil origin
// rotates about the stack position.
func (s *Stack) Rotate(dphi float64, originUM *geometry.Point2D) {
	if originUM == nil {
		p := s.Position()
		originUM = &p
	}
	for _, c := range s.composites {
		c.Rotate(dphi, originUM)
	}
}

// Translate moves every composite by drUM microns.
func (s *Stack) Translate(drUM geometry.Point2D) {
	for _, c := range s.composites {
		c.Translate(drUM)
	}
}

// Mean returns the mean composite: an empty composite for an empty
// stack and a copy of the only composite otherwise. Averaging several
// composites is not supported.
func (s *Stack) Mean() (*Composite, error) {
	switch len(s.composites) {
	case 0:
		return NewComposite(), nil
	case 1:
		return s.composites[0].Copy(), nil
	default:
		return nil, errdefs.ErrMeanNotImplemented
	}
}

// Equal reports whether both stacks have the same persisted state.
func (s *Stack) Equal(other *Stack) bool {
	if other == nil {
		return false
	}
	return statesEqual(s.State(), other.State())
}
