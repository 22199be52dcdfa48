// Package errdefs defines the error kinds returned by the impose packages.
//
// Typed errors carry the offending values and match their sentinel through
// errors.Is, so callers can either inspect details with errors.As or simply
// test the kind:
//
//	if errors.Is(err, errdefs.ErrLabelCollision) { ... }
package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these.
var (
	ErrLabelCollision   = errors.New("label collision")
	ErrScaleMismatch    = errors.New("point size mismatch")
	ErrInvalidHue       = errors.New("invalid hue")
	ErrShapeDimension   = errors.New("invalid dimensions")
	ErrUnsupportedShape = errors.New("unsupported shape")

	// ErrNoImageData is reported (not returned) when blending without images.
	ErrNoImageData = errors.New("no image data available for blending")

	ErrLayerNotFound      = errors.New("layer not found")
	ErrEmptyGeometry      = errors.New("structure layer needs at least one shape")
	ErrMeanNotImplemented = errors.New("averaging of multiple structure composites not implemented")
	ErrChannelNotFound    = errors.New("channel not found")
)

// LabelCollisionError is returned when a layer label already exists in a composite.
type LabelCollisionError struct {
	Label string
}

func (e *LabelCollisionError) Error() string {
	return fmt.Sprintf("a layer with the label %q already exists", e.Label)
}

func (e *LabelCollisionError) Unwrap() error { return ErrLabelCollision }

// ScaleMismatchError is returned when a layer's point_um differs from the
// point_um of the composite (or a shape's from its layer).
type ScaleMismatchError struct {
	Want float64
	Got  float64
}

func (e *ScaleMismatchError) Error() string {
	return fmt.Sprintf("point_um mismatch: expected %g, got %g", e.Want, e.Got)
}

func (e *ScaleMismatchError) Unwrap() error { return ErrScaleMismatch }

// InvalidHueError is returned for hue values that cannot be resolved to a colour.
type InvalidHueError struct {
	Value any
}

func (e *InvalidHueError) Error() string {
	return fmt.Sprintf("unrecognized hue value or type: '%v' (%T)", e.Value, e.Value)
}

func (e *InvalidHueError) Unwrap() error { return ErrInvalidHue }

// ShapeDimensionError is returned for arrays with the wrong number of
// dimensions and for malformed polygon vertex lists.
type ShapeDimensionError struct {
	Shape  []int
	Reason string
}

func (e *ShapeDimensionError) Error() string {
	if len(e.Shape) > 0 {
		return fmt.Sprintf("invalid dimensions %v: %s", e.Shape, e.Reason)
	}
	return "invalid dimensions: " + e.Reason
}

func (e *ShapeDimensionError) Unwrap() error { return ErrShapeDimension }

// UnsupportedShapeError is returned for unknown shape kinds during decoding
// or ROI conversion.
type UnsupportedShapeError struct {
	Kind string
}

func (e *UnsupportedShapeError) Error() string {
	return fmt.Sprintf("shape '%s' not implemented", e.Kind)
}

func (e *UnsupportedShapeError) Unwrap() error { return ErrUnsupportedShape }
