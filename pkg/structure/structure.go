// Package structure groups shapes into labeled layers and layers into
// composites.
//
// A Layer combines weighted shapes into one mask: positive weights add
// area, negative weights cut it out. A Composite is one full annotation
// of a dataset and can be compared with other composites independently
// of translation and rotation. A Stack holds one composite per dataset.
package structure

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DataSource is the data a layer mask is applied to: named 2D channels
// of equal shape plus the physical pixel size.
type DataSource interface {
	// ChannelNames lists the available channels.
	ChannelNames() []string
	// ChannelData returns the 2D data of a channel.
	ChannelData(name string) (*mat.Dense, error)
	// PixelSize returns the pixel size in microns along x and y.
	PixelSize() (x, y float64)
	// ImageShape returns the shape of the 2D channel data.
	ImageShape() (rows, cols int)
}

// EventType identifies composite change events.
type EventType int

const (
	// EventLayerAdded carries the added *Layer.
	EventLayerAdded EventType = iota
	// EventLayerRemoved carries the label of the removed layer.
	EventLayerRemoved
	// EventLayerRelabeled carries a LabelChange.
	EventLayerRelabeled
	// EventGeometryChanged carries the label of the changed layer, or ""
	// when the whole composite moved.
	EventGeometryChanged
	// EventScaleChanged carries the new point size.
	EventScaleChanged
)

func (e EventType) String() string {
	switch e {
	case EventLayerAdded:
		return "LayerAdded"
	case EventLayerRemoved:
		return "LayerRemoved"
	case EventLayerRelabeled:
		return "LayerRelabeled"
	case EventGeometryChanged:
		return "GeometryChanged"
	case EventScaleChanged:
		return "ScaleChanged"
	default:
		return "Unknown"
	}
}

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// LabelChange is the payload of EventLayerRelabeled.
type LabelChange struct {
	Old string
	New string
}

// LayerData holds the values extracted by one layer, per channel.
type LayerData struct {
	Label    string
	Channels map[string][]float64
}

// FiniteChannels returns the channel values with NaN and infinities
// replaced by nil, ready for JSON encoding.
func (ld LayerData) FiniteChannels() map[string][]*float64 {
	out := make(map[string][]*float64, len(ld.Channels))
	for name, values := range ld.Channels {
		vs := make([]*float64, len(values))
		for i := range values {
			if !math.IsNaN(values[i]) && !math.IsInf(values[i], 0) {
				vs[i] = &values[i]
			}
		}
		out[name] = vs
	}
	return out
}
