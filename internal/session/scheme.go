package session

import (
	"github.com/samber/lo"
	"go.uber.org/zap"

	"impose/internal/datasource"
	"impose/internal/logging"
	"impose/pkg/structure"
)

// Collect holds the data sets on which structure composites are drawn.
// Sources[i] belongs to the i-th composite of the shared stack.
type Collect struct {
	Sources []*datasource.Source
	stack   *structure.Stack
}

// Paths returns the file paths of all sources.
func (c *Collect) Paths() []string {
	return lo.Map(c.Sources, func(ds *datasource.Source, _ int) string { return ds.Path() })
}

// Append adds a data source and its composite. A nil composite is
// replaced by an empty one. A source whose signature is already present
// is skipped and Append returns false.
func (c *Collect) Append(ds *datasource.Source, sc *structure.Composite) bool {
	if lo.ContainsBy(c.Sources, func(o *datasource.Source) bool { return o.Signature() == ds.Signature() }) {
		logging.L().Warn("prevented loading a duplicate dataset",
			zap.String("path", ds.Path()),
			zap.String("signature", ds.Signature()))
		return false
	}
	if sc == nil {
		sc = structure.NewComposite()
	}
	c.Sources = append(c.Sources, ds)
	c.stack.Append(sc)
	return true
}

// Clear removes all sources and all composites of the stack.
func (c *Collect) Clear() {
	c.Sources = nil
	c.stack.Clear()
}

// CollectState is the persisted form of Collect.
type CollectState struct {
	DataSources []datasource.State `json:"data sources"`
}

// State returns the persisted form.
func (c *Collect) State() CollectState {
	return CollectState{DataSources: sourceStates(c.Sources)}
}

// Colocalize holds the data sets onto which the stack's mean composite is
// transferred. Manual[i] is the adjusted composite for Sources[i].
type Colocalize struct {
	Sources []*datasource.Source
	Manual  []*structure.Composite
	stack   *structure.Stack
}

// Paths returns the file paths of all sources.
func (c *Colocalize) Paths() []string {
	return lo.Map(c.Sources, func(ds *datasource.Source, _ int) string { return ds.Path() })
}

// Append adds a data source. A nil composite is replaced by the mean
// composite of the stack. The composite is scaled to the x pixel size of
// the source.
func (c *Colocalize) Append(ds *datasource.Source, sc *structure.Composite) error {
	if sc == nil {
		mean, err := c.stack.Mean()
		if err != nil {
			return err
		}
		sc = mean
	}
	px, _ := ds.PixelSize()
	sc.SetScale(px)
	c.Sources = append(c.Sources, ds)
	c.Manual = append(c.Manual, sc)
	return nil
}

// Clear removes all sources and their composites.
func (c *Colocalize) Clear() {
	c.Sources = nil
	c.Manual = nil
}

// UpdateComposites brings the manual composites in line with the mean
// composite of the stack. It must be called whenever the stack changes.
//
// If the mean geometry differs from the manual composites, they are
// discarded. Sources without a composite get a copy of the mean scaled to
// their x pixel size. Layer labels and colors are always synchronized.
func (c *Colocalize) UpdateComposites() error {
	if len(c.Sources) == 0 {
		return nil
	}
	sc, err := c.stack.Mean()
	if err != nil {
		return err
	}
	if len(c.Manual) > 0 && !sc.GeometryIdenticalTo(c.Manual[0]) {
		logging.L().Debug("mean composite changed, resetting manual composites",
			zap.Int("count", len(c.Manual)))
		c.Manual = nil
	}
	for i, ds := range c.Sources {
		var sci *structure.Composite
		if i >= len(c.Manual) {
			sci = sc.Copy()
			px, _ := ds.PixelSize()
			sci.SetScale(px)
			c.Manual = append(c.Manual, sci)
		} else {
			sci = c.Manual[i]
		}
		for j := 0; j < sc.Len() && j < sci.Len(); j++ {
			ref := sc.At(j)
			sci.At(j).Color = ref.Color
			sci.RelabelAt(j, ref.Label())
		}
	}
	return nil
}

// ColocalizeState is the persisted form of Colocalize.
type ColocalizeState struct {
	DataSources []datasource.State         `json:"data sources"`
	Manual      []structure.CompositeState `json:"structure composites manual"`
}

// State returns the persisted form.
func (c *Colocalize) State() ColocalizeState {
	return ColocalizeState{
		DataSources: sourceStates(c.Sources),
		Manual:      lo.Map(c.Manual, func(sc *structure.Composite, _ int) structure.CompositeState { return sc.State() }),
	}
}

func sourceStates(sources []*datasource.Source) []datasource.State {
	return lo.Map(sources, func(ds *datasource.Source, _ int) datasource.State { return ds.State() })
}
