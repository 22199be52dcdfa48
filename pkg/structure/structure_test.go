package structure

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"impose/pkg/errdefs"
	"impose/pkg/geometry"
	"impose/pkg/shapes"
)

type fakeSource struct {
	rows, cols int
	px, py     float64
	channels   map[string]*mat.Dense
}

func (f *fakeSource) ChannelNames() []string {
	names := make([]string, 0, len(f.channels))
	for n := range f.channels {
		names = append(names, n)
	}
	return names
}

func (f *fakeSource) ChannelData(name string) (*mat.Dense, error) {
	d, ok := f.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errdefs.ErrChannelNotFound, name)
	}
	return d, nil
}

func (f *fakeSource) PixelSize() (float64, float64) { return f.px, f.py }
func (f *fakeSource) ImageShape() (int, int) { return f.rows, f.cols }

// newFakeSource returns a source whose "index" channel holds the flat
// pixel index and whose "neg" channel holds its negative.
func newFakeSource(rows, cols int) *fakeSource {
	idx := mat.NewDense(rows, cols, nil)
	neg := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			idx.Set(r, c, float64(r*cols+c))
			neg.Set(r, c, -float64(r*cols+c))
		}
	}
	return &fakeSource{
		rows: rows, cols: cols, px: 1, py: 1,
		channels: map[string]*mat.Dense{"index": idx, "neg": neg},
	}
}

func mustLayer(t *testing.T, label string, pointUM float64, geom ...WeightedShape) *Layer {
	t.Helper()
	l, err := NewLayer(label, pointUM, geom, [3]int{255, 255, 255})
	if err != nil {
		t.Fatalf("NewLayer(%q): %v", label, err)
	}
	return l
}

func mustComposite(t *testing.T, layers ...*Layer) *Composite {
	t.Helper()
	c, err := CompositeOf(layers...)
	if err != nil {
		t.Fatalf("CompositeOf: %v", err)
	}
	return c
}

func ellipse(x, y, a, b, phi float64) WeightedShape {
	return WeightedShape{Shape: shapes.NewEllipse(x, y, a, b, phi, 0.5), Weight: 1}
}

func TestNewLayerErrors(t *testing.T) {
	if _, err := NewLayer("empty", 0.5, nil, [3]int{}); !errors.Is(err, errdefs.ErrEmptyGeometry) {
		t.Errorf("empty geometry: got %v", err)
	}
	geom := []WeightedShape{{Shape: shapes.NewEllipse(0, 0, 10, 5, 0, 1), Weight: 1}}
	if _, err := NewLayer("scale", 0.5, geom, [3]int{}); !errors.Is(err, errdefs.ErrScaleMismatch) {
		t.Errorf("shape scale mismatch: got %v", err)
	}
	if _, err := NewLayer("zero", 0, geom, [3]int{}); err == nil {
		t.Error("expected error for zero point size")
	}
}

func TestLayerCopy(t *testing.T) {
	l := mustLayer(t, "test layer", 0.5, ellipse(43, 12, 10, 15, 0))
	cp := l.Copy()

	s, _ := l.Shape(0)
	s.(*shapes.Ellipse).A = 11
	c, _ := cp.Shape(0)
	if c.(*shapes.Ellipse).A != 10 {
		t.Errorf("copy shares shapes with the original")
	}
	if cp.Label() != "test layer" || cp.PointUM() != 0.5 {
		t.Errorf("copy = %q/%g", cp.Label(), cp.PointUM())
	}
}

func TestLayerPosition(t *testing.T) {
	tests := []struct {
		name string
		geom []WeightedShape
		want geometry.Point2D
	}{
		{"single", []WeightedShape{ellipse(10, 20, 25, 15, 0)}, geometry.Point2D{X: 5, Y: 10}},
		{"mean", []WeightedShape{ellipse(10, 20, 25, 15, 0), ellipse(12, 22, 25, 15, 0)}, geometry.Point2D{X: 5.5, Y: 10.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := mustLayer(t, "test layer", 0.5, tt.geom...)
			if got := l.Position(); got != tt.want {
				t.Errorf("Position() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLayerTranslate(t *testing.T) {
	l := mustLayer(t, "test layer", 0.5,
		ellipse(10, 20, 25, 15, 0),
		WeightedShape{Shape: shapes.NewRectangle(12, 22, 33, 22, 0, 0.5), Weight: 1},
	)
	l.Translate(geometry.Point2D{X: 1.1, Y: -4.2})
	got := l.Position()
	if math.Abs(got.X-6.6) > 1e-12 || math.Abs(got.Y-6.3) > 1e-12 {
		t.Errorf("Position() = %v, want (6.6, 6.3)", got)
	}
}

func TestLayerSetScale(t *testing.T) {
	l := mustLayer(t, "test layer", 0.5, ellipse(43, 12, 10, 15, 0))
	l.SetScale(0.1)
	s, _ := l.Shape(0)
	if l.PointUM() != 0.1 || s.PointSize() != 0.1 {
		t.Errorf("point size = %g/%g, want 0.1", l.PointUM(), s.PointSize())
	}
}

func TestLayerString(t *testing.T) {
	l := mustLayer(t, "test layer", 0.5, ellipse(43, 12, 10, 15, 0))
	if !strings.Contains(l.String(), "test layer") {
		t.Errorf("String() = %q", l.String())
	}
}

func TestLayerMaskWeights(t *testing.T) {
	e := shapes.NewEllipse(10, 10, 6, 4, 0, 1)

	cancel := mustLayer(t, "cancel", 1,
		WeightedShape{Shape: e, Weight: 1},
		WeightedShape{Shape: e.Copy(), Weight: -1},
	)
	if n := cancel.ToMask(1, 1, 20, 20).Count(); n != 0 {
		t.Errorf("+1/-1 layer covers %d pixels, want 0", n)
	}

	single := mustLayer(t, "single", 1, WeightedShape{Shape: e.Copy(), Weight: 1})
	double := mustLayer(t, "double", 1,
		WeightedShape{Shape: e.Copy(), Weight: 2},
		WeightedShape{Shape: e.Copy(), Weight: -1},
	)
	ms := single.ToMask(1, 1, 20, 20)
	if ms.Count() == 0 {
		t.Fatal("ellipse mask is empty")
	}
	if !ms.Equal(double.ToMask(1, 1, 20, 20)) {
		t.Error("+2/-1 layer differs from a single shape")
	}

	hole := mustLayer(t, "hole", 1,
		WeightedShape{Shape: shapes.NewEllipse(10, 10, 8, 8, 0, 1), Weight: 1},
		WeightedShape{Shape: shapes.NewCircle(10, 10, 3, 0, 1), Weight: -1},
	)
	mh := hole.ToMask(1, 1, 20, 20)
	if mh.Count() == 0 || mh.At(10, 10) {
		t.Errorf("hole layer: count=%d, centre set=%v", mh.Count(), mh.At(10, 10))
	}
}

func TestLayerExtractData(t *testing.T) {
	ds := newFakeSource(20, 30)
	l := mustLayer(t, "canal", 1, WeightedShape{Shape: shapes.NewCircle(12, 8, 5, 0, 1), Weight: 1})

	data, err := l.ExtractData(ds, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2 {
		t.Fatalf("got %d channels, want 2", len(data))
	}
	idx := l.ToMask(1, 1, 20, 30).Indices()
	want := make([]float64, len(idx))
	for i, k := range idx {
		want[i] = float64(k)
	}
	if diff := cmp.Diff(want, data["index"]); diff != "" {
		t.Errorf("index channel mismatch (-want +got):\n%s", diff)
	}
	for i, v := range data["neg"] {
		if v != -want[i] {
			t.Fatalf("neg[%d] = %g, want %g", i, v, -want[i])
		}
	}

	sub, err := l.ExtractData(ds, []string{"neg"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sub["index"]; ok || len(sub) != 1 {
		t.Errorf("channel selection ignored: %v", sub)
	}

	if _, err := l.ExtractData(ds, []string{"missing"}); !errors.Is(err, errdefs.ErrChannelNotFound) {
		t.Errorf("missing channel: got %v", err)
	}
}

func TestCompositeAppendErrors(t *testing.T) {
	c := mustComposite(t, mustLayer(t, "test layer", 0.5, ellipse(43, 12, 10, 15, 0)))

	err := c.Append(mustLayer(t, "test layer", 0.5, ellipse(43, 12, 10, 15, 0)))
	var lc *errdefs.LabelCollisionError
	if !errors.As(err, &lc) || lc.Label != "test layer" {
		t.Errorf("duplicate label: got %v", err)
	}

	other := []WeightedShape{{Shape: shapes.NewEllipse(43, 12, 10, 15, 0, 0.4), Weight: 1}}
	l, err := NewLayer("test layer 2", 0.4, other, [3]int{})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Append(l); !errors.Is(err, errdefs.ErrScaleMismatch) {
		t.Errorf("point size mismatch: got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after failed appends", c.Len())
	}
}

func TestCompositeBase(t *testing.T) {
	sl := mustLayer(t, "test layer", 0.5, ellipse(43, 12, 10, 15, 0))
	sl2 := mustLayer(t, "test layer 2", 0.5, ellipse(43, 12, 10, 15, 0))
	c := mustComposite(t, sl, sl2)

	if got, _ := c.Layer("test layer"); got != sl {
		t.Error("Layer(test layer) returned another layer")
	}
	if c.At(1) != sl2 {
		t.Error("At(1) returned another layer")
	}
	if !c.Contains("test layer 2") || c.Contains("nope") {
		t.Error("Contains mismatch")
	}
	if pum, ok := c.PointUM(); !ok || pum != 0.5 {
		t.Errorf("PointUM() = %g, %v", pum, ok)
	}
	if diff := cmp.Diff([]string{"test layer", "test layer 2"}, c.Labels()); diff != "" {
		t.Errorf("Labels() (-want +got):\n%s", diff)
	}
}

func TestCompositeIndex(t *testing.T) {
	c := mustComposite(t,
		mustLayer(t, "test layer", 0.5, ellipse(43, 12, 10, 15, 0)),
		mustLayer(t, "test layer 2", 0.5, ellipse(43, 12, 10, 15, 0)),
	)
	for want, label := range []string{"test layer", "test layer 2"} {
		if got, err := c.Index(label); err != nil || got != want {
			t.Errorf("Index(%q) = %d, %v", label, got, err)
		}
	}
	if _, err := c.Index("peter"); !errors.Is(err, errdefs.ErrLayerNotFound) {
		t.Errorf("unknown label: got %v", err)
	}
}

func TestCompositeChangeLayerLabel(t *testing.T) {
	c := mustComposite(t,
		mustLayer(t, "test layer", 0.5, ellipse(43, 12, 10, 15, 0)),
		mustLayer(t, "test layer 2", 0.5, ellipse(43, 12, 10, 15, 0)),
	)
	var changes []LabelChange
	c.On(EventLayerRelabeled, func(data interface{}) {
		changes = append(changes, data.(LabelChange))
	})

	if err := c.ChangeLayerLabel("test layer", "test layer", false); err != nil {
		t.Errorf("same label: %v", err)
	}
	if err := c.ChangeLayerLabel("test layer", "test layer 2", false); !errors.Is(err, errdefs.ErrLabelCollision) {
		t.Errorf("collision: got %v", err)
	}
	if err := c.ChangeLayerLabel("nope", "abc", false); !errors.Is(err, errdefs.ErrLayerNotFound) {
		t.Errorf("unknown label: got %v", err)
	}
	if err := c.ChangeLayerLabel("test layer", "abc", false); err != nil {
		t.Fatal(err)
	}
	if c.At(0).Label() != "abc" {
		t.Errorf("label = %q, want abc", c.At(0).Label())
	}
	if err := c.ChangeLayerLabel("abc", "test layer 2", true); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"test layer 2", "test layer 2"}, c.Labels()); diff != "" {
		t.Errorf("forced rename keeps both layers (-want +got):\n%s", diff)
	}
	c.RelabelAt(1, "second")
	c.RelabelAt(1, "second")
	if diff := cmp.Diff([]string{"test layer 2", "second"}, c.Labels()); diff != "" {
		t.Errorf("RelabelAt (-want +got):\n%s", diff)
	}
	want := []LabelChange{
		{Old: "test layer", New: "abc"},
		{Old: "abc", New: "test layer 2"},
		{Old: "test layer 2", New: "second"},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestCompositeRemove(t *testing.T) {
	sl1 := mustLayer(t, "test layer", 0.5, WeightedShape{Shape: shapes.NewRectangle(1, 0, 10, 5, 0, 0.5), Weight: 1})
	sl2 := mustLayer(t, "test layer 2", 0.5, WeightedShape{Shape: shapes.NewRectangle(0, 1, 10, 5, math.Pi/2, 0.5), Weight: 1})
	c := mustComposite(t, sl1, sl2)

	var removed []string
	c.On(EventLayerRemoved, func(data interface{}) { removed = append(removed, data.(string)) })

	if err := c.Remove("test layer"); err != nil {
		t.Fatal(err)
	}
	if c.Contains("test layer") || c.Len() != 1 {
		t.Errorf("layer not removed: %v", c.Labels())
	}
	if err := c.Remove("test layer"); !errors.Is(err, errdefs.ErrLayerNotFound) {
		t.Errorf("second remove: got %v", err)
	}

	// removing the last shape drops the layer
	if err := sl2.RemoveShape(0); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("empty layer kept: %v", c.Labels())
	}
	if diff := cmp.Diff([]string{"test layer", "test layer 2"}, removed); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestCompositeGeometryEvents(t *testing.T) {
	sl := mustLayer(t, "test layer", 0.5, ellipse(43, 12, 10, 15, 0))
	c := mustComposite(t, sl)
	var labels []interface{}
	c.On(EventGeometryChanged, func(data interface{}) { labels = append(labels, data) })

	sl.Translate(geometry.Point2D{X: 1})
	c.Rotate(0.3, nil)
	if diff := cmp.Diff([]interface{}{"test layer", ""}, labels); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestCompositePointSignature(t *testing.T) {
	tests := []struct {
		name string
		a, b shapes.Shape
	}{
		{"circle", shapes.NewCircle(1, 0, 7, 0, 0.5), shapes.NewCircle(0, 1, 7, -math.Pi/2, 0.5)},
		{"ellipse", shapes.NewEllipse(1, 0, 10, 5, 0, 0.5), shapes.NewEllipse(0, 1, 10, 5, math.Pi/2, 0.5)},
		{"rectangle", shapes.NewRectangle(1, 0, 10, 5, 0, 0.5), shapes.NewRectangle(0, 1, 10, 5, math.Pi/2, 0.5)},
		{"polygon", mustPolygon(t, [][]float64{{0, 0}, {0, 1}, {2, 1}}), mustPolygon(t, [][]float64{{1, 1}, {2, 1}, {2, -1}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc1 := mustComposite(t, mustLayer(t, "test layer", 0.5, WeightedShape{Shape: tt.a, Weight: 1}))
			sc2 := mustComposite(t, mustLayer(t, "test layer 2", 0.5, WeightedShape{Shape: tt.b, Weight: 1}))
			if sc1.Equal(sc2) {
				t.Error("composites with different layers are equal")
			}
			if !sc1.GeometryIdenticalTo(sc2) {
				a, _ := sc1.PointSignature()
				b, _ := sc2.PointSignature()
				t.Errorf("signatures differ:\n%v\n%v", mat.Formatted(a), mat.Formatted(b))
			}
		})
	}
}

func mustPolygon(t *testing.T, coords [][]float64) shapes.Shape {
	t.Helper()
	pts, err := shapes.PointsFromSlices(coords)
	if err != nil {
		t.Fatal(err)
	}
	p, err := shapes.NewPolygon(pts, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCompositeGeometryNotIdentical(t *testing.T) {
	sc1 := mustComposite(t, mustLayer(t, "a", 0.5, ellipse(1, 0, 10, 5, 0)))
	sc2 := mustComposite(t, mustLayer(t, "a", 0.5, ellipse(1, 0, 10, 6, 0)))
	if sc1.GeometryIdenticalTo(sc2) {
		t.Error("different axes reported identical")
	}
	if NewComposite().GeometryIdenticalTo(NewComposite()) {
		t.Error("empty composites reported identical")
	}
	if sc1.GeometryIdenticalTo(nil) {
		t.Error("nil composite reported identical")
	}
	sc3 := mustComposite(t,
		mustLayer(t, "a", 0.5, ellipse(1, 0, 10, 5, 0)),
		mustLayer(t, "b", 0.5, ellipse(1, 0, 10, 5, 0)),
	)
	if sc1.GeometryIdenticalTo(sc3) {
		t.Error("different layer counts reported identical")
	}
}

func TestCompositeRotateTranslateInvariance(t *testing.T) {
	sc := mustComposite(t,
		mustLayer(t, "a", 0.5, ellipse(10, 3, 10, 5, 0.2)),
		mustLayer(t, "b", 0.5, WeightedShape{Shape: shapes.NewRectangle(-4, 8, 6, 2, 1, 0.5), Weight: 1}),
	)
	moved := sc.Copy()
	moved.Rotate(1.1, nil)
	moved.Translate(geometry.Point2D{X: -3, Y: 17})
	if !sc.GeometryIdenticalTo(moved) {
		t.Error("rigid motion changed the geometry signature")
	}
	if sc.Equal(moved) {
		t.Error("moved composite still equal to original")
	}

	pos := sc.Position()
	sc.Rotate(0.7, nil)
	got := sc.Position()
	if math.Abs(got.X-pos.X) > 1e-9 || math.Abs(got.Y-pos.Y) > 1e-9 {
		t.Errorf("rotation about the position moved it: %v -> %v", pos, got)
	}
}

func TestCompositeString(t *testing.T) {
	c := mustComposite(t,
		mustLayer(t, "test layer", 0.5, WeightedShape{Shape: shapes.NewRectangle(1, 0, 10, 5, 0, 0.5), Weight: 1}),
		mustLayer(t, "test layer 2", 0.5, ellipse(1, 0, 12, 10, 0)),
	)
	s := c.String()
	if !strings.Contains(s, "Ellipse") || !strings.Contains(s, "Rectangle") {
		t.Errorf("String() = %q", s)
	}
}

func TestCompositeJSON(t *testing.T) {
	poly := mustPolygon(t, [][]float64{{0, 0}, {0, 1}, {2, 1}})
	sc := mustComposite(t,
		mustLayer(t, "notochord", 0.5, ellipse(43, 12, 10, 15, 0.3), WeightedShape{Shape: poly, Weight: -1}),
		mustLayer(t, "central canal", 0.5, WeightedShape{Shape: shapes.NewCircle(36.8, 20, 1.8, 0, 0.5), Weight: 1}),
	)
	sc.At(1).Color = [3]int{123, 124, 125}

	raw, err := json.Marshal(sc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `["Polygon",{"points":[[0,0],[0,1],[2,1]],"point_um":0.5},-1]`) {
		t.Errorf("unexpected geometry encoding: %s", raw)
	}

	got := NewComposite()
	if err := json.Unmarshal(raw, got); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(sc) {
		t.Errorf("round trip differs:\n%s\n%s", sc, got)
	}
	if got.At(1).Color != [3]int{123, 124, 125} {
		t.Errorf("color = %v", got.At(1).Color)
	}
	circle, _ := got.At(1).Shape(0)
	if c, ok := circle.(*shapes.Circle); !ok || c.R != 1.8 || c.X != 36.8 {
		t.Errorf("shape = %#v", circle)
	}
}

func TestCompositeSetStateErrors(t *testing.T) {
	sc := mustComposite(t, mustLayer(t, "a", 0.5, ellipse(1, 0, 10, 5, 0)))
	bad := []string{
		`{"layers":[{"label":"x","point_um":0.5,"geometry":[["Triangle",{},1]],"color":[0,0,0]}]}`,
		`{"layers":[{"label":"x","point_um":0.5,"geometry":[],"color":[0,0,0]}]}`,
		`{"layers":[{"label":"x","point_um":0.5,"geometry":[["Circle",{"r":3,"point_um":0.5},1]],"color":[0,0,0]},` +
			`{"label":"x","point_um":0.5,"geometry":[["Circle",{"r":3,"point_um":0.5},1]],"color":[0,0,0]}]}`,
	}
	for _, in := range bad {
		if err := json.Unmarshal([]byte(in), sc); err == nil {
			t.Errorf("no error for %s", in)
		}
	}
	if sc.Len() != 1 || sc.At(0).Label() != "a" {
		t.Errorf("failed decode modified the composite: %v", sc.Labels())
	}
}

func TestCompositeExtractData(t *testing.T) {
	ds := newFakeSource(16, 16)
	sc := mustComposite(t,
		mustLayer(t, "a", 1, WeightedShape{Shape: shapes.NewCircle(4, 4, 2, 0, 1), Weight: 1}),
		mustLayer(t, "b", 1, WeightedShape{Shape: shapes.NewCircle(10, 10, 3, 0, 1), Weight: 1}),
	)
	data, err := sc.ExtractData(ds, []string{"index"})
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2 || data[0].Label != "a" || data[1].Label != "b" {
		t.Fatalf("unexpected layer data: %+v", data)
	}
	if len(data[1].Channels["index"]) <= len(data[0].Channels["index"]) {
		t.Errorf("larger circle extracted fewer values")
	}
}

func makeComposite(t *testing.T, n int) *Composite {
	t.Helper()
	c := NewComposite()
	for i := 0; i < n; i++ {
		l := mustLayer(t, fmt.Sprintf("layer %d", i), 0.5, ellipse(float64(10*i), 5, 10, 15, 0))
		if err := c.Append(l); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func TestLayerDataFiniteChannels(t *testing.T) {
	ld := LayerData{Label: "a", Channels: map[string][]float64{
		"x": {1, math.NaN(), math.Inf(1), math.Inf(-1), 2.5},
	}}
	got := ld.FiniteChannels()["x"]
	var vals []interface{}
	for _, v := range got {
		if v == nil {
			vals = append(vals, nil)
		} else {
			vals = append(vals, *v)
		}
	}
	if diff := cmp.Diff([]interface{}{1.0, nil, nil, nil, 2.5}, vals); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
	if _, err := json.Marshal(got); err != nil {
		t.Errorf("marshal: %v", err)
	}
}

func TestStackAdd(t *testing.T) {
	sc1, sc2, sc3, sc4 := makeComposite(t, 1), makeComposite(t, 2), makeComposite(t, 2), makeComposite(t, 2)
	scs1 := NewStack(sc1, sc2)
	scs2 := NewStack(sc3, sc4)
	if scs1.Equal(scs2) {
		t.Error("sanity check: stacks should differ")
	}

	scs3 := scs2.Concat(scs1)
	if scs3.Len() != 4 || scs2.Len() != 2 {
		t.Fatalf("Concat lengths: %d, %d", scs3.Len(), scs2.Len())
	}
	for i, want := range []*Composite{sc3, sc4, sc1, sc2} {
		if !scs3.At(i).Equal(want) {
			t.Errorf("composite %d differs", i)
		}
	}

	scs2.Extend(scs1)
	if scs2.Len() != 4 || scs2.At(2) != sc1 || scs2.At(3) != sc2 {
		t.Error("Extend did not append the composites")
	}

	scs2.Clear()
	if scs2.Len() != 0 {
		t.Errorf("Clear left %d composites", scs2.Len())
	}
}

func TestStackMean(t *testing.T) {
	s := NewStack()
	m, err := s.Mean()
	if err != nil || m.Len() != 0 {
		t.Errorf("empty stack mean: %v, %v", m, err)
	}

	sc := makeComposite(t, 2)
	s.Append(sc)
	m, err = s.Mean()
	if err != nil {
		t.Fatal(err)
	}
	if m == sc || !m.Equal(sc) {
		t.Error("single mean should be an equal copy")
	}

	s.Append(makeComposite(t, 1))
	if _, err := s.Mean(); !errors.Is(err, errdefs.ErrMeanNotImplemented) {
		t.Errorf("multi mean: got %v", err)
	}
}

func TestStackTransform(t *testing.T) {
	s := NewStack(makeComposite(t, 1), makeComposite(t, 2))
	before := s.Position()
	s.Translate(geometry.Point2D{X: 2, Y: -1})
	after := s.Position()
	if math.Abs(after.X-before.X-2) > 1e-9 || math.Abs(after.Y-before.Y+1) > 1e-9 {
		t.Errorf("Translate moved %v -> %v", before, after)
	}
	s.Rotate(0.5, nil)
	rot := s.Position()
	if math.Abs(rot.X-after.X) > 1e-9 || math.Abs(rot.Y-after.Y) > 1e-9 {
		t.Errorf("Rotate about the stack position moved it: %v -> %v", after, rot)
	}
}

func TestStackJSON(t *testing.T) {
	s := NewStack(makeComposite(t, 1), makeComposite(t, 2))
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), `{"composites":[{"layers":`) {
		t.Errorf("unexpected encoding: %s", raw)
	}
	got := NewStack()
	if err := json.Unmarshal(raw, got); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(s) {
		t.Error("round trip differs")
	}
}
