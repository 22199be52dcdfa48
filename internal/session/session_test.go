package session

import (
	"errors"
	"image"
	"image/png"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"impose/internal/datasource"
	imgio "impose/internal/image"
	"impose/internal/version"
	"impose/pkg/errdefs"
	"impose/pkg/geometry"
	"impose/pkg/shapes"
	"impose/pkg/structure"
)

func writeGray(t *testing.T, path string, seed uint8) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewGray(image.Rect(0, 0, 8, 6))
	for i := range img.Pix {
		img.Pix[i] = seed + uint8(i)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func memSource(t *testing.T, offset, pixelSize float64) *datasource.Source {
	t.Helper()
	data := make([]float64, 20)
	for i := range data {
		data[i] = float64(i) + offset
	}
	ds, err := datasource.New([]datasource.Channel{{Name: "a", Shape: []int{4, 5}, Data: data}},
		datasource.WithPixelSize(pixelSize, pixelSize, math.NaN()))
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

// cell returns a composite with a "cell" ellipse and a "nucleus" circle.
func cell(t *testing.T) *structure.Composite {
	t.Helper()
	membrane, err := structure.NewLayer("cell", 1,
		[]structure.WeightedShape{{Shape: shapes.NewEllipse(40, 30, 20, 12, 0.3, 1), Weight: 1}},
		[3]int{255, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	nucleus, err := structure.NewLayer("nucleus", 1,
		[]structure.WeightedShape{{Shape: shapes.NewCircle(42, 31, 5, 0, 1), Weight: 1}},
		[3]int{0, 0, 255})
	if err != nil {
		t.Fatal(err)
	}
	sc, err := structure.CompositeOf(membrane, nucleus)
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

func TestUpdateCompositesSwappedLabels(t *testing.T) {
	s := New()
	s.Collect.Append(memSource(t, 0, 1), cell(t))
	s.Colocalize.Sources = []*datasource.Source{memSource(t, 1, 1)}
	if err := s.Colocalize.UpdateComposites(); err != nil {
		t.Fatal(err)
	}
	manual := s.Colocalize.Manual[0]

	ref := s.Stack.At(0)
	for _, rename := range [][2]string{{"cell", "tmp"}, {"nucleus", "cell"}, {"tmp", "nucleus"}} {
		if err := ref.ChangeLayerLabel(rename[0], rename[1], false); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Colocalize.UpdateComposites(); err != nil {
		t.Fatal(err)
	}
	if s.Colocalize.Manual[0] != manual {
		t.Fatal("composite was replaced")
	}
	if diff := cmp.Diff([]string{"nucleus", "cell"}, manual.Labels()); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
}

func TestCollectAppend(t *testing.T) {
	s := New()
	if !s.Collect.Append(memSource(t, 0, 1), cell(t)) {
		t.Fatal("first source rejected")
	}
	if s.Collect.Append(memSource(t, 0, 1), nil) {
		t.Error("duplicate source accepted")
	}
	if !s.Collect.Append(memSource(t, 1, 1), nil) {
		t.Error("distinct source rejected")
	}
	if len(s.Collect.Sources) != 2 || s.Stack.Len() != 2 {
		t.Fatalf("sources = %d, composites = %d", len(s.Collect.Sources), s.Stack.Len())
	}
	if s.Stack.At(1).Len() != 0 {
		t.Error("default composite is not empty")
	}

	s.Collect.Clear()
	if len(s.Collect.Sources) != 0 || s.Stack.Len() != 0 {
		t.Error("Clear left data behind")
	}
}

func TestColocalizeAppend(t *testing.T) {
	s := New()
	s.Collect.Append(memSource(t, 0, 1), cell(t))

	if err := s.Colocalize.Append(memSource(t, 5, 0.5), nil); err != nil {
		t.Fatal(err)
	}
	sc := s.Colocalize.Manual[0]
	if pum, ok := sc.PointUM(); !ok || pum != 0.5 {
		t.Errorf("PointUM() = %g, %v", pum, ok)
	}
	if !sc.GeometryIdenticalTo(s.Stack.At(0)) {
		t.Error("mean composite changed geometry")
	}
	if sc == s.Stack.At(0) {
		t.Error("manual composite aliases the stack")
	}

	s.Collect.Append(memSource(t, 9, 1), cell(t))
	if err := s.Colocalize.Append(memSource(t, 6, 1), nil); !errors.Is(err, errdefs.ErrMeanNotImplemented) {
		t.Errorf("got %v, want ErrMeanNotImplemented", err)
	}
}

func TestUpdateComposites(t *testing.T) {
	s := New()
	if err := s.Colocalize.UpdateComposites(); err != nil {
		t.Fatalf("no sources: %v", err)
	}

	s.Collect.Append(memSource(t, 0, 1), cell(t))
	s.Colocalize.Sources = []*datasource.Source{memSource(t, 1, 0.5), memSource(t, 2, 2)}
	if err := s.Colocalize.UpdateComposites(); err != nil {
		t.Fatal(err)
	}
	if len(s.Colocalize.Manual) != 2 {
		t.Fatalf("got %d manual composites", len(s.Colocalize.Manual))
	}
	for i, want := range []float64{0.5, 2} {
		if pum, _ := s.Colocalize.Manual[i].PointUM(); pum != want {
			t.Errorf("composite %d: PointUM() = %g, want %g", i, pum, want)
		}
	}

	// user adjustments survive as long as the geometry is unchanged
	moved := s.Colocalize.Manual[1]
	moved.Translate(geometry.Point2D{X: 3, Y: -2})

	ref := s.Stack.At(0)
	if err := ref.ChangeLayerLabel("cell", "membrane", false); err != nil {
		t.Fatal(err)
	}
	ref.At(1).Color = [3]int{0, 255, 0}
	if err := s.Colocalize.UpdateComposites(); err != nil {
		t.Fatal(err)
	}
	if s.Colocalize.Manual[1] != moved {
		t.Error("adjusted composite was replaced")
	}
	for i, sc := range s.Colocalize.Manual {
		if diff := cmp.Diff([]string{"membrane", "nucleus"}, sc.Labels()); diff != "" {
			t.Errorf("composite %d labels (-want +got):\n%s", i, diff)
		}
		if sc.At(1).Color != [3]int{0, 255, 0} {
			t.Errorf("composite %d color = %v", i, sc.At(1).Color)
		}
	}

	// a geometry change resets all manual composites
	extra, err := structure.NewLayer("vacuole", 1,
		[]structure.WeightedShape{{Shape: shapes.NewCircle(30, 25, 3, 0, 1), Weight: 1}},
		[3]int{0, 255, 255})
	if err != nil {
		t.Fatal(err)
	}
	if err := ref.Append(extra); err != nil {
		t.Fatal(err)
	}
	if err := s.Colocalize.UpdateComposites(); err != nil {
		t.Fatal(err)
	}
	if s.Colocalize.Manual[1] == moved || s.Colocalize.Manual[1].Len() != 3 {
		t.Error("manual composites were not reset")
	}
}

func TestFindFile(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "a", "img.png")
	second := filepath.Join(root, "b", "img.png")
	writeGray(t, first, 0)
	writeGray(t, second, 100)
	sig, err := imgio.Signature(second)
	if err != nil {
		t.Fatal(err)
	}

	got, err := FindFile("img.png", []string{filepath.Join(root, "missing"), root}, "")
	if err != nil || got != first {
		t.Errorf("without signature: %q, %v", got, err)
	}
	got, err = FindFile("img.png", []string{root}, sig)
	if err != nil || got != second {
		t.Errorf("with signature: %q, %v", got, err)
	}

	_, err = FindFile("img.png", []string{root}, "peter")
	var nf *FileNotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("got %v, want FileNotFoundError", err)
	}
	if !strings.Contains(err.Error(), "peter") {
		t.Errorf("error lacks signature: %v", err)
	}
}

func buildSession(t *testing.T, dir string) *Session {
	t.Helper()
	writeGray(t, filepath.Join(dir, "data", "a.png"), 0)
	writeGray(t, filepath.Join(dir, "data", "b.png"), 50)

	s := New()
	a, err := s.Open(filepath.Join(dir, "data", "a.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.SetChannel(datasource.ChannelConfig{Name: "gray", Hue: "#00FF00", Brightness: 90, Contrast: 140}); err != nil {
		t.Fatal(err)
	}
	s.Collect.Append(a, cell(t))

	b, err := s.Open(filepath.Join(dir, "data", "b.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Colocalize.Append(b, nil); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	s := buildSession(t, dir)
	path := filepath.Join(dir, "session.json")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"structure composite stack"`, `"structure composites manual"`, `"version": "` + version.Version + `"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("session file lacks %s", key)
		}
	}

	loaded := New()
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if !loaded.Equal(s) {
		t.Errorf("loaded session differs:\n%s", cmp.Diff(s.State(), loaded.State(), equateLength))
	}
	if loaded.Collect.stack != loaded.Stack || loaded.Colocalize.stack != loaded.Stack {
		t.Error("schemes do not share the stack")
	}

	loaded.Clear()
	if loaded.Equal(s) || loaded.Stack.Len() != 0 || len(loaded.Colocalize.Manual) != 0 {
		t.Error("Clear left data behind")
	}
}

func TestLoadRelocated(t *testing.T) {
	dir := t.TempDir()
	s := buildSession(t, dir)
	path := filepath.Join(dir, "session.json")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(dir, "data"), filepath.Join(dir, "archive", "data")); err != nil {
		t.Fatal(err)
	}

	loaded := New()
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "archive", "data", "a.png")}
	if diff := cmp.Diff(want, loaded.Collect.Paths()); diff != "" {
		t.Errorf("collect paths (-want +got):\n%s", diff)
	}
	if got := loaded.Colocalize.Paths(); len(got) != 1 || filepath.Base(got[0]) != "b.png" {
		t.Errorf("colocalize paths = %v", got)
	}

	if err := os.Remove(filepath.Join(dir, "archive", "data", "a.png")); err != nil {
		t.Fatal(err)
	}
	before := loaded.State()
	if err := loaded.Load(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("got %v, want a not-found error", err)
	}
	if !cmp.Equal(before, loaded.State(), equateLength) {
		t.Error("failed load modified the session")
	}
}
