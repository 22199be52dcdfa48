// Package datasource provides an in-memory data source: named 2D or 3D
// channels with pixel sizes, a selectable 2D view and blend settings.
package datasource

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"impose/internal/image"
	"impose/internal/logging"
	"impose/pkg/errdefs"
	"impose/pkg/flblend"
)

// ErrSignatureMismatch is reported when restored metadata was recorded for
// different data.
var ErrSignatureMismatch = errors.New("data source signature mismatch")

// SignatureMismatchError describes a signature mismatch.
type SignatureMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature verification failed for %q (expected %s, got %s)", e.Path, e.Want, e.Got)
}

func (e *SignatureMismatchError) Unwrap() error { return ErrSignatureMismatch }

// Channel is the raw input of one channel: a row-major array with a 2D or
// 3D shape. A nil Hue selects a default hue.
type Channel struct {
	Name  string
	Shape []int
	Data  []float64
	Hue   any
}

// Channel2D creates a channel from a matrix.
func Channel2D(name string, m mat.Matrix, hue any) Channel {
	r, c := m.Dims()
	return Channel{
		Name:  name,
		Shape: []int{r, c},
		Data:  mat.DenseCopyOf(m).RawMatrix().Data,
		Hue:   hue,
	}
}

// Option configures a new Source.
type Option func(*options)

type options struct {
	path         string
	signature    string
	pixelSizes   [3]float64
	autocontrast bool
}

// WithPath records the file the data was loaded from.
func WithPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithSignature sets the signature instead of hashing the channel data.
func WithSignature(sig string) Option {
	return func(o *options) { o.signature = sig }
}

// WithPixelSize sets the pixel sizes in microns (default 1, 1, NaN).
func WithPixelSize(x, y, z float64) Option {
	return func(o *options) { o.pixelSizes = [3]float64{x, y, z} }
}

// WithAutocontrast switches histogram autocontrast of the blended
// channels on or off (default on).
func WithAutocontrast(on bool) Option {
	return func(o *options) { o.autocontrast = on }
}

// Source is an in-memory DataSource. It is not safe for concurrent use.
type Source struct {
	path     string
	names    []string
	data     map[string][]float64
	meta     Metadata
	snapshot *flblend.Image

	// autocontrast is a display setting of the process, not of the data.
	autocontrast bool

	listeners []flblend.WarningListener
}

// New creates a source. All channels must have the same shape. With up
// to three channels all of them are blended, otherwise only the first.
func New(channels []Channel, opts ...Option) (*Source, error) {
	o := options{pixelSizes: [3]float64{1, 1, math.NaN()}, autocontrast: true}
	for _, opt := range opts {
		opt(&o)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("data source needs at least one channel")
	}

	shape, err := stackShape(channels[0].Shape)
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", channels[0].Name, err)
	}

	s := &Source{
		path:         o.path,
		data:         make(map[string][]float64, len(channels)),
		autocontrast: o.autocontrast,
	}
	hues := defaultHues(len(channels))
	var chcfg []ChannelConfig
	for i, ch := range channels {
		cs, err := stackShape(ch.Shape)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		if cs != shape {
			return nil, &errdefs.ShapeDimensionError{
				Shape:  ch.Shape,
				Reason: fmt.Sprintf("channel %q differs from stack shape %v", ch.Name, shape),
			}
		}
		if len(ch.Data) != shape[0]*shape[1]*shape[2] {
			return nil, &errdefs.ShapeDimensionError{
				Shape:  ch.Shape,
				Reason: fmt.Sprintf("channel %q has %d values", ch.Name, len(ch.Data)),
			}
		}
		if _, dup := s.data[ch.Name]; dup {
			return nil, fmt.Errorf("duplicate channel %q", ch.Name)
		}
		hue := ch.Hue
		if hue == nil {
			hue = hues[i]
		}
		cfg := ChannelConfig{Name: ch.Name, Hue: hue, Brightness: DefaultChannelLevel, Contrast: DefaultChannelLevel}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		s.names = append(s.names, ch.Name)
		s.data[ch.Name] = append([]float64(nil), ch.Data...)
		chcfg = append(chcfg, cfg)
	}

	selected := s.names
	if len(selected) > 3 {
		selected = selected[:1]
	}
	s.meta = Metadata{
		Blend:    BlendConfig{Mode: flblend.ModeHSV.String(), Channels: append([]string(nil), selected...)},
		Channels: chcfg,
		Slice:    defaultSlice(shape),
		Stack: StackConfig{
			Shape:      shape,
			PixelSizeX: Length(o.pixelSizes[0]),
			PixelSizeY: Length(o.pixelSizes[1]),
			PixelSizeZ: Length(o.pixelSizes[2]),
		},
		Signature: o.signature,
	}
	if err := s.meta.Stack.validate(); err != nil {
		return nil, err
	}
	if err := validateView(s.meta.Stack, s.meta.Slice); err != nil {
		return nil, err
	}
	if s.meta.Signature == "" {
		s.meta.Signature = s.hash()
	}
	return s, nil
}

// Open loads an image file into a new source.
func Open(path string) (*Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	img, err := image.Load(abs)
	if err != nil {
		return nil, err
	}
	channels := lo.Map(img.Names, func(name string, _ int) Channel {
		return Channel2D(name, img.Data[name], nil)
	})
	return New(channels,
		WithPath(abs),
		WithSignature(img.Signature),
		WithPixelSize(img.PixelSizeX, img.PixelSizeY, math.NaN()))
}

func stackShape(shape []int) ([3]int, error) {
	switch len(shape) {
	case 2:
		if shape[0] > 0 && shape[1] > 0 {
			return [3]int{shape[0], shape[1], 1}, nil
		}
	case 3:
		if shape[0] > 0 && shape[1] > 0 && shape[2] > 0 {
			return [3]int{shape[0], shape[1], shape[2]}, nil
		}
	}
	return [3]int{}, &errdefs.ShapeDimensionError{Shape: shape, Reason: "channel must be 2D or 3D"}
}

// hash returns the MD5 digest of the channel names and values.
func (s *Source) hash() string {
	h := md5.New()
	var buf [8]byte
	for _, name := range s.names {
		h.Write([]byte(name))
		for _, v := range s.data[name] {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// OnWarning registers a listener for non-fatal conditions such as a
// signature mismatch.
func (s *Source) OnWarning(fn flblend.WarningListener) {
	s.listeners = append(s.listeners, fn)
}

func (s *Source) warn(err error) {
	logging.L().Warn(err.Error(), zap.String("path", s.path))
	for _, fn := range s.listeners {
		fn(err)
	}
}

// Path returns the file the data was loaded from, if any.
func (s *Source) Path() string { return s.path }

// Signature identifies the underlying data.
func (s *Source) Signature() string { return s.meta.Signature }

// Shape returns the 3D stack shape.
func (s *Source) Shape() [3]int { return s.meta.Stack.Shape }

// Metadata returns a copy of the visualization state.
func (s *Source) Metadata() Metadata {
	m := s.meta
	m.Blend.Channels = append([]string(nil), m.Blend.Channels...)
	m.Channels = append([]ChannelConfig(nil), m.Channels...)
	return m
}

// ChannelNames returns the channel names in insertion order.
func (s *Source) ChannelNames() []string {
	return append([]string(nil), s.names...)
}

// ChannelData returns the current 2D view of a channel.
func (s *Source) ChannelData(name string) (*mat.Dense, error) {
	vol, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errdefs.ErrChannelNotFound, name)
	}
	shape := s.meta.Stack.Shape
	sl := s.meta.Slice
	a1, a2 := sl.ViewPlane[0], sl.ViewPlane[1]
	rows, cols := shape[a1], shape[a2]
	out := mat.NewDense(rows, cols, nil)
	var idx [3]int
	idx[sl.CutAxis] = sl.ViewSlice
	for i := 0; i < rows; i++ {
		idx[a1] = i
		for j := 0; j < cols; j++ {
			idx[a2] = j
			out.Set(i, j, vol[(idx[0]*shape[1]+idx[1])*shape[2]+idx[2]])
		}
	}
	return out, nil
}

// ImageShape returns the shape of the current 2D view.
func (s *Source) ImageShape() (rows, cols int) {
	shape := s.meta.Stack.Shape
	return shape[s.meta.Slice.ViewPlane[0]], shape[s.meta.Slice.ViewPlane[1]]
}

// PixelSize returns the pixel sizes of the current view in microns.
func (s *Source) PixelSize() (x, y float64) {
	sizes := s.meta.Stack.sizes()
	return sizes[s.meta.Slice.ViewPlane[0]], sizes[s.meta.Slice.ViewPlane[1]]
}

// VoxelDepth returns the pixel size along the cut axis in microns. It is
// NaN for 2D data without a known z size.
func (s *Source) VoxelDepth() float64 {
	return s.meta.Stack.sizes()[s.meta.Slice.CutAxis]
}

// ImageSizeUM returns the size of the current view in microns.
func (s *Source) ImageSizeUM() (float64, float64) {
	rows, cols := s.ImageShape()
	px, py := s.PixelSize()
	return float64(rows) * px, float64(cols) * py
}

// SetBlend changes the blend settings.
func (s *Source) SetBlend(cfg BlendConfig) error {
	for _, name := range cfg.Channels {
		if !lo.Contains(s.names, name) {
			return fmt.Errorf("%w: %q", errdefs.ErrChannelNotFound, name)
		}
	}
	s.meta.Blend = BlendConfig{Mode: cfg.Mode, Channels: append([]string(nil), cfg.Channels...)}
	s.snapshot = nil
	return nil
}

// SetSlice changes the 2D view.
func (s *Source) SetSlice(cfg SliceConfig) error {
	if err := cfg.validate(s.meta.Stack.Shape); err != nil {
		return err
	}
	if err := validateView(s.meta.Stack, cfg); err != nil {
		return err
	}
	s.meta.Slice = cfg
	s.snapshot = nil
	return nil
}

// SetPixelSize changes the pixel sizes in microns.
func (s *Source) SetPixelSize(x, y, z float64) error {
	st := s.meta.Stack
	st.PixelSizeX, st.PixelSizeY, st.PixelSizeZ = Length(x), Length(y), Length(z)
	if err := st.validate(); err != nil {
		return err
	}
	if err := validateView(st, s.meta.Slice); err != nil {
		return err
	}
	s.meta.Stack = st
	return nil
}

// SetChannel changes the display settings of a channel.
func (s *Source) SetChannel(cfg ChannelConfig) error {
	_, i, ok := lo.FindIndexOf(s.meta.Channels, func(c ChannelConfig) bool { return c.Name == cfg.Name })
	if !ok {
		return fmt.Errorf("%w: %q", errdefs.ErrChannelNotFound, cfg.Name)
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	s.meta.Channels[i] = cfg
	s.snapshot = nil
	return nil
}

// SetMetadata replaces the visualization state. The stack shape must
// match. A different signature is reported to the warning listeners and
// then adopted.
func (s *Source) SetMetadata(m Metadata) error {
	if m.Stack.Shape != s.meta.Stack.Shape {
		return &errdefs.ShapeDimensionError{
			Shape:  m.Stack.Shape[:],
			Reason: fmt.Sprintf("stack shape differs from data shape %v", s.meta.Stack.Shape),
		}
	}
	if err := m.Stack.validate(); err != nil {
		return err
	}
	if err := m.Slice.validate(m.Stack.Shape); err != nil {
		return err
	}
	if err := validateView(m.Stack, m.Slice); err != nil {
		return err
	}
	for _, c := range m.Channels {
		if !lo.Contains(s.names, c.Name) {
			return fmt.Errorf("%w: %q", errdefs.ErrChannelNotFound, c.Name)
		}
		if err := c.validate(); err != nil {
			return err
		}
	}
	for _, name := range m.Blend.Channels {
		if !lo.Contains(s.names, name) {
			return fmt.Errorf("%w: %q", errdefs.ErrChannelNotFound, name)
		}
	}

	if m.Signature != "" && m.Signature != s.meta.Signature {
		s.warn(&SignatureMismatchError{Path: s.path, Want: s.meta.Signature, Got: m.Signature})
	}
	if m.Signature == "" {
		m.Signature = s.meta.Signature
	}

	// channels missing from m keep their settings
	merged := append([]ChannelConfig(nil), s.meta.Channels...)
	for _, c := range m.Channels {
		_, i, _ := lo.FindIndexOf(merged, func(o ChannelConfig) bool { return o.Name == c.Name })
		merged[i] = c
	}
	m.Channels = merged
	m.Blend.Channels = append([]string(nil), m.Blend.Channels...)
	s.meta = m
	s.snapshot = nil
	return nil
}

// Image returns the blended image of the current view. The result is
// cached until the settings change.
func (s *Source) Image() (*flblend.Image, error) {
	if s.snapshot != nil {
		return s.snapshot, nil
	}
	fb := flblend.New()
	for _, fn := range s.listeners {
		fb.OnWarning(fn)
	}
	for _, cfg := range s.meta.Channels {
		if !lo.Contains(s.meta.Blend.Channels, cfg.Name) {
			continue
		}
		data, err := s.ChannelData(cfg.Name)
		if err != nil {
			return nil, err
		}
		err = fb.AddImage(data, cfg.Hue,
			flblend.WithBrightness(cfg.Brightness),
			flblend.WithContrast(cfg.Contrast),
			flblend.WithAutocontrast(s.autocontrast))
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", cfg.Name, err)
		}
	}
	s.snapshot = fb.Blend(flblend.ParseMode(s.meta.Blend.Mode))
	return s.snapshot, nil
}

// State is the persisted form of a source.
type State struct {
	Path     string   `json:"path"`
	Metadata Metadata `json:"metadata"`
}

// State returns the persisted form of the source.
func (s *Source) State() State {
	return State{Path: s.path, Metadata: s.Metadata()}
}

// Equal reports whether both sources have the same persisted state.
func (s *Source) Equal(other *Source) bool {
	if other == nil {
		return false
	}
	return cmp.Equal(s.State(), other.State(), cmpopts.EquateEmpty(), equateLength)
}

var equateLength = cmp.Comparer(func(a, b Length) bool {
	return a == b || (math.IsNaN(float64(a)) && math.IsNaN(float64(b)))
})
