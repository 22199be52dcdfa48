// Package image loads channel data from image files and encodes blended
// results.
package image

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"

	"impose/internal/logging"
)

// signatureBlockSize is the number of leading file bytes hashed into a
// file signature.
const signatureBlockSize = 65536

// Channels is the content of one image file split into named 2D channels.
type Channels struct {
	Path string
	// Names lists the channels in file order: "gray" for grayscale
	// images, otherwise "R", "G", "B" and "A" if the image has alpha.
	Names []string
	Data  map[string]*mat.Dense
	// PixelSizeX and PixelSizeY are in microns. They come from the TIFF
	// resolution tags and default to 1.
	PixelSizeX float64
	PixelSizeY float64
	// Signature is the MD5 hex digest of the first 64 KiB of the file.
	Signature string
}

// Load reads an image file. 8-bit images keep their 0-255 values and
// 16-bit images their 0-65535 values.
func Load(path string) (*Channels, error) {
	if !IsSupportedFormat(path) {
		return nil, fmt.Errorf("unsupported image format: %s", filepath.Ext(path))
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	ch := split(img)
	ch.Path = path
	ch.PixelSizeX, ch.PixelSizeY = 1, 1

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tiff" || ext == ".tif" {
		if px, py, err := tiffPixelSize(path); err == nil {
			ch.PixelSizeX, ch.PixelSizeY = px, py
		} else {
			logging.L().Debug("no TIFF resolution", zap.String("path", path), zap.Error(err))
		}
	}

	ch.Signature, err = Signature(path)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Signature returns the MD5 hex digest of the first 64 KiB of a file.
func Signature(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.CopyN(h, file, signatureBlockSize); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// split converts an image into float channels.
func split(img image.Image) *Channels {
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()
	ch := &Channels{Data: make(map[string]*mat.Dense)}

	switch src := img.(type) {
	case *image.Gray:
		d := mat.NewDense(rows, cols, nil)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				d.Set(r, c, float64(src.GrayAt(b.Min.X+c, b.Min.Y+r).Y))
			}
		}
		ch.Names = []string{"gray"}
		ch.Data["gray"] = d
		return ch
	case *image.Gray16:
		d := mat.NewDense(rows, cols, nil)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				d.Set(r, c, float64(src.Gray16At(b.Min.X+c, b.Min.Y+r).Y))
			}
		}
		ch.Names = []string{"gray"}
		ch.Data["gray"] = d
		return ch
	}

	// 16-bit colour models keep full precision, everything else is 8 bit.
	shift := uint(8)
	switch img.ColorModel() {
	case color.RGBA64Model, color.NRGBA64Model:
		shift = 0
	}
	withAlpha := true
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		withAlpha = false
	}

	ch.Names = []string{"R", "G", "B"}
	if withAlpha {
		ch.Names = append(ch.Names, "A")
	}
	planes := make([]*mat.Dense, len(ch.Names))
	for i, n := range ch.Names {
		planes[i] = mat.NewDense(rows, cols, nil)
		ch.Data[n] = planes[i]
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			px := color.NRGBA64Model.Convert(img.At(b.Min.X+c, b.Min.Y+r)).(color.NRGBA64)
			vals := [4]uint16{px.R, px.G, px.B, px.A}
			for i := range planes {
				planes[i].Set(r, c, float64(vals[i]>>shift))
			}
		}
	}
	return ch
}

// Encode writes an RGB image as PNG or, for "tif"/"tiff", as a
// deflate-compressed TIFF.
func Encode(w io.Writer, img image.Image, format string) error {
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "png":
		return png.Encode(w, img)
	case "tif", "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// Save encodes img into path, picking the format from the extension.
func Save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Encode(f, img, filepath.Ext(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// tiffPixelSize reads the resolution tags of a TIFF file and converts them
// to pixel sizes in microns. A missing axis takes the other axis' value.
func tiffPixelSize(path string) (float64, float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	// Read TIFF header to determine byte order
	header := make([]byte, 8)
	if _, err := io.ReadFull(file, header); err != nil {
		return 0, 0, err
	}

	var byteOrder binary.ByteOrder
	switch {
	case header[0] == 'I' && header[1] == 'I':
		byteOrder = binary.LittleEndian
	case header[0] == 'M' && header[1] == 'M':
		byteOrder = binary.BigEndian
	default:
		return 0, 0, fmt.Errorf("not a valid TIFF file")
	}

	ifdOffset := byteOrder.Uint32(header[4:8])
	if _, err := file.Seek(int64(ifdOffset), io.SeekStart); err != nil {
		return 0, 0, err
	}

	var numEntries uint16
	if err := binary.Read(file, byteOrder, &numEntries); err != nil {
		return 0, 0, err
	}

	var xRes, yRes float64
	var resUnit uint16 = 2 // inches

	entry := make([]byte, 12)
	for i := uint16(0); i < numEntries; i++ {
		if _, err := io.ReadFull(file, entry); err != nil {
			return 0, 0, err
		}

		tag := byteOrder.Uint16(entry[0:2])
		fieldType := byteOrder.Uint16(entry[2:4])
		valueOffset := byteOrder.Uint32(entry[8:12])

		switch tag {
		case 282: // XResolution
			if fieldType == 5 { // RATIONAL
				xRes = readTIFFRational(file, int64(valueOffset), byteOrder)
			}
		case 283: // YResolution
			if fieldType == 5 {
				yRes = readTIFFRational(file, int64(valueOffset), byteOrder)
			}
		case 296: // ResolutionUnit
			if fieldType == 3 { // SHORT
				resUnit = byteOrder.Uint16(entry[8:10])
			}
		}
	}

	if xRes == 0 && yRes == 0 {
		return 0, 0, fmt.Errorf("no resolution tags found")
	}
	if xRes == 0 {
		xRes = yRes
	}
	if yRes == 0 {
		yRes = xRes
	}

	var umPerUnit float64
	switch resUnit {
	case 2:
		umPerUnit = 25400
	case 3:
		umPerUnit = 10000
	default:
		return 0, 0, fmt.Errorf("resolution unit %d has no physical size", resUnit)
	}
	px, py := umPerUnit/xRes, umPerUnit/yRes
	if !finite(px) || !finite(py) {
		return 0, 0, fmt.Errorf("invalid pixel size (%g, %g)", px, py)
	}
	return px, py, nil
}

// readTIFFRational reads a RATIONAL value (two uint32s) at offset without
// moving the file position.
func readTIFFRational(file io.ReadSeeker, offset int64, byteOrder binary.ByteOrder) float64 {
	currentPos, _ := file.Seek(0, io.SeekCurrent)
	defer file.Seek(currentPos, io.SeekStart)

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return 0
	}
	var num, denom uint32
	if err := binary.Read(file, byteOrder, &num); err != nil {
		return 0
	}
	if err := binary.Read(file, byteOrder, &denom); err != nil {
		return 0
	}

	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// finite reports whether v is a usable pixel size.
func finite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
