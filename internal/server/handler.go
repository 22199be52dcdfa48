package server

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"impose/internal/datasource"
	imgio "impose/internal/image"
	"impose/internal/logging"
	"impose/internal/overlay"
	"impose/pkg/errdefs"
	"impose/pkg/flblend"
	"impose/pkg/structure"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type extractResponse struct {
	Success bool          `json:"success"`
	Layers  []layerValues `json:"layers"`
}

// layerValues holds extracted values per channel. Non-finite values are
// encoded as null.
type layerValues struct {
	Label    string                `json:"label"`
	Channels map[string][]*float64 `json:"channels"`
}

func fail(c *gin.Context, status int, message string, err error) {
	resp := errorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
		if status >= http.StatusInternalServerError {
			logging.L().Error(message, zap.Error(err))
		} else {
			logging.L().Debug(message, zap.Error(err))
		}
	}
	c.JSON(status, resp)
}

// statusFor maps domain errors to client errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrInvalidHue),
		errors.Is(err, errdefs.ErrShapeDimension),
		errors.Is(err, errdefs.ErrUnsupportedShape),
		errors.Is(err, errdefs.ErrScaleMismatch),
		errors.Is(err, errdefs.ErrLabelCollision),
		errors.Is(err, errdefs.ErrChannelNotFound),
		errors.Is(err, errdefs.ErrEmptyGeometry):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func uploadStatus(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// upload holds the channel files of one request on disk.
type upload struct {
	dir   string
	paths []string
	sums  []string
}

func (u *upload) cleanup() {
	if err := os.RemoveAll(u.dir); err != nil {
		logging.L().Warn("failed to delete temp dir", zap.String("dir", u.dir), zap.Error(err))
	}
}

// saveUploads stores the files of a multipart field in a temp dir. The
// original extension is kept so the decoder can be picked.
func saveUploads(c *gin.Context, field string) (*upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	files := form.File[field]
	if len(files) == 0 {
		return nil, fmt.Errorf("no %q file uploaded", field)
	}
	dir, err := os.MkdirTemp("", "impose-upload-")
	if err != nil {
		return nil, err
	}
	u := &upload{dir: dir}
	for i, fh := range files {
		if !imgio.IsSupportedFormat(fh.Filename) {
			u.cleanup()
			return nil, fmt.Errorf("unsupported image format: %s", filepath.Ext(fh.Filename))
		}
		// file names become channel names, so keep them distinct per slot
		name := filepath.Base(fh.Filename)
		if err := os.Mkdir(filepath.Join(dir, strconv.Itoa(i)), 0o755); err != nil {
			u.cleanup()
			return nil, err
		}
		path := filepath.Join(dir, strconv.Itoa(i), name)
		sum, err := saveFile(fh, path)
		if err != nil {
			u.cleanup()
			return nil, err
		}
		u.paths = append(u.paths, path)
		u.sums = append(u.sums, sum)
	}
	return u, nil
}

// saveFile copies an uploaded file to path and returns its MD5.
func saveFile(fh *multipart.FileHeader, path string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(dst, h), src); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// parseHue turns a form value into a hue: a number is a hue angle,
// anything else a hex string.
func parseHue(s string) any {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

func formFloat(c *gin.Context, key string) (float64, bool, error) {
	raw := c.PostForm(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%s must be a positive number, got %q", key, raw)
	}
	return v, true, nil
}

// openUpload builds a data source from the "channel" files of the
// request. Form values "hue" (repeatable), "pixel_size_x" and
// "pixel_size_y" override the defaults.
func (s *Server) openUpload(c *gin.Context, u *upload) (*datasource.Source, error) {
	var hues []any
	for _, h := range c.PostFormArray("hue") {
		hues = append(hues, parseHue(h))
	}
	src, err := datasource.OpenFiles(c.Request.Context(), u.paths, hues,
		datasource.WithAutocontrast(s.cfg.Blend.Autocontrast))
	if err != nil {
		return nil, err
	}
	px, py := src.PixelSize()
	x, okX, err := formFloat(c, "pixel_size_x")
	if err != nil {
		return nil, err
	}
	y, okY, err := formFloat(c, "pixel_size_y")
	if err != nil {
		return nil, err
	}
	if okX {
		px = x
	}
	if okY {
		py = y
	}
	if err := src.SetPixelSize(px, py, src.VoxelDepth()); err != nil {
		return nil, err
	}
	return src, nil
}

// blend renders the uploaded channels into one image. Form values:
// channel (files), hue (per channel), mode (hsv|rgb) and format
// (png|tiff).
func (s *Server) blend(c *gin.Context) {
	u, err := saveUploads(c, "channel")
	if err != nil {
		fail(c, uploadStatus(err), "failed to read uploaded channels", err)
		return
	}
	defer u.cleanup()

	mode := strings.ToLower(c.DefaultPostForm("mode", s.cfg.Blend.Mode))
	format := strings.ToLower(c.DefaultPostForm("format", "png"))
	contentType, ok := map[string]string{"png": "image/png", "tif": "image/tiff", "tiff": "image/tiff"}[format]
	if !ok {
		fail(c, http.StatusBadRequest, "unsupported output format", fmt.Errorf("format %q", format))
		return
	}

	ctx := c.Request.Context()
	cacheKey := blendKey(u.sums, c.PostFormArray("hue"), mode, format, s.cfg.Blend.Autocontrast)
	if s.cache != nil {
		data, err := s.cache.Get(ctx, cacheKey)
		if err != nil {
			logging.L().Warn("failed to get cache", zap.Error(err))
		}
		if data != nil {
			logging.L().Info("cache hit", zap.String("cache_key", cacheKey))
			c.Header("X-Cache", "hit")
			c.Data(http.StatusOK, contentType, data)
			return
		}
	}

	src, err := s.openUpload(c, u)
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to open channels", err)
		return
	}
	if err := src.SetBlend(datasource.BlendConfig{Mode: mode, Channels: src.ChannelNames()}); err != nil {
		fail(c, statusFor(err), "failed to select channels", err)
		return
	}
	img, err := src.Image()
	if err != nil {
		fail(c, statusFor(err), "failed to blend channels", err)
		return
	}
	var buf bytes.Buffer
	if err := imgio.Encode(&buf, img.ToNRGBA(), format); err != nil {
		fail(c, http.StatusInternalServerError, "failed to encode image", err)
		return
	}

	logging.L().Info("blended",
		zap.Int("channels", len(src.ChannelNames())),
		zap.String("mode", flblend.ParseMode(mode).String()),
		zap.Int("bytes", buf.Len()))

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, buf.Bytes()); err != nil {
			logging.L().Warn("failed to set cache", zap.Error(err))
		}
	}
	c.Header("X-Cache", "miss")
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func blendKey(sums, hues []string, mode, format string, autocontrast bool) string {
	h := md5.New()
	for _, s := range sums {
		io.WriteString(h, s)
	}
	fmt.Fprintf(h, "|%s|%s|%s|%t", strings.Join(hues, ","), flblend.ParseMode(mode), format, autocontrast)
	return hex.EncodeToString(h.Sum(nil))
}

// readComposite decodes the "composite" form value or file.
func readComposite(c *gin.Context) (*structure.Composite, error) {
	var raw []byte
	if v := c.PostForm("composite"); v != "" {
		raw = []byte(v)
	} else {
		fh, err := c.FormFile("composite")
		if err != nil {
			return nil, fmt.Errorf("no composite given: %w", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if raw, err = io.ReadAll(f); err != nil {
			return nil, err
		}
	}
	sc := structure.NewComposite()
	if err := json.Unmarshal(raw, sc); err != nil {
		return nil, fmt.Errorf("failed to decode composite: %w", err)
	}
	return sc, nil
}

// extract applies a composite to the uploaded channels and returns the
// values inside every layer.
func (s *Server) extract(c *gin.Context) {
	u, err := saveUploads(c, "channel")
	if err != nil {
		fail(c, uploadStatus(err), "failed to read uploaded channels", err)
		return
	}
	defer u.cleanup()

	sc, err := readComposite(c)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid composite", err)
		return
	}
	src, err := s.openUpload(c, u)
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to open channels", err)
		return
	}
	var channels []string
	if names := c.PostFormArray("extract"); len(names) > 0 {
		channels = names
	}
	data, err := sc.ExtractData(src, channels)
	if err != nil {
		fail(c, statusFor(err), "failed to extract data", err)
		return
	}

	resp := extractResponse{Success: true, Layers: make([]layerValues, 0, len(data))}
	for _, ld := range data {
		resp.Layers = append(resp.Layers, layerValues{Label: ld.Label, Channels: ld.FiniteChannels()})
	}
	c.JSON(http.StatusOK, resp)
}

// overlay draws a composite on top of the blended channels as SVG.
func (s *Server) overlay(c *gin.Context) {
	u, err := saveUploads(c, "channel")
	if err != nil {
		fail(c, uploadStatus(err), "failed to read uploaded channels", err)
		return
	}
	defer u.cleanup()

	sc, err := readComposite(c)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid composite", err)
		return
	}
	src, err := s.openUpload(c, u)
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to open channels", err)
		return
	}
	mode := c.DefaultPostForm("mode", s.cfg.Blend.Mode)
	if err := src.SetBlend(datasource.BlendConfig{Mode: mode, Channels: src.ChannelNames()}); err != nil {
		fail(c, statusFor(err), "failed to select channels", err)
		return
	}
	img, err := src.Image()
	if err != nil {
		fail(c, statusFor(err), "failed to blend channels", err)
		return
	}

	zoom := 1
	if raw := c.PostForm("zoom"); raw != "" {
		if zoom, err = strconv.Atoi(raw); err != nil {
			fail(c, http.StatusBadRequest, "invalid zoom", err)
			return
		}
	}
	var buf bytes.Buffer
	err = overlay.WriteSVG(&buf, sc, src,
		overlay.WithTitle(c.DefaultPostForm("title", "impose")),
		overlay.WithBase(img.ToNRGBA()),
		overlay.WithZoom(zoom))
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to render overlay", err)
		return
	}
	c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
}
