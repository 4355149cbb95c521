package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"edusphere/internal/metrics"
	"edusphere/internal/school"
)

// Image is a decoded picture re-encoded as PNG.
type Image struct {
	PNG    []byte
	Width  int
	Height int
}

// DataURL returns the image as an inline data URL.
func (i *Image) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(i.PNG)
}

// ImageCache stores normalized PNG bytes. Load returns nil, nil on a miss.
type ImageCache interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// ImageFetcher downloads logos and signatures for embedding in exports.
type ImageFetcher struct {
	HTTP      *http.Client
	Cache     ImageCache
	TTL       time.Duration
	MaxWidth  int
	MaxHeight int
	MaxBytes  int64
	Log       *zap.Logger
}

// NewImageFetcher creates a fetcher. cache may be nil.
func NewImageFetcher(cache ImageCache, ttl time.Duration, log *zap.Logger) *ImageFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ImageFetcher{
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		Cache:     cache,
		TTL:       ttl,
		MaxWidth:  600,
		MaxHeight: 300,
		MaxBytes:  5 << 20,
		Log:       log,
	}
}

// Fetch downloads url, decodes JPEG, PNG or WebP, downscales it to fit the
// configured bounds and re-encodes it as PNG. Failures are *school.ImageFetchError.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	if strings.TrimSpace(url) == "" {
		return nil, &school.ImageFetchError{URL: url, Err: errors.New("no url")}
	}
	key := cacheKey(url)
	if f.Cache != nil {
		if b, err := f.Cache.Load(ctx, key); err == nil && len(b) > 0 {
			if cfg, err := png.DecodeConfig(bytes.NewReader(b)); err == nil {
				return &Image{PNG: b, Width: cfg.Width, Height: cfg.Height}, nil
			}
		}
	}

	raw, err := f.download(ctx, url)
	if err != nil {
		return nil, &school.ImageFetchError{URL: url, Err: err}
	}
	img, err := decodeImage(raw)
	if err != nil {
		return nil, &school.ImageFetchError{URL: url, Err: err}
	}
	img = downscaleIfNeeded(img, f.MaxWidth, f.MaxHeight)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &school.ImageFetchError{URL: url, Err: fmt.Errorf("encode png: %w", err)}
	}
	out := &Image{PNG: buf.Bytes(), Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}

	if f.Cache != nil && f.TTL > 0 {
		if err := f.Cache.Store(ctx, key, out.PNG, f.TTL); err != nil {
			f.Log.Warn("image cache store failed", zap.String("url", url), zap.Error(err))
		}
	}
	return out, nil
}

// Optional is Fetch for exports: any failure is logged and yields nil so the
// document is rendered without the picture.
func (f *ImageFetcher) Optional(ctx context.Context, url string) *Image {
	if f == nil || strings.TrimSpace(url) == "" {
		return nil
	}
	img, err := f.Fetch(ctx, url)
	if err != nil {
		metrics.ImageFetchFailures.Inc()
		f.Log.Warn("image omitted from export", zap.Error(err))
		return nil
	}
	return img
}

// DataURL fetches url and returns it as a data URL.
func (f *ImageFetcher) DataURL(ctx context.Context, url string) (string, error) {
	img, err := f.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return img.DataURL(), nil
}

func (f *ImageFetcher) download(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeDataURL(url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("image larger than %d bytes", limit)
	}
	return b, nil
}

func decodeDataURL(s string) ([]byte, error) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
		return nil, errors.New("unsupported data url")
	}
	return base64.StdEncoding.DecodeString(s[comma+1:])
}

func decodeImage(all []byte) (image.Image, error) {
	if len(all) == 0 {
		return nil, errors.New("empty image")
	}
	head := all
	if len(head) > 512 {
		head = head[:512]
	}
	ct := http.DetectContentType(head)
	switch {
	case strings.Contains(ct, "jpeg"):
		return jpeg.Decode(bytes.NewReader(all))
	case strings.Contains(ct, "png"):
		return png.Decode(bytes.NewReader(all))
	case strings.Contains(ct, "webp"):
		return webp.Decode(bytes.NewReader(all))
	}
	return nil, fmt.Errorf("unsupported image type %s", ct)
}

func downscaleIfNeeded(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return src
	}
	scale := 1.0
	if maxW > 0 {
		scale = math.Min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	nw := int(math.Max(1, math.Round(float64(w)*scale)))
	nh := int(math.Max(1, math.Round(float64(h)*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "edusphere:img:" + hex.EncodeToString(sum[:])
}
