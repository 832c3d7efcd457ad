package workers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	"propsync/identity"
)

const (
	maxDownloadSize     = 50 * 1024 * 1024 // 50MB
	DefaultMaxDimension = 1600
	DefaultQuality      = 82
)

var ErrNotImage = errors.New("response is not an image")

// MediaFetcher downloads image bytes from the listing CDN.
type MediaFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewMediaFetcher builds a fetcher. A zero rps disables rate limiting.
func NewMediaFetcher(client *http.Client, timeout time.Duration, rps float64) *MediaFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout > 0 {
		c := *client
		c.Timeout = timeout
		client = &c
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	return &MediaFetcher{client: client, limiter: limiter}
}

func (f *MediaFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("download status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/") {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxDownloadSize {
		return nil, fmt.Errorf("image exceeds %d bytes", maxDownloadSize)
	}
	return data, nil
}

// Transcoder normalizes downloaded images to bounded JPEGs.
type Transcoder struct {
	MaxDimension int
	Quality      int
}

func NewTranscoder(maxDimension, quality int) *Transcoder {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Transcoder{MaxDimension: maxDimension, Quality: quality}
}

// Encoded is a transcoded image. Hash covers Data, the bytes actually stored.
type Encoded struct {
	Data        []byte
	Width       int
	Height      int
	Hash        string
	ContentType string
	Ext         string
}

func (t *Transcoder) Transcode(data []byte) (*Encoded, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	img := imaging.Fit(src, t.MaxDimension, t.MaxDimension, imaging.Lanczos)
	bounds := img.Bounds()

	// JPEG has no alpha; flatten onto white
	flat := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(t.Quality)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	out := buf.Bytes()
	return &Encoded{
		Data:        out,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Hash:        identity.FingerprintBytes(out),
		ContentType: "image/jpeg",
		Ext:         ".jpg",
	}, nil
}

// MediaWorker downloads and transcodes one image.
type MediaWorker struct {
	fetcher    *MediaFetcher
	transcoder *Transcoder
}

func NewMediaWorker(fetcher *MediaFetcher, transcoder *Transcoder) *MediaWorker {
	return &MediaWorker{fetcher: fetcher, transcoder: transcoder}
}

// Process fetches url and returns the encoded image ready to store.
func (w *MediaWorker) Process(ctx context.Context, url string) (*Encoded, error) {
	data, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return w.transcoder.Transcode(data)
}
