package converter

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/imgconvert/internal/format"
	"github.com/local/imgconvert/internal/rembg"
	"github.com/local/imgconvert/internal/result"
)

// BackgroundRemoved strips the background with rembg and then encodes through
// an inner PNG or AVIF converter.
type BackgroundRemoved struct {
	inner   Converter
	remover rembg.Remover
	model   string

	mu      sync.Mutex
	session *rembg.Session
}

// NewBackgroundRemoved wraps inner. The rembg session for model is created on
// first use and kept for the lifetime of the converter.
func NewBackgroundRemoved(inner Converter, remover rembg.Remover, model string) *BackgroundRemoved {
	return &BackgroundRemoved{inner: inner, remover: remover, model: model}
}

func (c *BackgroundRemoved) Format() format.Format { return c.inner.Format() }

// Inner returns the wrapped encoder.
func (c *BackgroundRemoved) Inner() Converter { return c.inner }

func (c *BackgroundRemoved) getSession() (*rembg.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}
	s, err := c.remover.NewSession(c.model)
	if err != nil {
		return nil, err
	}
	c.session = s
	return s, nil
}

// RemoveBackground returns data as a PNG with its background removed.
func (c *BackgroundRemoved) RemoveBackground(ctx context.Context, data []byte) ([]byte, error) {
	s, err := c.getSession()
	if err != nil {
		return nil, err
	}
	out, err := c.remover.Remove(ctx, data, s, true, false)
	if err != nil {
		log.Error().Err(err).Str("model", s.Model).Msg("background removal failed")
		return nil, err
	}
	return out, nil
}

func (c *BackgroundRemoved) EncodeToBytes(data []byte) ([]byte, error) {
	cut, err := c.RemoveBackground(context.Background(), data)
	if err != nil {
		return nil, err
	}
	return c.inner.EncodeToBytes(cut)
}

func (c *BackgroundRemoved) Convert(ctx context.Context, data []byte, source, dest string) result.Result[Details] {
	cut, err := c.RemoveBackground(ctx, data)
	if err != nil {
		return result.Failure[Details](err)
	}
	return c.inner.Convert(ctx, cut, source, dest)
}
