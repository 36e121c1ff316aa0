// Package pipeline assembles orchestrators from configuration. The CLI and
// the HTTP server share it so both run the same conversion stack.
package pipeline

import (
	"context"
	"fmt"

	"github.com/local/imgconvert/internal/config"
	"github.com/local/imgconvert/internal/converter"
	"github.com/local/imgconvert/internal/filetype"
	"github.com/local/imgconvert/internal/layered"
	"github.com/local/imgconvert/internal/mupdf"
	"github.com/local/imgconvert/internal/orchestrator"
	"github.com/local/imgconvert/internal/payload"
	"github.com/local/imgconvert/internal/rembg"
	"github.com/local/imgconvert/internal/sizing"
	"github.com/local/imgconvert/internal/storage"
	"github.com/local/imgconvert/internal/units"
)

type Builder struct {
	cfg     config.PipelineConfig
	storage storage.Storage
	remover rembg.Remover
	model   string
	order   orchestrator.RembgOrder
}

// New validates cfg and binds the shared collaborators. remover may be nil,
// which makes background removal unavailable.
func New(cfg config.PipelineConfig, store storage.Storage, remover rembg.Remover, model string) (*Builder, error) {
	order, err := orchestrator.ParseRembgOrder(cfg.RembgOrder)
	if err != nil {
		return nil, err
	}
	switch units.System(cfg.SizeSystem) {
	case "", units.IEC, units.SI:
	default:
		return nil, fmt.Errorf("size system must be IEC or SI, got %q", cfg.SizeSystem)
	}
	return &Builder{cfg: cfg, storage: store, remover: remover, model: model, order: order}, nil
}

// FromConfig builds the local and optional S3 storage and the rembg CLI
// runner described by cfg. The S3 backend is returned for readiness checks
// and is nil without a bucket.
func FromConfig(ctx context.Context, cfg config.Config) (*Builder, *storage.S3Storage, error) {
	var s3 *storage.S3Storage
	if cfg.Storage.S3.Bucket != "" {
		var err error
		s3, err = storage.NewS3(ctx, storage.S3Options{
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
			Bucket:          cfg.Storage.S3.Bucket,
		})
		if err != nil {
			return nil, nil, err
		}
	}
	routed := storage.NewRouted(storage.NewLocal(), s3)
	remover := rembg.NewCLI(cfg.Rembg.Binary, cfg.Rembg.Workers, cfg.Rembg.Timeout)
	b, err := New(cfg.Pipeline, routed, remover, rembg.LoadModelName(cfg.Rembg.ConfigPath))
	if err != nil {
		return nil, nil, err
	}
	return b, s3, nil
}

// Storage is the backend every orchestrator from this Builder reads and
// writes through.
func (b *Builder) Storage() storage.Storage { return b.storage }

// Defaults returns the pipeline configuration requests fall back to.
func (b *Builder) Defaults() config.PipelineConfig { return b.cfg }

// Orchestrator returns a new orchestrator with its own expander and
// converter factory, so rasterizer and rembg sessions are not shared
// between runs.
func (b *Builder) Orchestrator(progress orchestrator.ProgressFunc) *orchestrator.Orchestrator {
	dpi, maxPages := b.cfg.DPI, b.cfg.MaxPages
	expander := payload.NewExpander(
		func() (payload.Rasterizer, error) {
			return mupdf.NewRasterizer(mupdf.WithDPI(dpi), mupdf.WithMaxPages(maxPages)), nil
		},
		func() (payload.Flattener, error) { return layered.NewFlattener(), nil },
	)

	opts := []converter.Option{
		converter.WithPDFOptimize(b.cfg.PDFOptimize),
		converter.WithAVIFSpeed(b.cfg.AVIFSpeed),
	}
	if b.remover != nil {
		opts = append(opts, converter.WithRemover(b.remover, b.model))
	}

	return orchestrator.New(orchestrator.Dependencies{
		Storage:    b.storage,
		Expander:   expander,
		Detector:   filetype.New(),
		Factory:    converter.NewFactory(b.storage, opts...),
		Search:     sizing.DefaultOptions(),
		RembgOrder: b.order,
		Progress:   progress,
	})
}

// TargetSize parses a size string such as "50KB" using the configured unit
// system. An empty string means no target.
func (b *Builder) TargetSize(s string) (*units.TargetSize, error) {
	if s == "" {
		return nil, nil
	}
	system := units.System(b.cfg.SizeSystem)
	if system == "" {
		system = units.IEC
	}
	n, err := units.ParseSize(s, system)
	if err != nil {
		return nil, err
	}
	t, err := units.NewTargetSize(n)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
