package pipeline

import (
	"context"
	"errors"
	"math"

	"github.com/dunamismax/iopbridge/internal/apperrors"
	"github.com/dunamismax/iopbridge/internal/domain"
	"github.com/dunamismax/iopbridge/internal/fetch"
	"github.com/dunamismax/iopbridge/internal/media"
	"github.com/dunamismax/iopbridge/internal/storage"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage is a state of one run. Runs only move forward; the first failure
// ends the run in StageError.
type Stage string

const (
	StageStart              Stage = "start"
	StageFetched            Stage = "fetched"
	StageRawPersisted       Stage = "raw_persisted"
	StageNormalized         Stage = "normalized"
	StageEncoded            Stage = "encoded"
	StageProcessedPersisted Stage = "processed_persisted"
	StageReported           Stage = "reported"
	StageError              Stage = "error"
)

// Failure records the last stage a failed run completed. Anything at or past
// StageRawPersisted left a raw artifact behind.
type Failure struct {
	Reached Stage
	Err     error
}

func (f *Failure) Error() string { return f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

// OrphanedRaw reports whether the failed run left a raw artifact in storage.
func (f *Failure) OrphanedRaw() bool {
	switch f.Reached {
	case StageRawPersisted, StageNormalized, StageEncoded:
		return true
	default:
		return false
	}
}

// ReachedStage returns the last completed stage of a failed run, or
// StageError when err did not come from Process.
func ReachedStage(err error) Stage {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reached
	}
	return StageError
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Image, error)
}

// ArtifactStore persists one payload and returns its public URL.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Config is fixed at construction; runs never read ambient settings.
type Config struct {
	Storage      storage.Config
	MaxDimension int
}

type Processor struct {
	cfg        Config
	fetcher    Fetcher
	store      ArtifactStore
	transcoder Transcoder
	clock      *KeyClock
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewProcessor accepts a nil store so the service can start without storage
// credentials; every run then fails its configuration check first.
func NewProcessor(cfg Config, fetcher Fetcher, store ArtifactStore, logger zerolog.Logger) *Processor {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = MaxDimension
	}
	if store == nil {
		store = unavailableStore{}
	}

	return &Processor{
		cfg:        cfg,
		fetcher:    fetcher,
		store:      store,
		transcoder: newTranscoder(),
		clock:      NewKeyClock(nil),
		logger:     logger.With().Str("component", "pipeline").Logger(),
		tracer:     otel.Tracer("iopbridge/pipeline"),
	}
}

type unavailableStore struct{}

func (unavailableStore) Put(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	return "", storage.ErrMissingConfig
}

// run carries the state of one Process call.
type run struct {
	stage  Stage
	logger zerolog.Logger
}

func (r *run) advance(next Stage) {
	r.logger.Debug().Str("from", string(r.stage)).Str("to", string(next)).Msg("stage complete")
	r.stage = next
}

func (r *run) fail(err error) (domain.PipelineReport, error) {
	return domain.PipelineReport{}, &Failure{Reached: r.stage, Err: err}
}

// Process fetches req.SourceURL, stores the raw bytes, fits the image inside
// MaxDimension, re-encodes it as WebP and stores the result. The report is
// all-or-nothing; a failure after the raw upload leaves the raw artifact in
// place.
func (p *Processor) Process(ctx context.Context, req domain.ImageRequest) (domain.PipelineReport, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	span.SetAttributes(
		attribute.String("image.variant_id", req.VariantID),
		attribute.Int("image.quality", req.Quality),
	)
	defer span.End()

	r := &run{
		stage:  StageStart,
		logger: p.logger.With().Str("variant_id", req.VariantID).Logger(),
	}

	report, err := p.process(ctx, r, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(r.stage))
		return report, err
	}
	span.SetStatus(codes.Ok, "reported")
	return report, nil
}

func (p *Processor) process(ctx context.Context, r *run, req domain.ImageRequest) (domain.PipelineReport, error) {
	if err := req.Validate(); err != nil {
		return r.fail(apperrors.Input("request.validate", err))
	}
	if err := p.cfg.Storage.Validate(); err != nil {
		return r.fail(apperrors.Config("storage.config", err))
	}

	var src fetch.Image
	err := p.step(ctx, "fetch", func(ctx context.Context) error {
		var err error
		src, err = p.fetcher.Fetch(ctx, req.SourceURL)
		return err
	})
	if err != nil {
		// The fetcher classifies its own errors; anything unclassified still
		// traces back to the caller's URL.
		if apperrors.KindOf(err) == "" {
			err = apperrors.Fetch("fetch", err)
		}
		return r.fail(err)
	}
	r.logger.Debug().Int("bytes", len(src.Data)).Str("content_type", src.ContentType).Msg("source fetched")
	r.advance(StageFetched)

	keys := NewKeys(req.VariantID, p.clock.Next(), media.ExtensionFor(src.ContentType))

	var rawURL string
	err = p.step(ctx, "store_raw", func(ctx context.Context) error {
		var err error
		rawURL, err = p.store.Put(ctx, keys.Raw, src.Data, src.ContentType)
		return err
	})
	if err != nil {
		return r.fail(apperrors.Storage("storage.put_raw", err))
	}
	r.advance(StageRawPersisted)

	var (
		frame    Frame
		original Frame
		resized  bool
	)
	err = p.step(ctx, "normalize", func(context.Context) error {
		decoded, err := Decode(src.Data)
		if err != nil {
			return apperrors.Decode("decode", err)
		}
		original = decoded
		frame, resized = FitFrame(decoded, p.cfg.MaxDimension)
		frame = NormalizeMode(frame)
		return nil
	})
	if err != nil {
		return r.fail(err)
	}
	r.logger.Debug().
		Str("mode", string(original.Mode)).
		Str("normalized_mode", string(frame.Mode)).
		Bool("resized", resized).
		Msg("image normalized")
	r.advance(StageNormalized)

	var out Transcoded
	err = p.step(ctx, "encode", func(ctx context.Context) error {
		data, err := p.transcoder.Encode(ctx, frame, req.Quality)
		if err != nil {
			return apperrors.Encode("encode.webp", err)
		}
		out = Transcoded{
			Data:        data,
			ContentType: ProcessedContentType,
			Width:       frame.Width(),
			Height:      frame.Height(),
		}
		return nil
	})
	if err != nil {
		return r.fail(err)
	}
	r.advance(StageEncoded)

	var processedURL string
	err = p.step(ctx, "store_processed", func(ctx context.Context) error {
		var err error
		processedURL, err = p.store.Put(ctx, keys.Processed, out.Data, out.ContentType)
		return err
	})
	if err != nil {
		r.logger.Warn().Str("raw_key", keys.Raw).Msg("processed upload failed, raw artifact left in place")
		return r.fail(apperrors.Storage("storage.put_processed", err))
	}
	r.advance(StageProcessedPersisted)

	report := domain.PipelineReport{
		ProcessedURL:         processedURL,
		RawURL:               rawURL,
		RawFilename:          keys.Raw,
		ProcessedFilename:    keys.Processed,
		ProcessedContentType: out.ContentType,
		OriginalSizeBytes:    len(src.Data),
		ProcessedSizeBytes:   len(out.Data),
		CompressionRatio:     CompressionRatio(len(src.Data), len(out.Data)),
		OriginalDimensions:   dimensions(original.Width(), original.Height()),
		FinalDimensions:      dimensions(out.Width, out.Height),
		WasResized:           resized,
	}
	r.advance(StageReported)
	return report, nil
}

func (p *Processor) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		return err
	}
	return nil
}

// CompressionRatio is the percentage of bytes saved, rounded to two places.
// It is nil when the original size is not positive.
func CompressionRatio(originalBytes, processedBytes int) *float64 {
	if originalBytes <= 0 {
		return nil
	}
	ratio := round2((1 - float64(processedBytes)/float64(originalBytes)) * 100)
	return &ratio
}

func dimensions(w, h int) domain.Dimensions {
	return domain.Dimensions{
		Width:      w,
		Height:     h,
		Megapixels: round2(float64(w) * float64(h) / 1_000_000),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
