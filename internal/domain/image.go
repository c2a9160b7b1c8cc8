package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultVariantID = "product"
	DefaultQuality   = 85
	MinQuality       = 1
	MaxQuality       = 100
)

// ProcessImageRequest is the JSON body of POST /processImage.
type ProcessImageRequest struct {
	ImageURL  string `json:"image_url"`
	VariantID string `json:"variant_id,omitempty"`
	Quality   *int   `json:"quality,omitempty"`
}

// ImageRequest is the validated, defaulted input of one pipeline run.
type ImageRequest struct {
	SourceURL string
	VariantID string
	Quality   int
}

// ImageRequest applies defaults; it does not validate.
func (r ProcessImageRequest) ImageRequest() ImageRequest {
	variant := strings.TrimSpace(r.VariantID)
	if variant == "" {
		variant = DefaultVariantID
	}
	quality := DefaultQuality
	if r.Quality != nil {
		quality = *r.Quality
	}
	return ImageRequest{
		SourceURL: strings.TrimSpace(r.ImageURL),
		VariantID: variant,
		Quality:   quality,
	}
}

// Validate rejects out-of-range quality instead of clamping it.
func (r ImageRequest) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return errors.New("image_url is required")
	}
	if strings.TrimSpace(r.VariantID) == "" {
		return errors.New("variant_id is required")
	}
	if r.Quality < MinQuality || r.Quality > MaxQuality {
		return fmt.Errorf("quality must be between %d and %d, got %d", MinQuality, MaxQuality, r.Quality)
	}
	return nil
}

type Dimensions struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Megapixels float64 `json:"megapixels"`
}

// PipelineReport describes one completed ingest. CompressionRatio is a
// percentage and is omitted when the raw artifact was empty.
type PipelineReport struct {
	ProcessedURL         string     `json:"processed_url"`
	RawURL               string     `json:"raw_url"`
	RawFilename          string     `json:"raw_filename"`
	ProcessedFilename    string     `json:"processed_filename"`
	ProcessedContentType string     `json:"processed_content_type"`
	OriginalSizeBytes    int        `json:"original_size_bytes"`
	ProcessedSizeBytes   int        `json:"processed_size_bytes"`
	CompressionRatio     *float64   `json:"compression_ratio,omitempty"`
	OriginalDimensions   Dimensions `json:"original_dimensions"`
	FinalDimensions      Dimensions `json:"final_dimensions"`
	WasResized           bool       `json:"was_resized"`
}

// Envelope is the response body shared by every JSON route.
type Envelope struct {
	Success bool   `json:"success"`
	Type    string `json:"type,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Success(typ string, data any) Envelope {
	return Envelope{Success: true, Type: typ, Data: data}
}

func Failure(err error) Envelope {
	return Envelope{Success: false, Error: err.Error()}
}
