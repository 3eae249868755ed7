// Package advisor asks a hosted language model for crop advice and pest identification.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"
)

var (
	ErrMissingAPIKey      = errors.New("advisor: model API key not configured")
	ErrSoilTypeRequired   = errors.New("advisor: soil type is required")
	ErrInvalidImage       = errors.New("advisor: invalid image")
	ErrInvalidModelOutput = errors.New("advisor: invalid model output")
)

const defaultMaxImageBytes = 8 << 20

// Generator produces a JSON document that conforms to schema.
type Generator interface {
	GenerateJSON(ctx context.Context, req Request) ([]byte, error)
}

// Request is one model call. Image is optional.
type Request struct {
	Prompt string
	Image  *Image
	Schema *genai.Schema
}

type Image struct {
	MIMEType string
	Data     []byte
}

type Config struct {
	Timeout       time.Duration
	MaxImageBytes int
}

type CropRecommendations struct {
	Crops      []string `json:"crop_recommendations" validate:"min=1,dive,required"`
	Fertilizer string   `json:"fertilizer_recommendations" validate:"required"`
	Pesticide  string   `json:"pesticide_recommendations" validate:"required"`
}

type PestDetection struct {
	Detected   string  `json:"detected" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Advice     string  `json:"advice" validate:"required"`
}

type Advisor struct {
	gen Generator
	cfg Config
}

func New(cfg Config, gen Generator) (*Advisor, error) {
	if gen == nil {
		return nil, errors.New("advisor: generator is nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	return &Advisor{gen: gen, cfg: cfg}, nil
}

// RecommendCrops asks for crops, fertilizer and pesticide advice for a location and soil texture.
func (a *Advisor) RecommendCrops(ctx context.Context, loc entities.Location, soilType string) (CropRecommendations, error) {
	soilType = strings.TrimSpace(soilType)
	if soilType == "" || soilType == string(soiltexture.Unclassified) {
		return CropRecommendations{}, ErrSoilTypeRequired
	}
	if err := model.Validate(loc); err != nil {
		return CropRecommendations{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	raw, err := a.gen.GenerateJSON(ctx, Request{
		Prompt: cropPrompt(loc, soilType),
		Schema: cropSchema,
	})
	if err != nil {
		return CropRecommendations{}, fmt.Errorf("advisor: crop recommendations: %w", err)
	}

	var out CropRecommendations
	if err := decodeOutput(raw, &out); err != nil {
		return CropRecommendations{}, err
	}
	log.Debug().Str("soil", soilType).Strs("crops", out.Crops).Msg("advisor: recommendations ready")
	return out, nil
}

// DetectPest identifies the pest shown in img and suggests a treatment.
func (a *Advisor) DetectPest(ctx context.Context, img Image) (PestDetection, error) {
	if err := a.checkImage(img); err != nil {
		return PestDetection{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	raw, err := a.gen.GenerateJSON(ctx, Request{
		Prompt: pestPrompt,
		Image:  &img,
		Schema: pestSchema,
	})
	if err != nil {
		return PestDetection{}, fmt.Errorf("advisor: pest detection: %w", err)
	}

	var out PestDetection
	if err := decodeOutput(raw, &out); err != nil {
		return PestDetection{}, err
	}
	log.Debug().Str("pest", out.Detected).Float64("confidence", out.Confidence).Msg("advisor: pest detected")
	return out, nil
}

func (a *Advisor) checkImage(img Image) error {
	if len(img.Data) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidImage)
	}
	if len(img.Data) > a.cfg.MaxImageBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidImage, len(img.Data), a.cfg.MaxImageBytes)
	}
	if !strings.HasPrefix(strings.ToLower(img.MIMEType), "image/") {
		return fmt.Errorf("%w: mime type %q", ErrInvalidImage, img.MIMEType)
	}
	return nil
}

func decodeOutput(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModelOutput, err)
	}
	if err := model.Validate(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModelOutput, err)
	}
	return nil
}
