package soil

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/messages"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/advisor"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"
)

const DefaultAnalysisTopic = "soil/analysis/{texture}"

type Fetcher interface {
	Fetch(ctx context.Context, loc entities.Location) (entities.SoilProperties, error)
}

type Recommender interface {
	RecommendCrops(ctx context.Context, loc entities.Location, soilType string) (advisor.CropRecommendations, error)
}

type Store interface {
	WriteAnalysis(ctx context.Context, e messages.SoilAnalysisEvent) error
}

type AnalyzeRequest struct {
	Location  entities.Location `json:"location"`
	Recommend bool              `json:"recommend"`
}

// Analysis is the result of one location analysis.
type Analysis struct {
	ID              string                       `json:"id"`
	Location        entities.Location            `json:"location"`
	Properties      entities.SoilProperties      `json:"properties"`
	Texture         soiltexture.Result           `json:"texture"`
	Recommendations *advisor.CropRecommendations `json:"recommendations,omitempty"`
	AdviceError     string                       `json:"advice_error,omitempty"`
	Timestamp       time.Time                    `json:"timestamp"`
}

// Analyzer ties together survey data, the texture classifier and crop advice.
// Recommender, store and publisher are optional.
type Analyzer struct {
	fetcher     Fetcher
	recommender Recommender
	store       Store
	publisher   rabbitmq.IPublisher
	topic       string
	now         func() time.Time
}

func NewAnalyzer(fetcher Fetcher, rec Recommender, store Store, pub rabbitmq.IPublisher, topic string) (*Analyzer, error) {
	if fetcher == nil {
		return nil, errors.New("soil: fetcher is nil")
	}
	if topic == "" {
		topic = DefaultAnalysisTopic
	}
	return &Analyzer{
		fetcher:     fetcher,
		recommender: rec,
		store:       store,
		publisher:   pub,
		topic:       topic,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Analyze fetches the soil at the requested location and classifies its texture.
// With Recommend set it also asks for crop advice; an advice failure is reported
// in AdviceError and does not fail the analysis. Storing and publishing are best effort.
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error) {
	loc := req.Location
	if err := model.Validate(loc); err != nil {
		return Analysis{}, err
	}
	props, err := a.fetcher.Fetch(ctx, loc)
	if err != nil {
		return Analysis{}, err
	}

	res := soiltexture.Analyze(props.Composition)
	out := Analysis{
		ID:         uuid.NewString(),
		Location:   loc,
		Properties: props,
		Texture:    res,
		Timestamp:  a.now(),
	}

	if req.Recommend {
		a.advise(ctx, &out)
	}

	evt := messages.SoilAnalysisEvent{
		AnalysisID:    out.ID,
		Latitude:      loc.Latitude,
		Longitude:     loc.Longitude,
		Texture:       string(res.Label),
		Rule:          res.Rule,
		Sand:          res.Normalized.Sand,
		Silt:          res.Normalized.Silt,
		Clay:          res.Normalized.Clay,
		PH:            props.PH,
		OrganicCarbon: props.OrganicCarbon,
		Timestamp:     out.Timestamp,
	}
	if a.store != nil {
		if err := a.store.WriteAnalysis(ctx, evt); err != nil {
			log.Warn().Err(err).Str("analysis_id", out.ID).Msg("soil: analysis not stored")
		}
	}
	if a.publisher != nil {
		topic := strings.ReplaceAll(a.topic, "{texture}", res.Label.Slug())
		if err := a.publisher.PublishJSON(topic, 0, evt); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("soil: analysis not published")
		}
	}

	log.Info().
		Str("analysis_id", out.ID).
		Str("texture", string(res.Label)).
		Int("rule", res.Rule).
		Bool("rescaled", res.Rescaled).
		Msg("soil: analysis done")
	return out, nil
}

func (a *Analyzer) advise(ctx context.Context, out *Analysis) {
	switch {
	case a.recommender == nil:
		out.AdviceError = "crop advice not configured"
	case out.Texture.Label == soiltexture.Unclassified:
		out.AdviceError = "soil texture unclassified"
	default:
		rec, err := a.recommender.RecommendCrops(ctx, out.Location, string(out.Texture.Label))
		if err != nil {
			log.Warn().Err(err).Str("analysis_id", out.ID).Msg("soil: crop advice failed")
			out.AdviceError = err.Error()
			return
		}
		out.Recommendations = &rec
	}
}
