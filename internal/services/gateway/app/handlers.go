package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/advisor"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"
)

func (g *Gateway) HandleWeather(c *gin.Context) {
	var q locationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if g.deps.Weather == nil {
		abortWithError(c, fmt.Errorf("weather: %w", errNotConfigured))
		return
	}
	days := q.Days
	if days == 0 {
		days = g.cfg.ForecastDays
	}

	ctx, cancel := g.withTimeout(c)
	defer cancel()
	fc, err := g.deps.Weather.Forecast(ctx, q.location(), days)
	g.metrics.observeUpstream("weather", err)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, fc)
}

func (g *Gateway) HandleClassify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx, cancel := g.withTimeout(c)
	defer cancel()

	res := g.classify(ctx, soiltexture.Composition{Sand: *req.Sand, Silt: *req.Silt, Clay: *req.Clay})
	if !finite(res.Normalized) {
		badRequest(c, errors.New("composition does not normalize to finite percentages"))
		return
	}
	g.metrics.Classifications.WithLabelValues(res.Label.String()).Inc()
	c.JSON(http.StatusOK, res)
}

// finite is false when rescaling overflowed, which JSON cannot encode.
func finite(c soiltexture.Composition) bool {
	for _, v := range []float64{c.Sand, c.Silt, c.Clay} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

// classify prefers the remote classifier and falls back to the in-process
// cascade, which gives the same answer.
func (g *Gateway) classify(ctx context.Context, comp soiltexture.Composition) soiltexture.Result {
	if g.deps.Classifier == nil {
		return soiltexture.Analyze(comp)
	}
	res, err := g.deps.Classifier.Classify(ctx, comp)
	g.metrics.observeUpstream("classifier", err)
	if err != nil {
		log.Warn().Err(err).Msg("gateway: remote classifier failed, classifying in process")
		return soiltexture.Analyze(comp)
	}
	return res
}

func (g *Gateway) HandleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if g.deps.Soil == nil {
		abortWithError(c, fmt.Errorf("soil: %w", errNotConfigured))
		return
	}
	ctx, cancel := g.withTimeout(c)
	defer cancel()

	a, err := g.deps.Soil.Analyze(ctx, soil.AnalyzeRequest{
		Location:  entities.Location{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Recommend: req.Recommend,
	})
	g.metrics.observeUpstream("soil", err)
	if err != nil {
		abortWithError(c, err)
		return
	}
	g.metrics.Classifications.WithLabelValues(a.Texture.Label.String()).Inc()
	c.JSON(http.StatusOK, a)
}

func (g *Gateway) HandleHistory(c *gin.Context) {
	if g.deps.History == nil {
		abortWithError(c, fmt.Errorf("history: %w", errNotConfigured))
		return
	}
	minutes := clampQuery(c, "minutes", g.cfg.HistoryMinutes, g.cfg.HistoryMaxMinutes)
	limit := clampQuery(c, "limit", g.cfg.HistoryLimit, g.cfg.HistoryMaxLimit)

	ctx, cancel := g.withTimeout(c)
	defer cancel()
	rows, err := g.deps.History.RecentAnalyses(ctx, minutes, limit)
	g.metrics.observeUpstream("influx", err)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if rows == nil {
		rows = []model.SoilAnalysisEvent{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Analyses: rows})
}

// clampQuery reads a positive integer parameter; missing or invalid values
// take def and large ones are capped at max.
func clampQuery(c *gin.Context, key string, def, max int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (g *Gateway) HandleRecommendations(c *gin.Context) {
	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if g.deps.Advisor == nil {
		abortWithError(c, fmt.Errorf("recommendations: %w", errNotConfigured))
		return
	}
	ctx, cancel := g.withTimeout(c)
	defer cancel()

	loc := entities.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	rec, err := g.deps.Advisor.RecommendCrops(ctx, loc, req.SoilType)
	g.metrics.observeUpstream("advisor", err)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleDetectPest takes either a multipart "image" file or a JSON body with a data URI.
func (g *Gateway) HandleDetectPest(c *gin.Context) {
	if g.deps.Advisor == nil {
		abortWithError(c, fmt.Errorf("pest detection: %w", errNotConfigured))
		return
	}
	var (
		img advisor.Image
		err error
	)
	// base64 inflates by 4/3; the extra KiB covers JSON or multipart framing
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, g.cfg.MaxUploadBytes*4/3+1024)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		img, err = g.readUpload(c)
	} else {
		var req PestRequest
		if err = c.ShouldBindJSON(&req); err == nil {
			img, err = advisor.ParseDataURI(req.PhotoDataURI)
		}
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		abortWithError(c, err)
		return
	}
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx, cancel := g.withTimeout(c)
	defer cancel()
	det, err := g.deps.Advisor.DetectPest(ctx, img)
	g.metrics.observeUpstream("advisor", err)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, det)
}

func (g *Gateway) readUpload(c *gin.Context) (advisor.Image, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return advisor.Image{}, fmt.Errorf("%w: %w", advisor.ErrInvalidImage, err)
	}
	if fh.Size > g.cfg.MaxUploadBytes {
		return advisor.Image{}, fmt.Errorf("%w: upload exceeds %d bytes", advisor.ErrInvalidImage, g.cfg.MaxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return advisor.Image{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, g.cfg.MaxUploadBytes))
	if err != nil {
		return advisor.Image{}, err
	}
	mime := fh.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return advisor.Image{MIMEType: mime, Data: data}, nil
}
