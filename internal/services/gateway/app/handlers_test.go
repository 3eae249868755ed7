package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/messages"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/advisor"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/weather"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/upstream"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeWeather struct {
	mu   sync.Mutex
	err  error
	days int
}

func (f *fakeWeather) Forecast(_ context.Context, loc entities.Location, days int) (weather.Forecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.days = days
	if f.err != nil {
		return weather.Forecast{}, f.err
	}
	return weather.Forecast{
		Place: weather.Place{Name: fmt.Sprintf("%.1f,%.1f", loc.Latitude, loc.Longitude)},
		Days:  []weather.Day{{Date: "2025-06-21", MaxTempC: 30, MinTempC: 18, ET0: 5.69}},
	}, nil
}

func (f *fakeWeather) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeSoil struct {
	mu  sync.Mutex
	err error
	req soil.AnalyzeRequest
}

func (f *fakeSoil) Analyze(_ context.Context, req soil.AnalyzeRequest) (soil.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req = req
	if f.err != nil {
		return soil.Analysis{}, f.err
	}
	comp := soiltexture.Composition{Sand: 30, Silt: 35, Clay: 35}
	return soil.Analysis{
		ID:         "a-1",
		Location:   req.Location,
		Properties: entities.SoilProperties{Depth: "0-5cm", Composition: comp},
		Texture:    soiltexture.Analyze(comp),
	}, nil
}

func (f *fakeSoil) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeAdvisor struct {
	err error
	img advisor.Image
}

func (f *fakeAdvisor) RecommendCrops(_ context.Context, _ entities.Location, soilType string) (advisor.CropRecommendations, error) {
	if f.err != nil {
		return advisor.CropRecommendations{}, f.err
	}
	return advisor.CropRecommendations{
		Crops:      []string{"wheat", "sunflower"},
		Fertilizer: "NPK 10-20-20 for " + soilType,
		Pesticide:  "none needed",
	}, nil
}

func (f *fakeAdvisor) DetectPest(_ context.Context, img advisor.Image) (advisor.PestDetection, error) {
	f.img = img
	if f.err != nil {
		return advisor.PestDetection{}, f.err
	}
	return advisor.PestDetection{Detected: "aphids", Confidence: 0.8, Advice: "neem oil"}, nil
}

type fakeHistory struct{ minutes, limit int }

func (f *fakeHistory) RecentAnalyses(_ context.Context, minutes, limit int) ([]messages.SoilAnalysisEvent, error) {
	f.minutes, f.limit = minutes, limit
	return []messages.SoilAnalysisEvent{{AnalysisID: "a-1", Texture: "Clay Loam", Rule: 8}}, nil
}

type fakeClassifier struct{ err error }

func (f fakeClassifier) Classify(_ context.Context, c soiltexture.Composition) (soiltexture.Result, error) {
	if f.err != nil {
		return soiltexture.Result{}, f.err
	}
	return soiltexture.Analyze(c), nil
}

type fakeBreaker struct{ name, state string }

func (b fakeBreaker) Name() string  { return b.name }
func (b fakeBreaker) State() string { return b.state }

func setupTestRouter(deps Deps) (*gin.Engine, *Metrics) {
	m := NewMetrics(prometheus.NewRegistry())
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}
	return NewGateway(Config{}, deps, m).Router(), m
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	r, _ := setupTestRouter(Deps{Breakers: []Breaker{
		fakeBreaker{"weatherapi", "closed"},
		fakeBreaker{"soilgrids", "half-open"},
	}})
	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodGet, "/readyz", nil).Code)

	r, _ = setupTestRouter(Deps{Breakers: []Breaker{fakeBreaker{"soilgrids", "open"}}})
	rec := doJSON(t, r, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"open"`)
}

func TestWeather(t *testing.T) {
	w := &fakeWeather{}
	r, m := setupTestRouter(Deps{Weather: w})

	rec := doJSON(t, r, http.MethodGet, "/api/v1/weather?lat=41.9&lon=12.5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fc := decode[weather.Forecast](t, rec)
	assert.Equal(t, "41.9,12.5", fc.Place.Name)
	assert.Equal(t, weather.DefaultDays, w.days)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/weather?lat=41.9&lon=12.5&days=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, w.days)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Upstream.WithLabelValues("weather", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/v1/weather", "GET", "200")))

	for _, q := range []string{"lon=12.5", "lat=91&lon=0", "lat=0&lon=-181", "lat=abc&lon=1", "lat=1&lon=1&days=30"} {
		rec = doJSON(t, r, http.MethodGet, "/api/v1/weather?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "INVALID_REQUEST", decode[ErrorResponse](t, rec).Code, q)
	}
}

func TestUpstreamErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"breaker open", fmt.Errorf("weatherapi: %w", upstream.ErrUnavailable), http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{"provider status", &upstream.StatusError{Upstream: "weatherapi", Code: 500}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"missing key", weather.ErrMissingAPIKey, http.StatusServiceUnavailable, "NOT_CONFIGURED"},
		{"timeout", fmt.Errorf("weatherapi: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"},
		{"validation", &model.ValidationError{Fields: []string{"Latitude (lte=90)"}}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"no soil data", soil.ErrNoSoilData, http.StatusNotFound, "NO_SOIL_DATA"},
		{"other", errors.New("boom"), http.StatusBadGateway, "UPSTREAM_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, m := setupTestRouter(Deps{Weather: &fakeWeather{err: tc.err}})
			rec := doJSON(t, r, http.MethodGet, "/api/v1/weather?lat=1&lon=1", nil)
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.want, decode[ErrorResponse](t, rec).Code)

			outcome := "error"
			if errors.Is(tc.err, upstream.ErrUnavailable) {
				outcome = "unavailable"
			}
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Upstream.WithLabelValues("weather", outcome)))
		})
	}
}

func TestMissingDependencies(t *testing.T) {
	r, _ := setupTestRouter(Deps{})
	for _, c := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/weather?lat=1&lon=1"},
		{http.MethodGet, "/api/v1/soil/history"},
	} {
		rec := doJSON(t, r, c.method, c.path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, c.path)
		assert.Equal(t, "NOT_CONFIGURED", decode[ErrorResponse](t, rec).Code)
	}

	rec := doJSON(t, r, http.MethodPost, "/api/v1/soil/analyze", gin.H{"latitude": 1, "longitude": 1})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/api/v1/recommendations", gin.H{"latitude": 1, "longitude": 1, "soil_type": "Loam"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/api/v1/pests/detect", gin.H{"photo_data_uri": "data:image/png;base64,AAAA"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClassify(t *testing.T) {
	r, m := setupTestRouter(Deps{})

	cases := []struct {
		name     string
		body     gin.H
		label    soiltexture.Label
		rule     int
		rescaled bool
	}{
		{"sand", gin.H{"sand": 95, "silt": 3, "clay": 2}, soiltexture.Sand, 1, false},
		{"clay loam", gin.H{"sand": 30, "silt": 35, "clay": 35}, soiltexture.ClayLoam, 8, false},
		{"silty clay before clay", gin.H{"sand": 20, "silt": 40, "clay": 40}, soiltexture.SiltyClay, 10, false},
		{"rescaled", gin.H{"sand": 36, "silt": 42, "clay": 42}, soiltexture.ClayLoam, 8, true},
		{"all zero", gin.H{"sand": 0, "silt": 0, "clay": 0}, soiltexture.Unclassified, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, "/api/v1/soil/classify", tc.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			res := decode[soiltexture.Result](t, rec)
			assert.Equal(t, tc.label, res.Label)
			assert.Equal(t, tc.rule, res.Rule)
			assert.Equal(t, tc.rescaled, res.Rescaled)
		})
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Classifications.WithLabelValues("Clay Loam")))

	rec := doJSON(t, r, http.MethodPost, "/api/v1/soil/classify", gin.H{"sand": 30, "silt": 35})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/api/v1/soil/classify", gin.H{"sand": "a", "silt": 35, "clay": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyOverflow(t *testing.T) {
	r, m := setupTestRouter(Deps{})

	// the total cancels down to 1e-300, so rescaling leaves float64 range
	rec := doJSON(t, r, http.MethodPost, "/api/v1/soil/classify", gin.H{"sand": 1e308, "silt": -1e308, "clay": 1e-300})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "INVALID_REQUEST", body.Code)
	assert.Contains(t, body.Error, "finite")
	assert.Equal(t, 0, testutil.CollectAndCount(m.Classifications))
}

func TestClassifyRemote(t *testing.T) {
	r, m := setupTestRouter(Deps{Classifier: fakeClassifier{}})
	rec := doJSON(t, r, http.MethodPost, "/api/v1/soil/classify", gin.H{"sand": 30, "silt": 35, "clay": 35})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Upstream.WithLabelValues("classifier", "ok")))

	r, m = setupTestRouter(Deps{Classifier: fakeClassifier{err: errors.New("connection refused")}})
	rec = doJSON(t, r, http.MethodPost, "/api/v1/soil/classify", gin.H{"sand": 30, "silt": 35, "clay": 35})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, soiltexture.ClayLoam, decode[soiltexture.Result](t, rec).Label)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Upstream.WithLabelValues("classifier", "error")))
}

func TestAnalyze(t *testing.T) {
	s := &fakeSoil{}
	r, m := setupTestRouter(Deps{Soil: s})

	rec := doJSON(t, r, http.MethodPost, "/api/v1/soil/analyze", gin.H{"latitude": 41.9, "longitude": 12.5, "recommend": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decode[soil.Analysis](t, rec)
	assert.Equal(t, soiltexture.ClayLoam, a.Texture.Label)
	assert.True(t, s.req.Recommend)
	assert.Equal(t, 41.9, s.req.Location.Latitude)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues("Clay Loam")))

	rec = doJSON(t, r, http.MethodPost, "/api/v1/soil/analyze", gin.H{"latitude": 41.9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.fail(fmt.Errorf("soilgrids: %w", soil.ErrNoSoilData))
	rec = doJSON(t, r, http.MethodPost, "/api/v1/soil/analyze", gin.H{"latitude": 0, "longitude": -30})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	h := &fakeHistory{}
	r, _ := setupTestRouter(Deps{History: h})

	rec := doJSON(t, r, http.MethodGet, "/api/v1/soil/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1440, h.minutes)
	assert.Equal(t, 50, h.limit)
	assert.Len(t, decode[HistoryResponse](t, rec).Analyses, 1)

	doJSON(t, r, http.MethodGet, "/api/v1/soil/history?minutes=99999999&limit=abc", nil)
	assert.Equal(t, 43200, h.minutes)
	assert.Equal(t, 50, h.limit)

	doJSON(t, r, http.MethodGet, "/api/v1/soil/history?minutes=-5&limit=20", nil)
	assert.Equal(t, 1440, h.minutes)
	assert.Equal(t, 20, h.limit)
}

func TestRecommendations(t *testing.T) {
	adv := &fakeAdvisor{}
	r, _ := setupTestRouter(Deps{Advisor: adv})

	rec := doJSON(t, r, http.MethodPost, "/api/v1/recommendations", gin.H{"latitude": 41.9, "longitude": 12.5, "soil_type": "Clay Loam"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[advisor.CropRecommendations](t, rec)
	assert.Equal(t, []string{"wheat", "sunflower"}, out.Crops)
	assert.Contains(t, out.Fertilizer, "Clay Loam")

	rec = doJSON(t, r, http.MethodPost, "/api/v1/recommendations", gin.H{"latitude": 41.9, "longitude": 12.5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	adv.err = advisor.ErrSoilTypeRequired
	rec = doJSON(t, r, http.MethodPost, "/api/v1/recommendations", gin.H{"latitude": 41.9, "longitude": 12.5, "soil_type": "Unclassified"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	adv.err = fmt.Errorf("%w: unexpected end of JSON input", advisor.ErrInvalidModelOutput)
	rec = doJSON(t, r, http.MethodPost, "/api/v1/recommendations", gin.H{"latitude": 41.9, "longitude": 12.5, "soil_type": "Loam"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDetectPestDataURI(t *testing.T) {
	adv := &fakeAdvisor{}
	r, _ := setupTestRouter(Deps{Advisor: adv})

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/pests/detect", gin.H{"photo_data_uri": uri})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "aphids", decode[advisor.PestDetection](t, rec).Detected)
	assert.Equal(t, "image/png", adv.img.MIMEType)
	assert.Equal(t, pngHeader, adv.img.Data)

	for _, body := range []gin.H{{}, {"photo_data_uri": "http://example.com/x.png"}, {"photo_data_uri": "data:image/png,raw"}} {
		rec = doJSON(t, r, http.MethodPost, "/api/v1/pests/detect", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestDetectPestBodyCap(t *testing.T) {
	adv := &fakeAdvisor{}
	r := NewGateway(Config{MaxUploadBytes: 64}, Deps{Advisor: adv, Gatherer: prometheus.NewRegistry()}, nil).Router()

	small := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
	rec := doJSON(t, r, http.MethodPost, "/api/v1/pests/detect", gin.H{"photo_data_uri": small})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	adv.img = advisor.Image{}
	big := "data:image/png;base64," + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 4096))
	rec = doJSON(t, r, http.MethodPost, "/api/v1/pests/detect", gin.H{"photo_data_uri": big})
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decode[ErrorResponse](t, rec).Code)
	assert.Nil(t, adv.img.Data, "advisor is not called")
}

func TestDetectPestUpload(t *testing.T) {
	adv := &fakeAdvisor{}
	r, _ := setupTestRouter(Deps{Advisor: adv})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "leaf.png")
	require.NoError(t, err)
	_, err = fw.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pests/detect", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", adv.img.MIMEType)
	assert.Equal(t, pngHeader, adv.img.Data)

	// wrong field name
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	fw, err = mw.CreateFormFile("photo", "leaf.png")
	require.NoError(t, err)
	_, _ = fw.Write(pngHeader)
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/api/v1/pests/detect", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard(t *testing.T) {
	w, s := &fakeWeather{}, &fakeSoil{}
	r, _ := setupTestRouter(Deps{Weather: w, Soil: s})
	const path = "/api/v1/dashboard?lat=41.9&lon=12.5"

	rec := doJSON(t, r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decode[DashboardData](t, rec)
	require.NotNil(t, d.Weather)
	require.NotNil(t, d.Soil)
	assert.Empty(t, d.Errors)
	assert.Empty(t, d.Stale)
	assert.False(t, s.req.Recommend)

	// weather down: served from the last good answer
	w.fail(fmt.Errorf("weatherapi: %w", upstream.ErrUnavailable))
	rec = doJSON(t, r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d = decode[DashboardData](t, rec)
	require.NotNil(t, d.Weather)
	assert.Equal(t, []string{"weather"}, d.Stale)
	assert.Contains(t, d.Errors["weather"], "upstream unavailable")

	// another location has no cached weather
	rec = doJSON(t, r, http.MethodGet, "/api/v1/dashboard?lat=10&lon=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d = decode[DashboardData](t, rec)
	assert.Nil(t, d.Weather)
	assert.NotNil(t, d.Soil)
	assert.Empty(t, d.Stale)
	assert.Contains(t, d.Errors, "weather")

	s.fail(errors.New("soilgrids down"))
	rec = doJSON(t, r, http.MethodGet, "/api/v1/dashboard?lat=-10&lon=-10", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "soil: soilgrids down")

	rec = doJSON(t, r, http.MethodGet, "/api/v1/dashboard?lat=100&lon=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := NewGateway(Config{}, Deps{Gatherer: reg}, m).Router()

	doJSON(t, r, http.MethodPost, "/api/v1/soil/classify", gin.H{"sand": 95, "silt": 3, "clay": 2})
	rec := doJSON(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `agri_gateway_classifications_total{label="Sand"} 1`)
	assert.Contains(t, rec.Body.String(), `agri_gateway_requests_total{code="200",method="POST",route="/api/v1/soil/classify"} 1`)
}
