package app

import (
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/messages"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/weather"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type locationQuery struct {
	Lat  *float64 `form:"lat" binding:"required,gte=-90,lte=90"`
	Lon  *float64 `form:"lon" binding:"required,gte=-180,lte=180"`
	Days int      `form:"days" binding:"omitempty,gte=1,lte=14"`
}

func (q locationQuery) location() entities.Location {
	return entities.Location{Latitude: *q.Lat, Longitude: *q.Lon}
}

// ClassifyRequest carries raw fractions; they need not sum to 100.
type ClassifyRequest struct {
	Sand *float64 `json:"sand" binding:"required"`
	Silt *float64 `json:"silt" binding:"required"`
	Clay *float64 `json:"clay" binding:"required"`
}

type AnalyzeRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Recommend bool     `json:"recommend"`
}

type RecommendationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	SoilType  string   `json:"soil_type" binding:"required"`
}

type PestRequest struct {
	PhotoDataURI string `json:"photo_data_uri" binding:"required"`
}

type HistoryResponse struct {
	Analyses []messages.SoilAnalysisEvent `json:"analyses"`
}

// DashboardData is what the dashboard needs for one location. Sections that
// could not be fetched are absent and explained in Errors; Stale lists the
// sections served from the last good answer.
type DashboardData struct {
	Location entities.Location `json:"location"`
	Weather  *weather.Forecast `json:"weather,omitempty"`
	Soil     *soil.Analysis    `json:"soil,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
	Stale    []string          `json:"stale,omitempty"`
}

type BreakerState struct {
	Name  string `json:"name"`
	State string `json:"state"`
}
