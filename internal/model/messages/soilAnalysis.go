package messages

import "time"

// SoilAnalysisEvent records a location analysis requested through the dashboard.
type SoilAnalysisEvent struct {
	AnalysisID    string    `json:"analysis_id"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Texture       string    `json:"texture"`
	Rule          int       `json:"rule"`
	Sand          float64   `json:"sand"`
	Silt          float64   `json:"silt"`
	Clay          float64   `json:"clay"`
	PH            *float64  `json:"ph,omitempty"`
	OrganicCarbon *float64  `json:"soc_g_kg,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
