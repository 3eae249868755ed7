package messages

import "time"

// SoilSampleEvent is a single probe reading published on soil/sample/{field}/{probe}.
type SoilSampleEvent struct {
	FieldID   string    `json:"field_id" validate:"required"`
	ProbeID   string    `json:"probe_id" validate:"required"`
	Sand      float64   `json:"sand" validate:"gte=0,lte=100"`
	Silt      float64   `json:"silt" validate:"gte=0,lte=100"`
	Clay      float64   `json:"clay" validate:"gte=0,lte=100"`
	Timestamp time.Time `json:"timestamp"`
}
