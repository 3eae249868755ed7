package messages

import "time"

// SoilTextureEvent is published by the classifier worker on soil/texture/{field}/{probe}
// after averaging a window of samples.
type SoilTextureEvent struct {
	FieldID   string    `json:"field_id"`
	ProbeID   string    `json:"probe_id"`
	Texture   string    `json:"texture"`
	Rule      int       `json:"rule"`
	Sand      float64   `json:"sand"` // normalized
	Silt      float64   `json:"silt"`
	Clay      float64   `json:"clay"`
	Rescaled  bool      `json:"rescaled"`
	Samples   int       `json:"samples"`
	Timestamp time.Time `json:"timestamp"`
}
