package entities

import "github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"

// SoilProperties is the topsoil profile reported by a soil survey, in conventional units.
type SoilProperties struct {
	Depth         string                  `json:"depth"`
	Composition   soiltexture.Composition `json:"composition"`        // %
	PH            *float64                `json:"ph,omitempty"`       // pH in water
	OrganicCarbon *float64                `json:"soc_g_kg,omitempty"` // g/kg
	Missing       []string                `json:"missing,omitempty"`  // properties with no value at this point
}
