package model

import (
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/messages"
)

// Aliases exposing the common types to the services.
type (
	Location          = entities.Location
	SoilProperties    = entities.SoilProperties
	SoilSampleEvent   = messages.SoilSampleEvent
	SoilTextureEvent  = messages.SoilTextureEvent
	SoilAnalysisEvent = messages.SoilAnalysisEvent
)
