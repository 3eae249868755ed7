package advisor

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
)

func cropPrompt(loc entities.Location, soilType string) string {
	return fmt.Sprintf(`You are an agricultural advisor. Based on the farmer's location and soil type, recommend crops, fertilizers and pesticides.

Location: latitude %.4f, longitude %.4f
Soil type: %s

Recommend the crops best suited to this location and soil. Give specific fertilizer and pesticide advice for those crops.
Reply with a JSON object holding crop_recommendations, fertilizer_recommendations and pesticide_recommendations.`,
		loc.Latitude, loc.Longitude, soilType)
}

const pestPrompt = `You identify crop pests and recommend treatments.

Look at the attached photo and reply with:
- detected: the name of the pest
- confidence: a score between 0 and 1 for the identification
- advice: the recommended treatment`

var cropSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"crop_recommendations": {
			Type:        genai.TypeArray,
			Description: "Crops suited to the location and soil type.",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
		"fertilizer_recommendations": {
			Type:        genai.TypeString,
			Description: "Fertilizer advice for the recommended crops.",
		},
		"pesticide_recommendations": {
			Type:        genai.TypeString,
			Description: "Pesticide advice for the recommended crops.",
		},
	},
	Required: []string{"crop_recommendations", "fertilizer_recommendations", "pesticide_recommendations"},
}

var pestSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"detected":   {Type: genai.TypeString, Description: "Name of the detected pest."},
		"confidence": {Type: genai.TypeNumber, Description: "Certainty of the identification, 0 to 1."},
		"advice":     {Type: genai.TypeString, Description: "Recommended treatment."},
	},
	Required: []string{"detected", "confidence", "advice"},
}
