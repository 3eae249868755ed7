package entities

import "fmt"

// Location is a WGS84 point supplied by the client.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Query renders the location as "lat,lon" for providers that take a single q parameter.
func (l Location) Query() string {
	return fmt.Sprintf("%.4f,%.4f", l.Latitude, l.Longitude)
}
