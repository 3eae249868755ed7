// Package soiltexture maps sand/silt/clay percentages to a USDA-style soil
// texture class.
package soiltexture

import "strings"

// Label is a soil texture class name.
type Label string

const (
	Sand          Label = "Sand"
	LoamySand     Label = "Loamy Sand"
	SandyLoam     Label = "Sandy Loam"
	SiltLoam      Label = "Silt Loam"
	Silt          Label = "Silt" // part of the USDA triangle, never produced by the cascade
	Loam          Label = "Loam"
	SandyClayLoam Label = "Sandy Clay Loam"
	SiltyClayLoam Label = "Silty Clay Loam"
	ClayLoam      Label = "Clay Loam"
	SandyClay     Label = "Sandy Clay"
	SiltyClay     Label = "Silty Clay"
	Clay          Label = "Clay"

	// Unclassified is returned when no soil fractions were reported.
	Unclassified Label = "Unclassified"
)

var labels = []Label{
	Sand, LoamySand, SandyLoam, SiltLoam, Silt, Loam,
	SandyClayLoam, SiltyClayLoam, ClayLoam, SandyClay, SiltyClay, Clay,
}

// Labels returns the twelve texture classes in triangle order.
func Labels() []Label {
	out := make([]Label, len(labels))
	copy(out, labels)
	return out
}

func (l Label) String() string { return string(l) }

// Slug returns a lowercase, dash separated form usable in topics and tags.
func (l Label) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(l)), " ", "-")
}

// ParseLabel accepts a label by name or slug, case-insensitively.
func ParseLabel(s string) (Label, bool) {
	s = strings.TrimSpace(s)
	for _, l := range labels {
		if strings.EqualFold(s, string(l)) || strings.EqualFold(s, l.Slug()) {
			return l, true
		}
	}
	if strings.EqualFold(s, string(Unclassified)) {
		return Unclassified, true
	}
	return "", false
}

// Composition holds particle-size fractions in percent by mass.
type Composition struct {
	Sand float64 `json:"sand"`
	Silt float64 `json:"silt"`
	Clay float64 `json:"clay"`
}

// Total is sand + silt + clay.
func (c Composition) Total() float64 { return c.Sand + c.Silt + c.Clay }

// Result is the outcome of Analyze.
type Result struct {
	Label      Label       `json:"label"`
	Rule       int         `json:"rule"` // 1-based cascade position, 0 for fallback or unclassified
	Input      Composition `json:"input"`
	Normalized Composition `json:"normalized"`
	Rescaled   bool        `json:"rescaled"`
}

// ClassifySoilTexture normalizes the triple and classifies it.
func ClassifySoilTexture(sand, silt, clay float64) Label {
	return Analyze(Composition{Sand: sand, Silt: silt, Clay: clay}).Label
}

// Analyze normalizes c and runs the cascade, reporting which rule fired.
func Analyze(c Composition) Result {
	res := Result{Input: c}
	n, ok := Normalize(c)
	if !ok {
		res.Label = Unclassified
		return res
	}
	res.Normalized = n
	res.Rescaled = n != c
	res.Label, res.Rule = match(n)
	return res
}
