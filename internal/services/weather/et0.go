package weather

import "math"

const solarConstant = 0.0820 // MJ m-2 min-1

// ExtraterrestrialRadiation returns daily Ra in MJ m-2 day-1 for a latitude in
// degrees and a day of the year (FAO-56, eq. 21).
func ExtraterrestrialRadiation(latDeg float64, dayOfYear int) float64 {
	phi := latDeg * math.Pi / 180
	j := 2 * math.Pi * float64(dayOfYear) / 365
	dr := 1 + 0.033*math.Cos(j)
	delta := 0.409 * math.Sin(j-1.39)

	// polar day and night clamp to 0 and pi
	x := math.Max(-1, math.Min(1, -math.Tan(phi)*math.Tan(delta)))
	ws := math.Acos(x)

	ra := 24 * 60 / math.Pi * solarConstant * dr *
		(ws*math.Sin(phi)*math.Sin(delta) + math.Cos(phi)*math.Cos(delta)*math.Sin(ws))
	return math.Max(ra, 0)
}

// HargreavesET0 returns reference evapotranspiration in mm/day.
// Ra is in MJ m-2 day-1; 0.408 converts it to mm of evaporated water.
func HargreavesET0(tmin, tmax, ra float64) float64 {
	tmean := (tmin + tmax) / 2.0
	return 0.0023 * (tmean + 17.8) * math.Sqrt(math.Max(tmax-tmin, 0)) * 0.408 * ra
}
