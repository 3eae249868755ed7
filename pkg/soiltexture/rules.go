package soiltexture

// Rule is one step of the classification cascade.
type Rule struct {
	Label     Label
	Condition string
	match     func(sand, silt, clay float64) bool
}

// Matches reports whether c satisfies the rule on its own, ignoring order.
func (r Rule) Matches(c Composition) bool { return r.match(c.Sand, c.Silt, c.Clay) }

// Regions overlap at the edges, so evaluation order decides the label.
// Inputs that fall through every rule get Loam.
var cascade = []Rule{
	{Sand, "silt + 1.5*clay < 15", func(sand, silt, clay float64) bool {
		return silt+1.5*clay < 15
	}},
	{LoamySand, "15 <= silt + 1.5*clay and silt + 2*clay < 30", func(sand, silt, clay float64) bool {
		return silt+1.5*clay >= 15 && silt+2*clay < 30
	}},
	{SandyLoam, "7 <= clay < 20 and sand > 52 and silt + 2*clay >= 30", func(sand, silt, clay float64) bool {
		return clay >= 7 && clay < 20 && sand > 52 && silt+2*clay >= 30
	}},
	{SiltLoam, "clay < 7 and silt >= 50 and silt + 2*clay >= 30", func(sand, silt, clay float64) bool {
		return clay < 7 && silt >= 50 && silt+2*clay >= 30
	}},
	{Loam, "7 <= clay < 27 and 28 <= silt < 50 and sand <= 52", func(sand, silt, clay float64) bool {
		return clay >= 7 && clay < 27 && silt >= 28 && silt < 50 && sand <= 52
	}},
	{SandyClayLoam, "20 <= clay < 35 and silt < 28 and sand > 45", func(sand, silt, clay float64) bool {
		return clay >= 20 && clay < 35 && silt < 28 && sand > 45
	}},
	{SiltyClayLoam, "27 <= clay < 40 and sand <= 20", func(sand, silt, clay float64) bool {
		return clay >= 27 && clay < 40 && sand <= 20
	}},
	{ClayLoam, "27 <= clay < 40 and 20 < sand <= 45", func(sand, silt, clay float64) bool {
		return clay >= 27 && clay < 40 && sand > 20 && sand <= 45
	}},
	{SandyClay, "clay >= 35 and sand > 45", func(sand, silt, clay float64) bool {
		return clay >= 35 && sand > 45
	}},
	{SiltyClay, "clay >= 40 and silt >= 40", func(sand, silt, clay float64) bool {
		return clay >= 40 && silt >= 40
	}},
	{Clay, "clay >= 40 and sand <= 45 and silt < 40", func(sand, silt, clay float64) bool {
		return clay >= 40 && sand <= 45 && silt < 40
	}},
}

// Rules returns the cascade in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(cascade))
	copy(out, cascade)
	return out
}

// Classify runs the cascade on c as given, without normalizing.
func Classify(c Composition) Label {
	l, _ := match(c)
	return l
}

func match(c Composition) (Label, int) {
	for i, r := range cascade {
		if r.Matches(c) {
			return r.Label, i + 1
		}
	}
	return Loam, 0
}
