// Locale profile selection via golang.org/x/text/language, grounded on
// lookatitude-beluga-ai's go.mod pulling in golang.org/x/text for BCP-47
// handling elsewhere in the pack; this is its home in the tone engine
// (spec.md §4.4 "map navigator.language through a static table; fall back to
// the language prefix, then to US").
package tone

import (
	"golang.org/x/text/language"
)

// Profile groups the three progress tones a locale defines
// (spec.md §3 "Locale profile = {ringback, busy, error}").
type Profile struct {
	Ringback Definition
	Busy     Definition
	Error    Definition
}

var profiles = map[language.Region]Profile{
	region("GB"): ukProfile(),
	region("US"): usProfile(),
	region("AU"): auProfile(),
	region("FR"): frProfile(),
	region("JP"): jpProfile(),
}

var euFallback = euProfile()

func region(code string) language.Region {
	r, err := language.ParseRegion(code)
	if err != nil {
		panic(err)
	}
	return r
}

func ukProfile() Profile {
	return Profile{
		Ringback: Definition{Frequencies: []float64{400, 450}, Cadence: Cadence{OnMs: 400, OffMs: 200, Pattern: []int{400, 200, 400, 2000}}, Volume: 0.3},
		Busy:     Definition{Frequencies: []float64{400}, Cadence: Cadence{OnMs: 375, OffMs: 375}, Volume: 0.3},
		Error:    Definition{Frequencies: []float64{400}, Cadence: Cadence{OnMs: 400, OffMs: 350, Pattern: []int{400, 350, 400, 350, 400, 1750}}, Volume: 0.3},
	}
}

func usProfile() Profile {
	return Profile{
		Ringback: Definition{Frequencies: []float64{440, 480}, Cadence: Cadence{OnMs: 2000, OffMs: 4000}, Volume: 0.3},
		Busy:     Definition{Frequencies: []float64{480, 620}, Cadence: Cadence{OnMs: 500, OffMs: 500}, Volume: 0.3},
		Error:    Definition{Frequencies: []float64{480, 620}, Cadence: Cadence{OnMs: 250, OffMs: 250}, Volume: 0.3},
	}
}

func auProfile() Profile {
	return Profile{
		Ringback: Definition{Frequencies: []float64{400, 425}, Cadence: Cadence{OnMs: 400, OffMs: 200, Pattern: []int{400, 200, 400, 2000}}, Volume: 0.3},
		Busy:     Definition{Frequencies: []float64{425}, Cadence: Cadence{OnMs: 375, OffMs: 375}, Volume: 0.3},
		Error:    Definition{Frequencies: []float64{425}, Cadence: Cadence{OnMs: 375, OffMs: 375}, Volume: 0.3},
	}
}

func frProfile() Profile {
	return Profile{
		Ringback: Definition{Frequencies: []float64{440}, Cadence: Cadence{OnMs: 1500, OffMs: 3500}, Volume: 0.3},
		Busy:     Definition{Frequencies: []float64{440}, Cadence: Cadence{OnMs: 500, OffMs: 500}, Volume: 0.3},
		Error:    Definition{Frequencies: []float64{440}, Cadence: Cadence{OnMs: 500, OffMs: 500}, Volume: 0.3},
	}
}

func jpProfile() Profile {
	return Profile{
		Ringback: Definition{Frequencies: []float64{400, 15}, Cadence: Cadence{OnMs: 1000, OffMs: 2000}, Volume: 0.3},
		Busy:     Definition{Frequencies: []float64{400}, Cadence: Cadence{OnMs: 500, OffMs: 500}, Volume: 0.3},
		Error:    Definition{Frequencies: []float64{400}, Cadence: Cadence{OnMs: 500, OffMs: 500}, Volume: 0.3},
	}
}

func euProfile() Profile {
	return Profile{
		Ringback: Definition{Frequencies: []float64{425}, Cadence: Cadence{OnMs: 1000, OffMs: 4000}, Volume: 0.3},
		Busy:     Definition{Frequencies: []float64{425}, Cadence: Cadence{OnMs: 500, OffMs: 500}, Volume: 0.3},
		Error:    Definition{Frequencies: []float64{425}, Cadence: Cadence{OnMs: 200, OffMs: 200}, Volume: 0.3},
	}
}

// ProfileForLocale maps a BCP-47 tag (e.g. "en-GB", "fr", "ja-JP") to a
// Profile, falling back to the base language's most common region (fr, ja,
// en), then to the EU profile for a fixed list of European languages, then
// to US.
func ProfileForLocale(tag string) Profile {
	t, err := language.Parse(tag)
	if err != nil {
		return profiles[region("US")]
	}
	base, _ := t.Base()
	tagRegion, confidence := t.Region()
	if confidence != language.No {
		if p, ok := profiles[tagRegion]; ok {
			return p
		}
	}
	switch base.String() {
	case "fr":
		return profiles[region("FR")]
	case "ja":
		return profiles[region("JP")]
	case "en":
		return profiles[region("US")]
	}
	if isEULanguage(base.String()) {
		return euFallback
	}
	return profiles[region("US")]
}

func isEULanguage(base string) bool {
	switch base {
	case "de", "es", "it", "nl", "pt", "pl", "sv", "da", "fi", "el", "cs", "ro", "hu":
		return true
	}
	return false
}
