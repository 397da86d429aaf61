package validate

import "strings"

// Vocabulary holds the domain value sets the specification and cross-field
// layers check against. Represented as data so new brands and option values
// are additive.
type Vocabulary struct {
	Brands []string

	// EngineDisplacements lists known displacement classes in cc.
	EngineDisplacements []int

	// TrackLengthRange bounds plausible track lengths in inches.
	TrackLengthRange [2]float64

	// StarterTypes lists known starter configurations.
	StarterTypes []string

	// DisplayTypes lists known gauge and display options.
	DisplayTypes []string

	// CategoryPriceRange bounds plausible MSRP per category in the
	// catalog's currency. Categories absent from the map are unchecked.
	CategoryPriceRange map[string][2]float64

	// YearWindow bounds acceptable model years: [min, max].
	YearWindow [2]int
}

// DefaultVocabulary covers the current Ski-Doo and Lynx line-ups.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Brands:              []string{"Ski-Doo", "Lynx"},
		EngineDisplacements: []int{600, 850, 900},
		TrackLengthRange:    [2]float64{120, 175},
		StarterTypes:        []string{"electric", "manual", "shot"},
		DisplayTypes:        []string{"4.5 digital", "7.2 digital", "7.8 wide digital", "10.25 touchscreen"},
		CategoryPriceRange: map[string][2]float64{
			"trail":     {9000, 22000},
			"deep-snow": {11000, 26000},
			"crossover": {10000, 24000},
			"utility":   {8000, 23000},
			"touring":   {10000, 25000},
		},
		YearWindow: [2]int{2000, 2027},
	}
}

func (v Vocabulary) knownBrand(brand string) bool {
	for _, b := range v.Brands {
		if strings.EqualFold(b, brand) {
			return true
		}
	}
	return false
}

func (v Vocabulary) knownDisplacement(cc int) bool {
	for _, d := range v.EngineDisplacements {
		if d == cc {
			return true
		}
	}
	return false
}

func (v Vocabulary) knownStarter(s string) bool {
	for _, k := range v.StarterTypes {
		if strings.EqualFold(k, s) {
			return true
		}
	}
	return false
}

func (v Vocabulary) knownDisplay(s string) bool {
	for _, k := range v.DisplayTypes {
		if strings.EqualFold(k, s) {
			return true
		}
	}
	return false
}
