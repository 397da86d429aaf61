package matcher

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Rule maps a model-code prefix to the catalog category it implies. Rules are
// evaluated in order, so more specific prefixes must come first.
type Rule struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
}

// PatternTable holds ordered prefix rules keyed by canonical brand name.
type PatternTable map[string][]Rule

var titler = cases.Title(language.English)

// CanonicalBrand normalizes brand spellings so "ski-doo", "SKI-DOO" and
// "Ski-Doo" all key the same rule set.
func CanonicalBrand(brand string) string {
	b := strings.TrimSpace(brand)
	b = strings.ReplaceAll(b, "_", "-")
	return titler.String(strings.ToLower(b))
}

// RulesFor returns the ordered rules for a brand, or nil when the brand has
// no table.
func (t PatternTable) RulesFor(brand string) []Rule {
	return t[CanonicalBrand(brand)]
}

// DefaultPatterns covers the Ski-Doo and Lynx model-code families.
func DefaultPatterns() PatternTable {
	return PatternTable{
		"Ski-Doo": {
			{Pattern: "mxz-x-rs", Category: "trail"},
			{Pattern: "mxz-x", Category: "trail"},
			{Pattern: "mxz", Category: "trail"},
			{Pattern: "summit-x", Category: "deep-snow"},
			{Pattern: "summit", Category: "deep-snow"},
			{Pattern: "freeride", Category: "deep-snow"},
			{Pattern: "backcountry", Category: "crossover"},
			{Pattern: "renegade-x", Category: "trail"},
			{Pattern: "renegade", Category: "trail"},
			{Pattern: "expedition", Category: "utility"},
			{Pattern: "skandic", Category: "utility"},
			{Pattern: "tundra", Category: "utility"},
			{Pattern: "grand-touring", Category: "touring"},
		},
		"Lynx": {
			{Pattern: "rave-re", Category: "trail"},
			{Pattern: "rave", Category: "trail"},
			{Pattern: "shredder", Category: "deep-snow"},
			{Pattern: "boondocker", Category: "deep-snow"},
			{Pattern: "xterrain", Category: "crossover"},
			{Pattern: "commander", Category: "utility"},
			{Pattern: "ranger", Category: "utility"},
			{Pattern: "adventure", Category: "touring"},
			{Pattern: "brutal", Category: "utility"},
		},
	}
}

// LoadPatterns reads a pattern table from a YAML file. The file maps brand
// names to ordered rule lists:
//
//	Ski-Doo:
//	  - pattern: mxz-x
//	    category: trail
func LoadPatterns(path string) (PatternTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "matcher: read pattern file")
	}

	raw := map[string][]Rule{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "matcher: parse pattern file")
	}

	t := make(PatternTable, len(raw))
	for brand, rules := range raw {
		for i, r := range rules {
			if strings.TrimSpace(r.Pattern) == "" {
				return nil, eris.Errorf("matcher: empty pattern for brand %q at index %d", brand, i)
			}
		}
		t[CanonicalBrand(brand)] = rules
	}
	return t, nil
}
