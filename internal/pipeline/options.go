package pipeline

import (
	"strings"

	"github.com/sledworks/catalog-cli/internal/matcher"
	"github.com/sledworks/catalog-cli/internal/model"
)

// OptionRule maps a model-code token to a spring option. Rules are data so
// new option codes are additive; order matters only for overlapping tokens,
// first match per token wins.
type OptionRule struct {
	Token      string  `yaml:"token"`
	Type       string  `yaml:"type"`
	Value      string  `yaml:"value"`
	PriceDelta float64 `yaml:"price_delta,omitempty"`
}

// Option types. Tracks and suspensions are physical pre-order choices,
// colors and features are cosmetic or convenience.
const (
	OptionTrack      = "track"
	OptionSuspension = "suspension"
	OptionColor      = "color"
	OptionFeature    = "feature"
)

// DefaultOptionRules lists the spring-order codes seen in Ski-Doo and Lynx
// price lists.
func DefaultOptionRules() []OptionRule {
	return []OptionRule{
		{Token: "120", Type: OptionTrack, Value: `120"`},
		{Token: "129", Type: OptionTrack, Value: `129"`},
		{Token: "137", Type: OptionTrack, Value: `137"`},
		{Token: "141", Type: OptionTrack, Value: `141"`},
		{Token: "146", Type: OptionTrack, Value: `146"`},
		{Token: "154", Type: OptionTrack, Value: `154"`},
		{Token: "155", Type: OptionTrack, Value: `155"`},
		{Token: "165", Type: OptionTrack, Value: `165"`},
		{Token: "175", Type: OptionTrack, Value: `175"`},
		{Token: "es", Type: OptionFeature, Value: "electric start", PriceDelta: 300},
		{Token: "shot", Type: OptionFeature, Value: "SHOT starter", PriceDelta: 650},
		{Token: "qas", Type: OptionSuspension, Value: "quick adjust suspension", PriceDelta: 450},
		{Token: "smartshox", Type: OptionSuspension, Value: "Smart-Shox suspension", PriceDelta: 1200},
		{Token: "octane", Type: OptionColor, Value: "octane blue"},
		{Token: "neo", Type: OptionColor, Value: "neo mint"},
		{Token: "scandi", Type: OptionColor, Value: "scandinavian blue"},
	}
}

// DetectOptions scans a model code's tokens against the rule table and
// returns the spring options it encodes, in code order.
func DetectOptions(modelCode string, rules []OptionRule) []model.SpringOption {
	var out []model.SpringOption
	for _, tok := range codeTokens(modelCode) {
		for _, r := range rules {
			if tok == r.Token {
				out = append(out, model.SpringOption{
					Code:       tok,
					Type:       r.Type,
					Value:      r.Value,
					PriceDelta: r.PriceDelta,
				})
				break
			}
		}
	}
	return out
}

// applyCodeCustomizations writes configuration values parsed from the model
// code into specs and reports how many it applied. Code-derived values take
// precedence over inherited ones; the code describes the unit actually
// ordered.
func applyCodeCustomizations(modelCode string, specs map[string]string) int {
	applied := 0
	for _, tok := range codeTokens(modelCode) {
		switch {
		case isTrackLength(tok):
			specs["track_length"] = tok
			applied++
		case isDisplacement(tok):
			specs["displacement"] = tok
			applied++
		case tok == "etec" || tok == "e-tec":
			specs["engine_type"] = "E-TEC"
			applied++
		case tok == "ace":
			specs["engine_type"] = "ACE"
			applied++
		}
	}
	return applied
}

func codeTokens(modelCode string) []string {
	return strings.Split(matcher.Normalize(modelCode), "-")
}

// isTrackLength recognizes the track lengths sold on current platforms.
func isTrackLength(tok string) bool {
	switch tok {
	case "120", "129", "137", "141", "146", "154", "155", "165", "175":
		return true
	}
	return false
}

// isDisplacement recognizes the engine displacement classes in the lineup.
func isDisplacement(tok string) bool {
	switch tok {
	case "380", "440", "550", "600", "650", "670", "780", "800", "850", "900":
		return true
	}
	return false
}
