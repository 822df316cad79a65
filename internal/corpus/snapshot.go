package corpus

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// notAvailable stands in for any missing snapshot field.
const notAvailable = "N/A"

// MarketSnapshot is the market data fetched for one security. Fetching is
// done outside this program; snapshots arrive as YAML (or JSON) files.
type MarketSnapshot struct {
	Ticker    string    `yaml:"ticker" json:"ticker" validate:"required"`
	ShortName string    `yaml:"short_name" json:"short_name"`
	Sector    string    `yaml:"sector" json:"sector"`
	Industry  string    `yaml:"industry" json:"industry"`
	Summary   string    `yaml:"summary" json:"summary"`
	Closes    []float64 `yaml:"closes" json:"closes"`
	// MarketCap is nil when unknown.
	MarketCap *float64 `yaml:"market_cap" json:"market_cap"`
}

// LoadSnapshot reads a snapshot file. YAML is a superset of JSON, so both
// formats decode. A missing ticker is filled from fallbackTicker.
func LoadSnapshot(path, fallbackTicker string) (*MarketSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read snapshot: %w", err)
	}
	var s MarketSnapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corpus: parse snapshot %s: %w", path, err)
	}
	if s.Ticker == "" {
		s.Ticker = fallbackTicker
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("corpus: snapshot %s: %w", path, err)
	}
	return &s, nil
}

// Render formats the snapshot as the text passage stored in the finance
// collection. Closes are ordered oldest first; price lines read N/A when
// no closes are present.
func (s *MarketSnapshot) Render() string {
	lines := []string{
		"Ticker: " + s.Ticker,
		"Company: " + orNA(s.ShortName),
		"Sector: " + orNA(s.Sector),
		"Industry: " + orNA(s.Industry),
		"Summary: " + orNA(s.Summary),
	}

	if len(s.Closes) == 0 {
		lines = append(lines,
			"Last close: "+notAvailable,
			"1-year high: "+notAvailable,
			"1-year low: "+notAvailable,
			"1-year change: "+notAvailable,
		)
	} else {
		first, last := s.Closes[0], s.Closes[len(s.Closes)-1]
		high, low := first, first
		for _, c := range s.Closes {
			high = max(high, c)
			low = min(low, c)
		}
		change := notAvailable
		if first != 0 {
			change = fmt.Sprintf("%.2f%%", (last/first-1)*100)
		}
		lines = append(lines,
			"Last close: "+formatNumber(last),
			"1-year high: "+formatNumber(high),
			"1-year low: "+formatNumber(low),
			"1-year change: "+change,
		)
	}

	capText := notAvailable
	if s.MarketCap != nil {
		capText = formatNumber(*s.MarketCap)
	}
	lines = append(lines, "Market cap: "+capText)
	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

// formatNumber prints v without exponent and without trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
