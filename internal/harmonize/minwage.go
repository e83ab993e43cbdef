package harmonize

import "regexp"

// Brazilian minimum wage by reference year, in reais. Used when the caller
// does not supply an explicit value for the reporting period.
var defaultMinimumWage = map[string]float64{
	"2022": 1212,
	"2023": 1320,
	"2024": 1412,
	"2025": 1512,
}

var reYear = regexp.MustCompile(`20\d{2}`)

// MinimumWageForPeriod resolves the minimum wage for a period label such as
// "2022" or "2022-2023". Overrides take precedence over the built-in table;
// unknown years fall back to the 2022 value.
func MinimumWageForPeriod(period string, overrides map[string]float64) float64 {
	year := reYear.FindString(period)
	if year != "" {
		if v, ok := overrides[year]; ok {
			return v
		}
		if v, ok := defaultMinimumWage[year]; ok {
			return v
		}
	}
	return defaultMinimumWage["2022"]
}
