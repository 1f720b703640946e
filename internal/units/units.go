// Package units provides shared constants and validation for concentration
// units and display timezones.
package units

import "slices"

// Unit constants
const (
	UGM3 = "ugm3" // µg/m³, as reported by the sensor
	MGM3 = "mgm3" // mg/m³
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{UGM3, MGM3}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	return slices.Contains(ValidUnits, unit)
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "ugm3, mgm3"
}

// ConvertConcentration converts a concentration from µg/m³ to the target
// units. Unknown units are returned unchanged.
func ConvertConcentration(ugm3 float64, targetUnits string) float64 {
	switch targetUnits {
	case MGM3:
		return ugm3 / 1000
	default:
		return ugm3
	}
}

// Symbol returns the display symbol for a unit.
func Symbol(unit string) string {
	if unit == MGM3 {
		return "mg/m³"
	}
	return "µg/m³"
}
