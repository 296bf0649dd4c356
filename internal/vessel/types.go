package vessel

import "fmt"

// AIS ship-type base classes (ITU-R M.1371 table 53). Entries cover
// the codes seen in practice; anything else renders as "Unknown (n)".
var shipTypeNames = map[int]string{
	0:  "Not available",
	20: "Wing in ground",
	30: "Fishing",
	31: "Towing",
	32: "Towing (long)",
	33: "Dredging",
	34: "Diving ops",
	35: "Military ops",
	36: "Sailing",
	37: "Pleasure craft",
	40: "High speed craft",
	50: "Pilot vessel",
	51: "Search and rescue",
	52: "Tug",
	53: "Port tender",
	54: "Anti-pollution",
	55: "Law enforcement",
	58: "Medical transport",
	60: "Passenger",
	70: "Cargo",
	80: "Tanker",
	90: "Other",
}

// hazardCategory maps the second digit of hazardous cargo codes
// (71-74 cargo, 81-84 tanker) to the IMO hazard letter.
var hazardCategory = map[int]string{1: "A", 2: "B", 3: "C", 4: "D"}

// TypeNameFromCode renders an AIS ship-type code as a display name.
// Decade codes fall back to their base class (65 is still Passenger);
// hazardous-cargo codes append the hazard letter.
func TypeNameFromCode(code int) string {
	if code < 0 {
		return fmt.Sprintf("Unknown (%d)", code)
	}
	if name, ok := shipTypeNames[code]; ok {
		return name
	}

	base := (code / 10) * 10
	name, ok := shipTypeNames[base]
	if !ok {
		return fmt.Sprintf("Unknown (%d)", code)
	}

	if base == 70 || base == 80 {
		if letter, ok := hazardCategory[code%10]; ok {
			return fmt.Sprintf("%s (Hazard %s)", name, letter)
		}
	}
	return name
}

// Navigational status codes that imply a vessel type when no static
// data has been seen yet.
const (
	navStatusFishing = 7
	navStatusSailing = 8
)

// TypeNameFromNavStatus infers a coarse vessel type from the
// navigational-status code of a position report.
func TypeNameFromNavStatus(status int) string {
	switch status {
	case navStatusFishing:
		return "Fishing"
	case navStatusSailing:
		return "Sailing"
	default:
		return "Unknown"
	}
}
