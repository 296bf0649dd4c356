package dart

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/coastwatch-io/coastwatch/internal/hazard"
)

// maxReadingAge is how old the newest reading may be before a
// detection is suppressed. Stale data must never produce a live alert.
const maxReadingAge = 30 * time.Minute

// recentWindow is how many of the newest readings feed the
// change/time-span computation.
const recentWindow = 5

// Reading is one bottom-pressure observation from a station, in the
// station's native column units.
type Reading struct {
	At     time.Time
	Height float64
}

// Detection is a positive anomaly verdict for one station's series.
type Detection struct {
	Category     hazard.AlertCategory
	Severity     int
	Change       float64
	SpanMinutes  float64
	Instructions string
	LatestAt     time.Time
}

// Detector classifies a station's recent pressure series. It is pure
// signal classification: no state is kept between invocations, and
// each station's series is evaluated independently.
type Detector struct {
	clock clockwork.Clock
}

// NewDetector creates a detector using the real clock.
func NewDetector() *Detector {
	return &Detector{clock: clockwork.NewRealClock()}
}

// SetClock swaps the time source so tests can freeze time.
func (d *Detector) SetClock(c clockwork.Clock) { d.clock = c }

// tiers are evaluated in order; the first match wins. A change of
// exactly 50 within 15 minutes still classifies as the top tier, while
// the WATCH tier requires a change strictly above 5.
var tiers = []struct {
	minChange  float64
	inclusive  bool
	maxSpan    time.Duration
	category   hazard.AlertCategory
	severity   int
	instructed string
}{
	{50, true, 15 * time.Minute, hazard.CategoryWarning, 5,
		"Major tsunami wave detected. Evacuate coastal areas immediately and move to high ground."},
	{20, false, 20 * time.Minute, hazard.CategoryWarning, 4,
		"Tsunami wave detected. Evacuate beaches and low-lying coastal areas now."},
	{10, false, 30 * time.Minute, hazard.CategoryAdvisory, 3,
		"Unusual wave activity detected. Stay out of the water and away from the shoreline."},
	{5, false, 30 * time.Minute, hazard.CategoryWatch, 2,
		"Possible tsunami signal under evaluation. Monitor official channels for updates."},
}

// Detect evaluates a chronologically ordered series (oldest first) and
// returns a detection when the recent pressure change crosses a tier
// threshold. It returns ok=false when the series is too short, the
// newest reading is stale, or no tier matches.
func (d *Detector) Detect(readings []Reading) (Detection, bool) {
	if len(readings) < recentWindow {
		return Detection{}, false
	}

	recent := readings[len(readings)-recentWindow:]
	latest := recent[len(recent)-1]
	if d.clock.Now().Sub(latest.At) > maxReadingAge {
		return Detection{}, false
	}

	minH, maxH := recent[0].Height, recent[0].Height
	for _, r := range recent[1:] {
		if r.Height < minH {
			minH = r.Height
		}
		if r.Height > maxH {
			maxH = r.Height
		}
	}
	change := maxH - minH
	span := latest.At.Sub(recent[0].At)

	for _, tier := range tiers {
		crossed := change > tier.minChange || (tier.inclusive && change == tier.minChange)
		if crossed && span < tier.maxSpan {
			return Detection{
				Category:     tier.category,
				Severity:     tier.severity,
				Change:       change,
				SpanMinutes:  span.Minutes(),
				Instructions: tier.instructed,
				LatestAt:     latest.At,
			}, true
		}
	}
	return Detection{}, false
}
