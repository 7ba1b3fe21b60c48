package state

import (
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/model"
)

// ConfidenceFor maps the age of the last update to a confidence level.
func ConfidenceFor(age time.Duration) model.Confidence {
	switch {
	case age < time.Minute:
		return model.ConfidenceHigh
	case age < 5*time.Minute:
		return model.ConfidenceMedium
	case age < time.Hour:
		return model.ConfidenceLow
	}
	return model.ConfidenceUncertain
}

func confidenceAt(now, lastUpdate time.Time, inferred bool) model.Confidence {
	if lastUpdate.IsZero() {
		return model.ConfidenceUncertain
	}
	c := ConfidenceFor(now.Sub(lastUpdate))
	if inferred && c > model.ConfidenceUncertain {
		return model.ConfidenceUncertain
	}
	return c
}
