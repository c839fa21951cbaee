package bedjet

import "time"

// Default limiter tuning.
const (
	DefaultTemperatureDelta = 1.0
	DefaultTemperatureTime  = 15 * time.Second
	DefaultEndTimeDelta     = 5 * time.Second
)

// TemperatureLimiter suppresses small, rapid fluctuations from the
// fast-reporting temperature sensor. A new reading is accepted when it
// moved by at least MinDelta degrees, or MinTime passed since the last
// accepted update. An identical reading resets the timer so elapsed time
// alone cannot force an update.
type TemperatureLimiter struct {
	MinDelta float64
	MinTime  time.Duration

	temperature float64
	lastUpdated time.Time
	primed      bool
}

// Update processes a reading taken at now and returns the value to report:
// the new temperature if accepted, the previously accepted one otherwise.
func (l *TemperatureLimiter) Update(temperature float64, now time.Time) float64 {
	minDelta := l.MinDelta
	if minDelta <= 0 {
		minDelta = DefaultTemperatureDelta
	}
	minTime := l.MinTime
	if minTime <= 0 {
		minTime = DefaultTemperatureTime
	}

	accept := func() float64 {
		l.temperature = temperature
		l.lastUpdated = now
		l.primed = true
		return temperature
	}

	if !l.primed {
		return accept()
	}
	if l.temperature == temperature {
		return accept() // reset timer to further reduce jitter
	}
	if diff := temperature - l.temperature; diff >= minDelta || -diff >= minDelta {
		return accept()
	}
	if now.Sub(l.lastUpdated) >= minTime {
		return accept()
	}
	return l.temperature
}

// EndTimeLimiter stabilizes the end time computed from the remaining-time
// countdown. Remaining-time reports wobble by a second or two between
// notifications; without damping the derived end time would jitter on
// every heartbeat.
type EndTimeLimiter struct {
	MinDelta time.Duration

	endTime time.Time
}

// Update returns the stabilized end time for a remaining duration observed
// at now, or the zero time when nothing is running.
func (l *EndTimeLimiter) Update(remaining time.Duration, now time.Time) time.Time {
	minDelta := l.MinDelta
	if minDelta <= 0 {
		minDelta = DefaultEndTimeDelta
	}

	old := l.endTime

	// Nothing running and nothing left over to expire.
	if remaining == 0 && (old.IsZero() || !old.After(now)) {
		return old
	}

	next := now.Add(remaining)
	switch {
	case old.IsZero():
		l.endTime = next
	case !old.After(now) && remaining > 0: // new run after expiration
		l.endTime = next
	default:
		diff := next.Sub(old)
		if diff >= minDelta || -diff >= minDelta {
			l.endTime = next
		}
	}
	return l.endTime
}
