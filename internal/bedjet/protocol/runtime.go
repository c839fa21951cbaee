package protocol

import (
	"math"
	"time"
)

// V2 hardware does not report the maximum runtime in status frames, so it
// has to be derived from the target temperature and fan speed. Hotter and
// faster settings shorten the permitted run.
type fanRule struct {
	fanLimit int
	hours    int
}

type runtimeRule struct {
	tempThreshold float64 // degrees Celsius, inclusive
	fanRules      []fanRule
}

var runtimeTable = []runtimeRule{
	{33.5, []fanRule{{100, 12}}},
	{34.0, []fanRule{{70, 12}, {100, 4}}},
	{34.5, []fanRule{{60, 12}, {100, 4}}},
	{35.5, []fanRule{{50, 12}, {100, 4}}},
	{36.5, []fanRule{{20, 12}, {40, 6}, {100, 4}}},
	{37.5, []fanRule{{30, 6}, {50, 4}, {100, 2}}},
	{38.5, []fanRule{{20, 6}, {30, 4}, {50, 2}, {100, 1}}},
	{39.5, []fanRule{{20, 6}, {30, 4}, {40, 2}, {100, 1}}},
	{math.Inf(1), []fanRule{{20, 4}, {40, 2}, {100, 1}}},
}

// MaximumRuntime returns the longest run the device permits at the given
// target temperature (Celsius) and fan percentage. Only needed for V2
// hardware; V3 reports the limit in every status frame.
func MaximumRuntime(tempCelsius float64, fanPercent int) time.Duration {
	for _, rule := range runtimeTable {
		if tempCelsius > rule.tempThreshold {
			continue
		}
		for _, fr := range rule.fanRules {
			if fanPercent <= fr.fanLimit {
				return time.Duration(fr.hours) * time.Hour
			}
		}
	}
	return time.Hour
}
