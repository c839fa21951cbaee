package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jcrd/bedjetd/internal/bedjet"
	"github.com/jcrd/bedjetd/internal/bedjet/protocol"
)

// gatherValue scrapes the registry and returns the value of a single
// unlabeled metric.
func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
		return m.GetCounter().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCollectorReflectsState(t *testing.T) {
	state := bedjet.NewStateModel()
	c := NewCollector(state, 30*time.Second)

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	if got := gatherValue(t, reg, "bedjet_connected"); got != 0 {
		t.Errorf("bedjet_connected = %v before any notification, want 0", got)
	}

	state.Apply(protocol.DeviceStatus{
		Mode:          protocol.ModeHeat,
		CurrentTemp:   27.5,
		TargetTemp:    30,
		FanPercent:    50,
		TimeRemaining: time.Hour,
	})

	checks := map[string]float64{
		"bedjet_connected":                   1,
		"bedjet_state_version":               1,
		"bedjet_current_temperature_celsius": 27.5,
		"bedjet_target_temperature_celsius":  30,
		"bedjet_fan_percent":                 50,
		"bedjet_time_remaining_seconds":      3600,
	}
	for name, want := range checks {
		if got := gatherValue(t, reg, name); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestCollectorCountsEvents(t *testing.T) {
	state := bedjet.NewStateModel()
	c := NewCollector(state, 30*time.Second)

	c.SessionStarted()
	c.SessionStarted()
	c.SessionReady()
	c.SessionFailed(errors.New("gatt timeout"))
	c.NotificationDecoded()
	c.DecodeError(protocol.ErrMalformedFrame)
	c.CommandCompleted(bedjet.OutcomeWritten)
	c.CommandCompleted(bedjet.OutcomeSuperseded)

	if got := testutil.ToFloat64(c.sessionsStarted); got != 2 {
		t.Errorf("sessions started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.sessionsFailed); got != 1 {
		t.Errorf("sessions failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.commands.WithLabelValues("written")); got != 1 {
		t.Errorf("commands written = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.commands.WithLabelValues("superseded")); got != 1 {
		t.Errorf("commands superseded = %v, want 1", got)
	}
}

func TestCollectorModeLabel(t *testing.T) {
	state := bedjet.NewStateModel()
	c := NewCollector(state, 30*time.Second)
	state.Apply(protocol.DeviceStatus{Mode: protocol.ModeCool, FanPercent: 100})

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	expected := `
# HELP bedjet_mode Active operating mode (1 for the reported mode)
# TYPE bedjet_mode gauge
bedjet_mode{mode="cool"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "bedjet_mode"); err != nil {
		t.Error(err)
	}
}
