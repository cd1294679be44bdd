package tui

import (
	"testing"

	"daviscore/internal/event"
)

func TestAccumulateSumsAcrossContainers(t *testing.T) {
	m := Model{}
	c1 := &event.Container{Polarity: &event.Packet{Position: 5}}
	c2 := &event.Container{Frame: &event.Packet{Position: 2}, IMU6: &event.Packet{Position: 1}}

	m.accumulate(c1)
	m.accumulate(c2)

	if m.grandTotal.Polarity != 5 || m.grandTotal.Frame != 2 || m.grandTotal.IMU6 != 1 {
		t.Fatalf("unexpected totals: %+v", m.grandTotal)
	}
	if m.windowTotal.Polarity != 5 {
		t.Fatalf("unexpected window total: %+v", m.windowTotal)
	}
}

func TestSummaryTextFormat(t *testing.T) {
	m := Model{}
	m.accumulate(&event.Container{Polarity: &event.Packet{Position: 3}})
	got := m.summaryText()
	want := "polarity=3 special=0 frame=0 imu6=0"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
