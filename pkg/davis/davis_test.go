package davis

import (
	"testing"

	"daviscore/internal/config"
)

func TestConfigCellRoundTrip(t *testing.T) {
	d := &Device{cfg: config.NewRuntime()}

	if err := d.ConfigSet("max_frame_size", 16); err != nil {
		t.Fatalf("ConfigSet: %v", err)
	}
	got, err := d.ConfigGet("max_frame_size")
	if err != nil {
		t.Fatalf("ConfigGet: %v", err)
	}
	if got != 16 {
		t.Fatalf("got %d, want 16", got)
	}
}

func TestConfigUnknownNameReturnsError(t *testing.T) {
	d := &Device{cfg: config.NewRuntime()}
	if _, err := d.ConfigGet("not_a_real_parameter"); err == nil {
		t.Fatal("expected an error for an unknown parameter name")
	}
}

func TestDataStopBeforeStartIsAnError(t *testing.T) {
	d := &Device{cfg: config.NewRuntime()}
	if err := d.DataStop(); err == nil {
		t.Fatal("expected an error stopping acquisition that was never started")
	}
}
