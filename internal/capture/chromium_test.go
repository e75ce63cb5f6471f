package capture

import (
	"context"
	"testing"
	"time"
)

func TestDashboardPNGValidatesOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "no url", opts: Options{OutputPath: "out.png"}},
		{name: "no output", opts: Options{URL: "http://127.0.0.1:8080/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := DashboardPNG(context.Background(), tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	o := Options{Width: 800}
	o.applyDefaults()
	if o.Width != 800 || o.Height != DefaultHeight || o.Timeout != DefaultTimeoutSec*time.Second {
		t.Fatalf("applyDefaults() = %+v", o)
	}
}
