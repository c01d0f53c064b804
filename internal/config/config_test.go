package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/note"
	"github.com/verte-zerg/wordflow/internal/tracker"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Tracking.DebounceMs != nil || len(cfg.Recorders) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestDefaultTemplateResolvesToDefaults(t *testing.T) {
	var fc FileConfig
	if _, err := toml.Decode(DefaultTemplate(), &fc); err != nil {
		t.Fatalf("decode template: %v", err)
	}
	s, err := Resolve(fc)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Debounce != time.Second || s.ClearMargin != tracker.DefaultClearMargin {
		t.Fatalf("unexpected tracking defaults %+v", s)
	}
	if s.Idle != 3*time.Minute || !s.AutoResume || s.Cadence() != time.Minute {
		t.Fatalf("unexpected timing defaults %+v", s)
	}
	if s.Threshold != model.ThresholdEdits || s.RecordOn != tracker.RecordOnAll {
		t.Fatalf("unexpected recording defaults %+v", s)
	}
	if s.MinEditTime != time.Minute || s.Throttle != 500*time.Millisecond || s.ResetGrace != 100*time.Millisecond {
		t.Fatalf("unexpected recording durations %+v", s)
	}
	if !s.StoreEnabled || s.StorePath != DefaultDBPath() || s.MetricsAddr != "" {
		t.Fatalf("unexpected store or metrics defaults %+v", s)
	}
	if s.EditTemplate != DefaultEditTemplate || s.ReadTemplate != DefaultReadTemplate {
		t.Fatalf("unexpected status templates %+v", s)
	}
}

func TestResolveOverrides(t *testing.T) {
	const file = `
[tracking]
debounce-ms = 250
use-seconds = true
idle-minutes = 0

[recording]
threshold = "eot"
record-on = "crt"
auto-record-seconds = 300

[[recorders]]
name = "daily"
folder = "Daily"
sort-by = "editedWords"
descending = false

[[recorders]]
id = "6f1c1f3e-7a3c-4c55-9f3d-0d7a7b9c1a10"
kind = "metadata"

[metrics]
addr = ":9464"
`
	var fc FileConfig
	if _, err := toml.Decode(file, &fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	s, err := Resolve(fc)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Debounce != 250*time.Millisecond || s.Cadence() != time.Second || s.Idle != 0 {
		t.Fatalf("unexpected tracking %+v", s)
	}
	if s.Threshold != model.ThresholdEditsOrTime || s.RecordOn != tracker.RecordOnCurrent || s.AutoRecord != 5*time.Minute {
		t.Fatalf("unexpected recording %+v", s)
	}
	if len(s.Recorders) != 2 {
		t.Fatalf("expected 2 recorders, got %d", len(s.Recorders))
	}
	daily := s.Recorders[0]
	if daily.ID == "" || daily.Descending || daily.SortBy != note.SortEditedWords || !daily.Seconds {
		t.Fatalf("unexpected recorder %+v", daily)
	}
	again, err := Resolve(fc)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if again.Recorders[0].ID != daily.ID {
		t.Fatalf("generated id changed between loads: %s vs %s", daily.ID, again.Recorders[0].ID)
	}
	if s.Recorders[1].Kind != note.KindMetadata || s.Recorders[1].ID != "6f1c1f3e-7a3c-4c55-9f3d-0d7a7b9c1a10" {
		t.Fatalf("unexpected metadata recorder %+v", s.Recorders[1])
	}
	if s.MetricsAddr != ":9464" {
		t.Fatalf("unexpected metrics addr %q", s.MetricsAddr)
	}
}

func TestResolveRejectsInvalidValues(t *testing.T) {
	neg := -1
	bad := "sometimes"
	cases := map[string]FileConfig{
		"debounce":  {Tracking: TrackingConfig{DebounceMs: &neg}},
		"margin":    {Tracking: TrackingConfig{ClearMargin: &neg}},
		"threshold": {Recording: RecordingConfig{Threshold: &bad}},
		"record-on": {Recording: RecordingConfig{RecordOn: &bad}},
		"kind":      {Recorders: []RecorderConfig{{Kind: "chart"}}},
		"insert":    {Recorders: []RecorderConfig{{Insert: "top"}}},
		"sort":      {Recorders: []RecorderConfig{{SortBy: "size"}}},
		"id":        {Recorders: []RecorderConfig{{ID: "daily"}}},
		"duplicate": {Recorders: []RecorderConfig{{Folder: "a"}, {Folder: "a"}}},
	}
	for name, fc := range cases {
		if _, err := Resolve(fc); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestXDGPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_STATE_HOME", "/state")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "wordflow", "config.toml") {
		t.Fatalf("unexpected config path %s", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/data", "wordflow", "wordflow.db") {
		t.Fatalf("unexpected db path %s", got)
	}
	if got := DefaultLogPath(); got != filepath.Join("/state", "wordflow", "wordflow.log") {
		t.Fatalf("unexpected log path %s", got)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[tracking]\ndebounce-ms = 100\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan FileConfig, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(fc FileConfig, err error) {
			if err != nil {
				return
			}
			select {
			case got <- fc:
			default:
			}
		})
	}()

	deadline := time.After(3 * time.Second)
	for {
		// Keep writing until the watcher is set up and reports the change.
		if err := os.WriteFile(path, []byte("[tracking]\ndebounce-ms = 200\n"), 0o644); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}
		select {
		case fc := <-got:
			if fc.Tracking.DebounceMs == nil || *fc.Tracking.DebounceMs != 200 {
				t.Fatalf("unexpected reloaded config %+v", fc.Tracking)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("watch: %v", err)
			}
			return
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatalf("config change was not reported")
		}
	}
}
