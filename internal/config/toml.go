// Package config provides configuration helpers and TOML parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/note"
	"github.com/verte-zerg/wordflow/internal/tracker"
)

// ErrInvalid reports a configuration value out of range.
var ErrInvalid = errors.New("invalid config")

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Tracking  TrackingConfig   `toml:"tracking"`
	Recording RecordingConfig  `toml:"recording"`
	Status    StatusConfig     `toml:"status"`
	Recorders []RecorderConfig `toml:"recorders"`
	Store     StoreConfig      `toml:"store"`
	Metrics   MetricsConfig    `toml:"metrics"`
}

// TrackingConfig maps reconciliation and timing settings.
type TrackingConfig struct {
	DebounceMs  *int  `toml:"debounce-ms"`
	ClearMargin *int  `toml:"clear-margin"`
	IdleMinutes *int  `toml:"idle-minutes"`
	UseSeconds  *bool `toml:"use-seconds"`
	AutoResume  *bool `toml:"auto-resume"`
}

// RecordingConfig maps when statistics are flushed.
type RecordingConfig struct {
	Threshold         *string `toml:"threshold"`
	MinEditSeconds    *int    `toml:"min-edit-seconds"`
	AutoRecordSeconds *int    `toml:"auto-record-seconds"`
	ThrottleMs        *int    `toml:"throttle-ms"`
	ResetGraceMs      *int    `toml:"reset-grace-ms"`
	RecordOn          *string `toml:"record-on"`
}

// StatusConfig maps the status line templates.
type StatusConfig struct {
	EditTemplate *string `toml:"edit-template"`
	ReadTemplate *string `toml:"read-template"`
}

// RecorderConfig maps one periodic note target.
type RecorderConfig struct {
	ID            string `toml:"id"`
	Name          string `toml:"name"`
	Kind          string `toml:"kind"`
	Folder        string `toml:"folder"`
	NoteFormat    string `toml:"note-format"`
	DynamicFolder bool   `toml:"dynamic-folder"`
	Syntax        string `toml:"syntax"`
	TimeFormat    string `toml:"time-format"`
	SortBy        string `toml:"sort-by"`
	Descending    *bool  `toml:"descending"`
	Insert        string `toml:"insert"`
	InsertStart   string `toml:"insert-start"`
	InsertEnd     string `toml:"insert-end"`
	Template      string `toml:"template"`
}

// StoreConfig maps the SQLite record target.
type StoreConfig struct {
	Enabled *bool   `toml:"enabled"`
	Path    *string `toml:"path"`
}

// MetricsConfig maps the Prometheus endpoint.
type MetricsConfig struct {
	Addr *string `toml:"addr"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

const (
	DefaultDebounceMs     = 1000
	DefaultIdleMinutes    = 3
	DefaultMinEditSeconds = 60
	DefaultThrottleMs     = 500
	DefaultResetGraceMs   = 100

	DefaultEditTemplate = "${editedWords} words edited · ${editTime}"
	DefaultReadTemplate = "${docWords} words · reading ${readTime}"
)

// Settings is the resolved configuration with defaults applied.
type Settings struct {
	Debounce    time.Duration
	ClearMargin int
	Idle        time.Duration
	UseSeconds  bool
	AutoResume  bool

	Threshold   model.Threshold
	MinEditTime time.Duration
	AutoRecord  time.Duration
	Throttle    time.Duration
	ResetGrace  time.Duration
	RecordOn    tracker.RecordOn

	EditTemplate string
	ReadTemplate string

	Recorders []note.Config

	StoreEnabled bool
	StorePath    string

	MetricsAddr string
}

// Cadence is the status refresh interval.
func (s Settings) Cadence() time.Duration {
	if s.UseSeconds {
		return time.Second
	}
	return time.Minute
}

// Resolve applies defaults to fc and validates the result.
func Resolve(fc FileConfig) (Settings, error) {
	s := Settings{
		Debounce:     time.Duration(intOr(fc.Tracking.DebounceMs, DefaultDebounceMs)) * time.Millisecond,
		ClearMargin:  intOr(fc.Tracking.ClearMargin, tracker.DefaultClearMargin),
		Idle:         time.Duration(intOr(fc.Tracking.IdleMinutes, DefaultIdleMinutes)) * time.Minute,
		UseSeconds:   boolOr(fc.Tracking.UseSeconds, false),
		AutoResume:   boolOr(fc.Tracking.AutoResume, true),
		MinEditTime:  time.Duration(intOr(fc.Recording.MinEditSeconds, DefaultMinEditSeconds)) * time.Second,
		AutoRecord:   time.Duration(intOr(fc.Recording.AutoRecordSeconds, 0)) * time.Second,
		Throttle:     time.Duration(intOr(fc.Recording.ThrottleMs, DefaultThrottleMs)) * time.Millisecond,
		ResetGrace:   time.Duration(intOr(fc.Recording.ResetGraceMs, DefaultResetGraceMs)) * time.Millisecond,
		EditTemplate: stringOr(fc.Status.EditTemplate, DefaultEditTemplate),
		ReadTemplate: stringOr(fc.Status.ReadTemplate, DefaultReadTemplate),
		StoreEnabled: boolOr(fc.Store.Enabled, true),
		StorePath:    stringOr(fc.Store.Path, DefaultDBPath()),
		MetricsAddr:  stringOr(fc.Metrics.Addr, ""),
	}

	switch {
	case s.Debounce <= 0:
		return Settings{}, fmt.Errorf("%w: tracking.debounce-ms must be positive", ErrInvalid)
	case s.ClearMargin < 0:
		return Settings{}, fmt.Errorf("%w: tracking.clear-margin must be >= 0", ErrInvalid)
	case s.Idle < 0:
		return Settings{}, fmt.Errorf("%w: tracking.idle-minutes must be >= 0", ErrInvalid)
	case s.MinEditTime < 0:
		return Settings{}, fmt.Errorf("%w: recording.min-edit-seconds must be >= 0", ErrInvalid)
	case s.AutoRecord < 0:
		return Settings{}, fmt.Errorf("%w: recording.auto-record-seconds must be >= 0", ErrInvalid)
	case s.Throttle < 0:
		return Settings{}, fmt.Errorf("%w: recording.throttle-ms must be >= 0", ErrInvalid)
	case s.ResetGrace < 0:
		return Settings{}, fmt.Errorf("%w: recording.reset-grace-ms must be >= 0", ErrInvalid)
	case s.StoreEnabled && s.StorePath == "":
		return Settings{}, fmt.Errorf("%w: store.path is empty", ErrInvalid)
	}

	threshold, err := model.ParseThreshold(stringOr(fc.Recording.Threshold, ""))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: recording.threshold: %v", ErrInvalid, err)
	}
	s.Threshold = threshold

	recordOn, err := tracker.ParseRecordOn(stringOr(fc.Recording.RecordOn, ""))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: recording.record-on: %v", ErrInvalid, err)
	}
	s.RecordOn = recordOn

	seen := map[string]struct{}{}
	for i, rc := range fc.Recorders {
		nc, err := recorderConfig(rc, s.UseSeconds)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: recorders[%d]: %v", ErrInvalid, i, err)
		}
		if _, dup := seen[nc.ID]; dup {
			return Settings{}, fmt.Errorf("%w: recorders[%d]: duplicate id %s", ErrInvalid, i, nc.ID)
		}
		seen[nc.ID] = struct{}{}
		s.Recorders = append(s.Recorders, nc)
	}
	return s, nil
}

func recorderConfig(rc RecorderConfig, seconds bool) (note.Config, error) {
	kind := note.Kind(rc.Kind)
	switch kind {
	case "", note.KindTable, note.KindList, note.KindMetadata:
	default:
		return note.Config{}, fmt.Errorf("unknown kind %q", rc.Kind)
	}
	insert := note.Insert(rc.Insert)
	switch insert {
	case "", note.InsertBottom, note.InsertCustom, note.InsertYAML:
	default:
		return note.Config{}, fmt.Errorf("unknown insert %q", rc.Insert)
	}
	switch rc.SortBy {
	case "", note.SortLastModified, note.SortEditedWords, note.SortEditedTimes,
		note.SortPercentage, note.SortNote, note.SortEditTime:
	default:
		return note.Config{}, fmt.Errorf("unknown sort-by %q", rc.SortBy)
	}
	id := rc.ID
	if id == "" {
		// Stable across restarts as long as the target does not move.
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(rc.Kind+"|"+rc.Folder+"|"+rc.NoteFormat+"|"+rc.Name)).String()
	} else if _, err := uuid.Parse(id); err != nil {
		return note.Config{}, fmt.Errorf("id %q is not a uuid", id)
	}
	return note.Config{
		ID:            id,
		Name:          rc.Name,
		Kind:          kind,
		Folder:        rc.Folder,
		NoteFormat:    rc.NoteFormat,
		DynamicFolder: rc.DynamicFolder,
		Syntax:        rc.Syntax,
		TimeFormat:    rc.TimeFormat,
		SortBy:        rc.SortBy,
		Descending:    boolOr(rc.Descending, true),
		Insert:        insert,
		InsertStart:   rc.InsertStart,
		InsertEnd:     rc.InsertEnd,
		Template:      rc.Template,
		Seconds:       seconds,
	}, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// DefaultTemplate is written by `wordflow config` when no file exists.
func DefaultTemplate() string {
	return `# wordflow config
# Uncomment and edit values to override defaults.

[tracking]
# debounce-ms = 1000
# clear-margin = 100
# idle-minutes = 3
# use-seconds = false
# auto-resume = true

[recording]
# threshold = "e"          # e, t, ent, eot, n
# min-edit-seconds = 60
# auto-record-seconds = 0
# throttle-ms = 500
# reset-grace-ms = 100
# record-on = "all"        # all, crt

[status]
# edit-template = "${editedWords} words edited · ${editTime}"
# read-template = "${docWords} words · reading ${readTime}"

# [[recorders]]
# name = "daily"
# kind = "table"           # table, list, metadata
# folder = "Daily"
# note-format = "YYYY-MM-DD"
# sort-by = "lastModifiedTime"
# insert = "bottom"        # bottom, custom, yaml

[store]
# enabled = true
# path = "~/.local/share/wordflow/wordflow.db"

[metrics]
# addr = "127.0.0.1:9464"
`
}
