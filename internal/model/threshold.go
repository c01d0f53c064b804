package model

import (
	"fmt"
	"strings"
	"time"
)

// Threshold decides whether a tracker has enough activity to be recorded.
type Threshold string

const (
	// ThresholdEdits requires at least one edit.
	ThresholdEdits Threshold = "e"
	// ThresholdTime requires a minimum edit time.
	ThresholdTime Threshold = "t"
	// ThresholdEditsAndTime requires both.
	ThresholdEditsAndTime Threshold = "ent"
	// ThresholdEditsOrTime requires either.
	ThresholdEditsOrTime Threshold = "eot"
	// ThresholdNone always records.
	ThresholdNone Threshold = "n"
)

// ParseThreshold validates a threshold code.
func ParseThreshold(s string) (Threshold, error) {
	switch t := Threshold(strings.ToLower(strings.TrimSpace(s))); t {
	case ThresholdEdits, ThresholdTime, ThresholdEditsAndTime, ThresholdEditsOrTime, ThresholdNone:
		return t, nil
	case "":
		return ThresholdEdits, nil
	default:
		return "", fmt.Errorf("unknown threshold %q (want e, t, ent, eot or n)", s)
	}
}

// Met reports whether the snapshot passes the policy.
func (t Threshold) Met(s Snapshot, minEditTime time.Duration) bool {
	edited := s.EditedTimes > 0
	timed := s.EditTime >= minEditTime
	switch t {
	case ThresholdTime:
		return timed
	case ThresholdEditsAndTime:
		return edited && timed
	case ThresholdEditsOrTime:
		return edited || timed
	case ThresholdNone:
		return true
	default:
		return edited
	}
}
