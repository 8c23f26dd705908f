package session

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// Profile is a named, immutable bundle of encoder options, selected once
// at session open.
type Profile string

const (
	// ProfileStandard is the recording-grade preset.
	ProfileStandard Profile = "standard"
	// ProfileProxy trades quality for size (preview/scrubbing copies).
	ProfileProxy Profile = "proxy"
)

// ParseProfile maps a user-facing profile name onto one of the two
// supported profiles.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(s); p {
	case ProfileStandard, ProfileProxy:
		return p, nil
	}
	return "", fmt.Errorf("unknown profile '%s' (expected '%s' or '%s')", s, ProfileStandard, ProfileProxy)
}

// encoderOptions renders the profile as an options dictionary for the
// encoder open call. The caller frees the result.
func (p Profile) encoderOptions() (*astiav.Dictionary, error) {
	d := astiav.NewDictionary()
	switch p {
	case ProfileStandard:
		d.Set("preset", "ultrafast", 0)
		d.Set("profile", "high444", 0)
		d.Set("crf", "13", 0)
	case ProfileProxy:
		d.Set("preset", "ultrafast", 0)
		d.Set("profile", "high444", 0)
		d.Set("crf", "35", 0)
	default:
		d.Free()
		return nil, fmt.Errorf("unknown profile '%s'", p)
	}
	return d, nil
}
