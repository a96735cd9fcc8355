package config

import (
	"strconv"
	"strings"

	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

// versionRange is one comma-separated element of a document's `version`
// attribute: an exact value ("3"), an open-ended lower bound ("3+"), or a
// closed range ("3-5"), by design.
type versionRange struct {
	min, max int
	unbounded bool
}

func (r versionRange) contains(v int) bool {
	if v < r.min {
		return false
	}
	if r.unbounded {
		return true
	}
	return v <= r.max
}

// parseVersionRanges parses a comma list of `x`, `x+`, or `x1-x2` ranges.
func parseVersionRanges(spec string) ([]versionRange, error) {
	var ranges []versionRange
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch {
		case strings.HasSuffix(part, "+"):
			n, err := strconv.Atoi(strings.TrimSuffix(part, "+"))
			if err != nil {
				return nil, soundhelixerr.Wrap(soundhelixerr.ConfigError, "config: invalid version range %q", part)
			}
			ranges = append(ranges, versionRange{min: n, unbounded: true})
		case strings.Contains(part, "-"):
			bounds := strings.SplitN(part, "-", 2)
			lo, err1 := strconv.Atoi(strings.TrimSpace(bounds[0]))
			hi, err2 := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err1 != nil || err2 != nil || hi < lo {
				return nil, soundhelixerr.Wrap(soundhelixerr.ConfigError, "config: invalid version range %q", part)
			}
			ranges = append(ranges, versionRange{min: lo, max: hi})
		default:
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, soundhelixerr.Wrap(soundhelixerr.ConfigError, "config: invalid version range %q", part)
			}
			ranges = append(ranges, versionRange{min: n, max: n})
		}
	}
	if len(ranges) == 0 {
		return nil, soundhelixerr.Wrap(soundhelixerr.ConfigError, "config: empty version attribute")
	}
	return ranges, nil
}

// CheckVersion verifies that supportedVersion satisfies the document's
// `version` attribute, by design ("mismatch is fatal").
func CheckVersion(versionSpec string, supportedVersion int) error {
	ranges, err := parseVersionRanges(versionSpec)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		if r.contains(supportedVersion) {
			return nil
		}
	}
	return soundhelixerr.Wrap(soundhelixerr.ConfigError,
		"config: document requires version %q, this build supports %d", versionSpec, supportedVersion)
}
