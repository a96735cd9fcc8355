package config

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/soundhelix/soundhelix-go/soundhelixerr"
)

// SupportedVersion is the document `version` value this build satisfies.
const SupportedVersion = 1

// Overrides are environment/flag values that take precedence over the
// loaded document, resolved via viper the way opd-ai-violence layers
// runtime overrides on top of its XML document.
type Overrides struct {
	SongName string
	Seed     *int64
	Device   string
}

// LoadOverrides reads SOUNDHELIX_SONG_NAME, SOUNDHELIX_SEED and
// SOUNDHELIX_DEVICE from the environment (and any bound flags) via viper.
func LoadOverrides() Overrides {
	v := viper.New()
	v.SetEnvPrefix("soundhelix")
	v.AutomaticEnv()

	var out Overrides
	out.SongName = v.GetString("song_name")
	out.Device = v.GetString("device")
	if v.IsSet("seed") {
		seed := v.GetInt64("seed")
		out.Seed = &seed
	}
	return out
}

// Apply overlays the SongName and Seed overrides onto the document when
// they are set. The Device override is not applied to the document.
func (o Overrides) Apply(doc *Document) {
	if o.SongName != "" {
		lit := o.SongName
		doc.SongNameEngine.Name = StringValue{literal: &lit}
	}
	if o.Seed != nil {
		doc.Seeding.Seed = o.Seed
	}
}

// Load reads and parses a SoundHelix document from path, validates its
// `version` attribute against SupportedVersion, and applies any
// environment overrides. Grounded on parser.LoadTrack's
// read-then-unmarshal-then-default shape.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "config: reading %q", path)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, soundhelixerr.WrapErr(soundhelixerr.ConfigError, err, "config: parsing %q", path)
	}

	if doc.Version != "" {
		if err := CheckVersion(doc.Version, SupportedVersion); err != nil {
			return nil, err
		}
	}

	applyDefaults(&doc)

	overrides := LoadOverrides()
	overrides.Apply(&doc)

	logrus.WithFields(logrus.Fields{
		"path":    path,
		"version": doc.Version,
		"tracks":  len(doc.ArrangementEngine.Tracks),
	}).Debug("config: document loaded")

	return &doc, nil
}

func applyDefaults(doc *Document) {
	if doc.ArrangementEngine.ConstraintMode == "" {
		doc.ArrangementEngine.ConstraintMode = "EXACT"
	}
	for i := range doc.ArrangementEngine.Tracks {
		t := &doc.ArrangementEngine.Tracks[i]
		if t.SequenceEngine.Restart == "" {
			t.SequenceEngine.Restart = "chordSection"
		}
	}
}
