package config

import (
	"math"
	"math/rand"
	"strings"

	"gopkg.in/yaml.v3"
)

// IntValue is a document integer field that may be a literal, or one of
// the `<random .../>` templating forms (uniform range, normal
// distribution, or a discrete list). Grounded on parser.StringOrList's
// try-this-then-that custom UnmarshalYAML.
type IntValue struct {
	literal      *int
	isRandom     bool
	min, max     int
	distribution string // "", "uniform" or "normal"
	mean         float64
	variance     float64
	list         []int
}

// UnmarshalYAML implements custom decoding for IntValue: tries a bare
// scalar first, then falls back to the random-templating mapping.
func (v *IntValue) UnmarshalYAML(node *yaml.Node) error {
	var lit int
	if err := node.Decode(&lit); err == nil {
		v.literal = &lit
		return nil
	}

	var raw struct {
		Min      *int    `yaml:"min"`
		Max      *int    `yaml:"max"`
		Type     string  `yaml:"type"`
		Mean     float64 `yaml:"mean"`
		Variance float64 `yaml:"variance"`
		List     []int   `yaml:"list"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v.isRandom = true
	if len(raw.List) > 0 {
		v.list = raw.List
		return nil
	}
	if raw.Min != nil {
		v.min = *raw.Min
	}
	if raw.Max != nil {
		v.max = *raw.Max
	}
	v.distribution = raw.Type
	v.mean = raw.Mean
	v.variance = raw.Variance
	return nil
}

// Resolve draws a concrete value, using rng for any random form.
func (v *IntValue) Resolve(rng *rand.Rand) int {
	if v == nil {
		return 0
	}
	if v.literal != nil {
		return *v.literal
	}
	if len(v.list) > 0 {
		return v.list[rng.Intn(len(v.list))]
	}
	if v.distribution == "normal" {
		stddev := math.Sqrt(v.variance)
		return int(math.Round(rng.NormFloat64()*stddev + v.mean))
	}
	span := v.max - v.min
	if span <= 0 {
		return v.min
	}
	return v.min + rng.Intn(span+1)
}

// IsRandom reports whether this value is templated rather than literal,
// i.e. whether each resolution may differ.
func (v *IntValue) IsRandom() bool { return v != nil && v.isRandom }

// IsSet reports whether this value was present in the document at all
// (literal or random), as opposed to a zero-value default.
func (v *IntValue) IsSet() bool { return v != nil && (v.literal != nil || v.isRandom) }

// StringValue is a document string field that may be a literal or the
// `<random list=s1|s2|…/>` discrete-choice form.
type StringValue struct {
	literal  *string
	isRandom bool
	list     []string
}

// UnmarshalYAML implements custom decoding for StringValue: a bare scalar,
// a mapping with a pipe-separated `list` string, or a mapping with a YAML
// sequence `list`.
func (v *StringValue) UnmarshalYAML(node *yaml.Node) error {
	var lit string
	if err := node.Decode(&lit); err == nil {
		v.literal = &lit
		return nil
	}

	var rawSeq struct {
		List []string `yaml:"list"`
	}
	if err := node.Decode(&rawSeq); err == nil && len(rawSeq.List) > 0 {
		v.isRandom = true
		v.list = rawSeq.List
		return nil
	}

	var rawStr struct {
		List string `yaml:"list"`
	}
	if err := node.Decode(&rawStr); err == nil && rawStr.List != "" {
		v.isRandom = true
		v.list = strings.Split(rawStr.List, "|")
		return nil
	}

	return nil
}

// Resolve draws a concrete value, using rng for the random form.
func (v *StringValue) Resolve(rng *rand.Rand) string {
	if v == nil {
		return ""
	}
	if v.literal != nil {
		return *v.literal
	}
	if len(v.list) > 0 {
		return v.list[rng.Intn(len(v.list))]
	}
	return ""
}

// IsRandom reports whether this value is templated rather than literal.
func (v *StringValue) IsRandom() bool { return v != nil && v.isRandom }
