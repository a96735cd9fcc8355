package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeeding_NoOverrideInheritsParentSeed(t *testing.T) {
	s := Seeding{}
	want := Seeding{}.Rand(42).Int63()
	got := s.Rand(42).Int63()
	assert.Equal(t, want, got)
}

func TestSeeding_ExplicitSeedReplacesParent(t *testing.T) {
	var seed int64 = 7
	s := Seeding{Seed: &seed}
	got := s.Rand(42).Int63()
	want := Seeding{}.Rand(7).Int63()
	assert.Equal(t, want, got)
}

func TestSeeding_SaltOffsetsParentSeed(t *testing.T) {
	var salt int32 = 3
	s := Seeding{Salt: &salt}
	got := s.Rand(42).Int63()
	want := Seeding{}.Rand(45).Int63()
	assert.Equal(t, want, got)
}

func TestSeeding_SeedTakesPrecedenceOverSalt(t *testing.T) {
	var seed int64 = 7
	var salt int32 = 3
	s := Seeding{Seed: &seed, Salt: &salt}
	got := s.Rand(42).Int63()
	want := Seeding{}.Rand(7).Int63()
	assert.Equal(t, want, got)
}
