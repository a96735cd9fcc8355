package orchestrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/soundhelix/soundhelix-go/config"
)

const testDocYAML = `
version: "1"
structure:
  bars: 2
  beatsPerBar: 4
  ticksPerBeat: 4
  maxVelocity: 127
harmonyEngine:
  grammar: "C/4,+Am/4"
arrangementEngine:
  constraintMode: GREEDY
  maxIterations: 200
  activityVectors:
    - name: V1
      minActivePercent: 0
      maxActivePercent: 100
      allowInactive: true
      maxSegmentCount: 10
      maxSegmentLength: 10
      maxPauseLength: 10
  tracks:
    - instrument: pad1
      activityVector: V1
      sequenceEngine:
        type: pad
        offsets: [0, 1, 2]
    - instrument: lead1
      activityVector: V1
      sequenceEngine:
        type: pattern
        pattern: "0,1,2,3"
    - instrument: kick
      sequenceEngine:
        type: drum
        voices:
          - name: kick
            pattern: "0,-,0,-"
            pitch: 36
player:
  milliBPM: 120000
`

func loadTestDoc(t *testing.T) *config.Document {
	t.Helper()
	var doc config.Document
	require.NoError(t, yaml.Unmarshal([]byte(testDocYAML), &doc))
	return &doc
}

func TestBuild_FullPipelineProducesConsistentContext(t *testing.T) {
	doc := loadTestDoc(t)

	ctx, err := Build(doc)
	require.NoError(t, err)
	require.NoError(t, ctx.Harmony.CheckSanity())

	assert.Equal(t, 32, ctx.Structure.TotalTicks())
	assert.Equal(t, 32, ctx.Harmony.TotalTicks())
	assert.Equal(t, 2, ctx.Harmony.SectionCount())
	assert.Equal(t, 127, ctx.MaxVelocity)

	require.Len(t, ctx.Arrangement.Tracks, 3)

	pad, ok := ctx.Arrangement.Get("pad1")
	require.True(t, ok)
	assert.Len(t, pad.Sequences, 3, "pad engine emits one sequence per configured offset")

	lead, ok := ctx.Arrangement.Get("lead1")
	require.True(t, ok)
	require.Len(t, lead.Sequences, 1)
	assert.Equal(t, 32, lead.Sequences[0].Length())

	kick, ok := ctx.Arrangement.Get("kick")
	require.True(t, ok)
	require.Len(t, kick.Sequences, 1)
	assert.Equal(t, 32, kick.Sequences[0].Length())

	v1, ok := ctx.ActivityMatrix.Get("V1")
	require.True(t, ok)
	assert.Equal(t, 32, v1.Length())
}

func TestBuild_UnknownActivityVectorReferenceErrors(t *testing.T) {
	doc := loadTestDoc(t)
	doc.ArrangementEngine.Tracks[0].ActivityVector = "does-not-exist"

	_, err := Build(doc)
	assert.Error(t, err)
}

func TestBuild_UnknownSequenceEngineTypeErrors(t *testing.T) {
	doc := loadTestDoc(t)
	doc.ArrangementEngine.Tracks[0].SequenceEngine.Type = "bogus"

	_, err := Build(doc)
	assert.Error(t, err)
}
