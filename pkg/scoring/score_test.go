package scoring

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/landmark"
)

// handShape returns an asymmetric 21-point hand that changes with phase,
// translated by (dx, dy) and scaled by s.
func handShape(phase, dx, dy, s float64) []landmark.Point {
	pts := make([]landmark.Point, landmark.HandPoints)
	for i := range pts {
		a := float64(i)*0.4 + phase
		pts[i] = landmark.Point{
			X: dx + s*(0.3*float64(i%5)+0.1*math.Cos(a)),
			Y: dy + s*(0.05*float64(i)+0.1*math.Sin(a)),
			Z: s * 0.01 * float64(i),
		}
	}
	return pts
}

func clipOf(n int, h landmark.Handedness, conf float64, points func(i int) []landmark.Point) landmark.Clip {
	frames := make([]landmark.Frame, n)
	for i := range frames {
		frames[i] = landmark.Frame{
			Points:      points(i),
			Handedness:  h,
			Confidence:  conf,
			TimestampMs: float64(i) * 1000 / 12,
		}
	}
	return landmark.NewClip(landmark.TargetHands, 12, float64(n)*1000/12, frames)
}

func wave(i int) []landmark.Point {
	return handShape(float64(i)*0.3, 0.5, 0.5, 0.2)
}

func TestScore_IdenticalClipsPass(t *testing.T) {
	ref := clipOf(12, landmark.Right, 0.9, wave)

	res := Score(ref, ref.Clone(), DefaultOptions())

	assert.True(t, res.Pass)
	assert.GreaterOrEqual(t, res.Score, 0.95)
	assert.Equal(t, 12, res.Metadata.FrameCount)
	assert.Equal(t, 12, res.Metadata.ValidFrames)
	assert.InDelta(t, 0, res.Metadata.AvgDistance, 1e-12)
	assert.Equal(t, 0.7, res.Metadata.Threshold)
	assert.Empty(t, res.Metadata.Reason)
	assert.Equal(t, "pass", res.Outcome())
}

func TestScore_InvariantToTranslationAndScale(t *testing.T) {
	ref := clipOf(12, landmark.Right, 0.9, wave)
	user := clipOf(12, landmark.Right, 0.9, func(i int) []landmark.Point {
		return handShape(float64(i)*0.3, -3, 7, 4.5)
	})

	res := Score(ref, user, DefaultOptions())
	assert.True(t, res.Pass)
	assert.GreaterOrEqual(t, res.Score, 0.95)
}

func TestScore_NoFrames(t *testing.T) {
	ref := clipOf(12, landmark.Right, 0.9, wave)

	tests := []struct {
		name string
		ref  landmark.Clip
		user landmark.Clip
	}{
		{"empty user", ref, ref.WithFrames(nil)},
		{"empty reference", ref.WithFrames(nil), ref},
		{"both empty", landmark.Clip{}, landmark.Clip{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(tt.ref, tt.user, DefaultOptions())
			assert.False(t, res.Pass)
			assert.Equal(t, 0.0, res.Score)
			assert.Equal(t, ReasonNoFrames, res.Metadata.Reason)
			assert.Equal(t, ReasonNoFrames, res.Outcome())
		})
	}
}

func TestScore_InsufficientFrames(t *testing.T) {
	t.Run("short clips", func(t *testing.T) {
		ref := clipOf(5, landmark.Right, 0.9, wave)
		res := Score(ref, ref, DefaultOptions())

		assert.False(t, res.Pass)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, ReasonInsufficientFrames, res.Metadata.Reason)
		assert.Equal(t, 5, res.Metadata.ValidFrames)
	})

	t.Run("frames without points are excluded", func(t *testing.T) {
		ref := clipOf(8, landmark.Right, 0.9, wave)
		user := clipOf(8, landmark.Right, 0.9, func(i int) []landmark.Point {
			if i%3 == 0 {
				return nil
			}
			return wave(i)
		})

		res := Score(ref, user, DefaultOptions())
		assert.Equal(t, ReasonInsufficientFrames, res.Metadata.Reason)
		assert.Equal(t, 5, res.Metadata.ValidFrames)
		assert.Equal(t, 8, res.Metadata.FrameCount)
	})

	t.Run("lower minimum accepts fewer frames", func(t *testing.T) {
		ref := clipOf(5, landmark.Right, 0.9, wave)
		res := Score(ref, ref, Options{MinValidFrames: 3})
		assert.True(t, res.Pass)
		assert.Equal(t, 5, res.Metadata.ValidFrames)
	})
}

func TestScore_ZeroOptionsUseDefaults(t *testing.T) {
	ref := clipOf(12, landmark.Right, 0.9, wave)
	res := Score(ref, ref, Options{})
	assert.Equal(t, 0.7, res.Metadata.Threshold)
	assert.True(t, res.Pass)

	short := clipOf(5, landmark.Right, 0.9, wave)
	assert.Equal(t, ReasonInsufficientFrames, Score(short, short, Options{}).Metadata.Reason)
}

func TestScore_MaxFramesCapsComparison(t *testing.T) {
	ref := clipOf(24, landmark.Right, 0.9, wave)
	user := clipOf(12, landmark.Right, 0.9, wave)

	res := Score(ref, user, Options{MaxFrames: 8})
	assert.Equal(t, 8, res.Metadata.FrameCount)
	assert.Equal(t, 8, res.Metadata.ValidFrames)

	res = Score(ref, user, Options{MaxFrames: 100})
	assert.Equal(t, 12, res.Metadata.FrameCount)
}

func TestFrameDistance(t *testing.T) {
	pts := wave(0)
	frame := func(h landmark.Handedness, conf float64, p []landmark.Point) landmark.Frame {
		return landmark.Frame{Points: p, Handedness: h, Confidence: conf}
	}

	tests := []struct {
		name         string
		ref, user    landmark.Frame
		allowMirror  bool
		wantDist     float64
		wantMirrored bool
		wantOK       bool
	}{
		{"identical", frame(landmark.Right, 0.9, pts), frame(landmark.Right, 0.9, pts), false, 0, false, true},
		{"confident mismatch", frame(landmark.Left, 0.9, pts), frame(landmark.Right, 0.9, pts), false, MaxNormDistance, false, true},
		{"mismatch at threshold", frame(landmark.Left, 0.6, pts), frame(landmark.Right, 0.6, pts), false, MaxNormDistance, false, true},
		{"mismatch below threshold", frame(landmark.Left, 0.5, pts), frame(landmark.Right, 0.9, pts), false, 0, false, true},
		{"unknown vs known", frame(landmark.Unknown, 0.9, pts), frame(landmark.Right, 0.9, pts), true, 0, false, true},
		{"mirrored unknown", frame(landmark.Unknown, 0, pts), frame(landmark.Unknown, 0, landmark.Mirror(pts)), true, 0, true, true},
		{"empty user", frame(landmark.Right, 0.9, pts), frame(landmark.Right, 0.9, nil), false, 0, false, false},
		{"empty mismatch still charged", frame(landmark.Left, 0.9, nil), frame(landmark.Right, 0.9, nil), false, MaxNormDistance, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, mirrored, ok := FrameDistance(tt.ref, tt.user, tt.allowMirror)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMirrored, mirrored)
			assert.InDelta(t, tt.wantDist, d, 1e-9)
		})
	}
}

func TestScore_MirrorFallback(t *testing.T) {
	ref := clipOf(12, landmark.Unknown, 0, wave)
	user := clipOf(12, landmark.Unknown, 0, func(i int) []landmark.Point {
		return landmark.Mirror(wave(i))
	})

	without := Score(ref, user, DefaultOptions())
	assert.False(t, without.Pass)
	assert.Zero(t, without.Metadata.Mirrored)

	opts := DefaultOptions()
	opts.AllowMirror = true
	with := Score(ref, user, opts)
	assert.True(t, with.Pass)
	assert.GreaterOrEqual(t, with.Score, 0.95)
	assert.Equal(t, 12, with.Metadata.Mirrored)
}

// Twelve frames captured at 12fps against a twelve-frame reference: the
// matching attempt passes, the same motion performed with the other hand is
// penalized.
func TestScore_EndToEndHandedness(t *testing.T) {
	ref := clipOf(12, landmark.Right, 0.9, wave)
	match := clipOf(12, landmark.Right, 0.9, wave)
	mirrored := clipOf(12, landmark.Left, 0.9, func(i int) []landmark.Point {
		return landmark.Mirror(wave(i))
	})

	good := Score(ref, match, DefaultOptions())
	bad := Score(ref, mirrored, DefaultOptions())

	require.True(t, good.Pass)
	assert.False(t, bad.Pass)
	assert.GreaterOrEqual(t, good.Score-bad.Score, 0.3)
	assert.InDelta(t, MaxNormDistance, bad.Metadata.AvgDistance, 1e-12)
}

func TestScore_ResamplesUnequalLengths(t *testing.T) {
	ref := clipOf(24, landmark.Right, 0.9, func(i int) []landmark.Point { return wave(i / 2) })
	user := clipOf(12, landmark.Right, 0.9, wave)

	res := Score(ref, user, DefaultOptions())
	assert.Equal(t, 12, res.Metadata.FrameCount)
	assert.True(t, res.Pass)
}

func TestScorer(t *testing.T) {
	ref := clipOf(12, landmark.Right, 0.9, wave)

	s := NewScorer(WithLogger(log.Discard()))
	assert.Equal(t, DefaultOptions(), s.Options())
	assert.Equal(t, "pass", s.Score(ref, ref).Outcome())

	strict := NewScorer(WithLogger(log.Discard()), WithThreshold(1.1), WithMirror(true))
	assert.True(t, strict.Options().AllowMirror)
	res := strict.Score(ref, ref)
	assert.False(t, res.Pass)
	assert.Equal(t, "fail", res.Outcome())

	zero := NewScorer(WithLogger(log.Discard()), WithOptions(Options{}))
	assert.Equal(t, 6, zero.Options().MinValidFrames)
}

func TestResult_JSONShape(t *testing.T) {
	ref := clipOf(12, landmark.Right, 0.9, wave)
	short := clipOf(3, landmark.Right, 0.9, wave)

	tests := []struct {
		name string
		res  Result
		want string
	}{
		{
			name: "no frames",
			res:  Score(landmark.Clip{}, ref, DefaultOptions()),
			want: `{"pass":false,"score":0,"metadata":{"reason":"no_frames"}}`,
		},
		{
			name: "insufficient frames",
			res:  Score(short, short, DefaultOptions()),
			want: `{"pass":false,"score":0,"metadata":{"reason":"insufficient_frames","validFrames":3}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.res)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}

	t.Run("scored", func(t *testing.T) {
		b, err := json.Marshal(Score(ref, ref, DefaultOptions()))
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, true, got["pass"])
		assert.NotContains(t, got, "success")

		meta := got["metadata"].(map[string]any)
		for _, k := range []string{"avgDistance", "validFrames", "frameCount", "threshold"} {
			assert.Contains(t, meta, k)
		}
		assert.NotContains(t, meta, "reason")
		assert.NotContains(t, meta, "mirrored")
	})
}
