package landmark

import "math"

// Resample maps the clip onto exactly n frames by nearest-index projection:
// output i takes source frame round(i/(n-1) * (len-1)).
//
// n <= 0 or an empty clip yields a clip with the same metadata and no frames.
// n == 1 yields the first frame only.
func Resample(c Clip, n int) Clip {
	src := c.Frames
	if n <= 0 || len(src) == 0 {
		return c.WithFrames([]Frame{})
	}
	if n == 1 {
		return c.WithFrames([]Frame{src[0]})
	}

	last := float64(len(src) - 1)
	out := make([]Frame, n)
	for i := range out {
		idx := int(math.Round(float64(i) / float64(n-1) * last))
		out[i] = src[idx]
	}
	return c.WithFrames(out)
}
