package reference

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/landmark"
	"github.com/teslashibe/go-gesture/pkg/pose"
)

// fakeVideo decodes solid frames; reading advances the position by one
// source frame like a real decoder.
type fakeVideo struct {
	duration  float64
	sourceFPS float64
	size      image.Point

	mu     sync.Mutex
	pos    float64
	seeks  []float64
	reads  int
	closed bool
}

func (v *fakeVideo) DurationSeconds() float64 { return v.duration }

func (v *fakeVideo) PositionSeconds() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

func (v *fakeVideo) Seek(ctx context.Context, t float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seeks = append(v.seeks, t)
	v.pos = t
	return nil
}

func (v *fakeVideo) ReadFrame(ctx context.Context) (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reads++
	v.pos += 1 / v.sourceFPS
	img := image.NewRGBA(image.Rectangle{Max: v.size})
	img.Set(0, 0, color.RGBA{R: uint8(v.reads), A: 255})
	return img, nil
}

func (v *fakeVideo) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

type fakeOpener struct {
	duration float64
	gate     chan struct{}
	fail     atomic.Int32 // remaining opens that fail

	opens  atomic.Int32
	mu     sync.Mutex
	videos []*fakeVideo
}

func (o *fakeOpener) Open(ctx context.Context, key Key) (Video, error) {
	o.opens.Add(1)
	if o.gate != nil {
		<-o.gate
	}
	if o.fail.Load() > 0 {
		o.fail.Add(-1)
		return nil, errors.New("asset unavailable")
	}
	v := &fakeVideo{duration: o.duration, sourceFPS: 30, size: image.Pt(8, 6)}
	o.mu.Lock()
	o.videos = append(o.videos, v)
	o.mu.Unlock()
	return v, nil
}

func hand() []landmark.Point {
	pts := make([]landmark.Point, landmark.HandPoints)
	for i := range pts {
		pts[i] = landmark.Point{X: float64(i), Y: 1}
	}
	return pts
}

func newLoader(t *testing.T, d pose.Detector, o Opener, opts ...Option) *Loader {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	l, err := NewLoader(d, o, opts...)
	require.NoError(t, err)
	return l
}

func handsKey() Key {
	return Key{AssetID: "wave", Src: "videos/wave.mp4", Target: landmark.TargetHands, FPS: 12}
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "wave|hands|12", handsKey().String())
	assert.Equal(t, "a.mp4|pose|7.5", Key{Src: "a.mp4", Target: landmark.TargetPose, FPS: 7.5}.String())
}

func TestKey_Validate(t *testing.T) {
	assert.ErrorIs(t, Key{Target: landmark.TargetHands, FPS: 10}.Validate(), ErrInvalidKey)
	assert.ErrorIs(t, Key{AssetID: "x", FPS: 0}.Validate(), ErrInvalidKey)
	assert.ErrorIs(t, Key{AssetID: "x", FPS: math.NaN()}.Validate(), ErrInvalidKey)
	assert.NoError(t, handsKey().Validate())
}

func TestNewLoader_ConfigurationErrors(t *testing.T) {
	_, err := NewLoader(nil, &fakeOpener{})
	assert.ErrorIs(t, err, pose.ErrNoDetector)

	_, err = NewLoader(pose.NewMock(hand()), nil)
	var cfgErr *pose.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, ErrNoOpener)
}

func TestLoader_UniformSampling(t *testing.T) {
	mock := pose.NewMock(hand())
	opener := &fakeOpener{duration: 1.0}
	l := newLoader(t, mock, opener)

	clip, err := l.Load(context.Background(), handsKey())
	require.NoError(t, err)

	require.Equal(t, 12, clip.Len())
	assert.Equal(t, 12, mock.Calls())
	assert.Equal(t, landmark.TargetHands, clip.Target)
	assert.Equal(t, 12.0, clip.FPS)
	assert.InDelta(t, 1000, clip.DurationMs, 1e-9)
	assert.Equal(t, 0.0, clip.Frames[0].TimestampMs)
	assert.InDelta(t, 999, clip.Frames[11].TimestampMs, 1e-6)
	assert.InDelta(t, 1000.0/11, clip.Frames[1].TimestampMs, 1e-6)
	require.NoError(t, clip.Validate())

	v := opener.videos[0]
	assert.Equal(t, 12, v.reads)
	assert.True(t, v.closed)
	// the first sample sits at the opening position
	assert.Len(t, v.seeks, 11)
}

func TestLoader_ZeroDurationTakesOneFrame(t *testing.T) {
	mock := pose.NewMock(hand())
	l := newLoader(t, mock, &fakeOpener{duration: 0})

	clip, err := l.Load(context.Background(), handsKey())
	require.NoError(t, err)
	assert.Equal(t, 1, clip.Len())
	assert.Equal(t, 0.0, clip.Frames[0].TimestampMs)
}

func TestLoader_ConcurrentCallsShareOneExtraction(t *testing.T) {
	mock := pose.NewMock(hand())
	opener := &fakeOpener{duration: 0.5, gate: make(chan struct{})}
	l := newLoader(t, mock, opener)

	const callers = 8
	var wg sync.WaitGroup
	clips := make([]landmark.Clip, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clips[i], errs[i] = l.Load(context.Background(), handsKey())
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(opener.gate)
	wg.Wait()

	assert.Equal(t, int32(1), opener.opens.Load())
	assert.Equal(t, 6, mock.Calls())
	for i := range clips {
		require.NoError(t, errs[i])
		assert.Equal(t, clips[0].ID, clips[i].ID)
		assert.Equal(t, 6, clips[i].Len())
	}
	assert.Equal(t, 1, l.Cache().Len())
}

func TestLoader_NoLandmarksEvictsAndRetries(t *testing.T) {
	var found atomic.Bool
	d := pose.DetectorFunc(func(ctx context.Context, img image.Image) (*pose.Detection, error) {
		if !found.Load() {
			return nil, nil
		}
		return &pose.Detection{Hands: [][]landmark.Point{hand()}}, nil
	})
	opener := &fakeOpener{duration: 0.5}
	l := newLoader(t, d, opener)

	_, err := l.Load(context.Background(), handsKey())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoLandmarks)
	assert.EqualError(t, errors.Unwrap(err), "no landmarks detected in reference clip")
	var xerr *ClipExtractionError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, "wave|hands|12", xerr.Key)
	assert.Equal(t, 0, l.Cache().Len())

	found.Store(true)
	clip, err := l.Load(context.Background(), handsKey())
	require.NoError(t, err)
	assert.Equal(t, 6, clip.Len())
	assert.Equal(t, int32(2), opener.opens.Load())
}

func TestLoader_OpenFailureIsNotCached(t *testing.T) {
	opener := &fakeOpener{duration: 0.5}
	opener.fail.Store(1)
	l := newLoader(t, pose.NewMock(hand()), opener)

	_, err := l.Load(context.Background(), handsKey())
	var xerr *ClipExtractionError
	require.ErrorAs(t, err, &xerr)

	_, err = l.Load(context.Background(), handsKey())
	require.NoError(t, err)
	assert.Equal(t, int32(2), opener.opens.Load())
}

func TestLoader_DetectorErrorsSkipFrames(t *testing.T) {
	var n atomic.Int32
	d := pose.DetectorFunc(func(ctx context.Context, img image.Image) (*pose.Detection, error) {
		if n.Add(1)%2 == 0 {
			return nil, errors.New("inference failed")
		}
		return &pose.Detection{Hands: [][]landmark.Point{hand()}}, nil
	})
	l := newLoader(t, d, &fakeOpener{duration: 0.5})

	clip, err := l.Load(context.Background(), handsKey())
	require.NoError(t, err)
	assert.Equal(t, 3, clip.Len())
}

func TestLoader_RendersToConfiguredSurface(t *testing.T) {
	mock := pose.NewMock(hand())
	l := newLoader(t, mock, &fakeOpener{duration: 0.25}, WithSurfaceSize(32, 24))

	_, err := l.Load(context.Background(), handsKey())
	require.NoError(t, err)

	imgs := mock.Images()
	require.NotEmpty(t, imgs)
	assert.Equal(t, image.Pt(32, 24), imgs[0].Bounds().Size())
}

func TestLoader_ProgressAndPreload(t *testing.T) {
	var mu sync.Mutex
	progress := map[string]int{}
	l := newLoader(t, pose.NewMock(hand()), &fakeOpener{duration: 0.5},
		WithProgress(func(key Key, done, total int) {
			mu.Lock()
			progress[key.String()] = done
			mu.Unlock()
		}))

	a := handsKey()
	b := Key{AssetID: "point", Target: landmark.TargetHands, FPS: 12}
	require.NoError(t, l.Preload(context.Background(), a, b))

	assert.Equal(t, 2, l.Cache().Len())
	assert.Equal(t, 6, progress[a.String()])
	assert.Equal(t, 6, progress[b.String()])
}

func TestLoader_WaiterCancellationDoesNotAbortExtraction(t *testing.T) {
	opener := &fakeOpener{duration: 0.5, gate: make(chan struct{})}
	l := newLoader(t, pose.NewMock(hand()), opener)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Load(ctx, handsKey())
	assert.ErrorIs(t, err, context.Canceled)

	close(opener.gate)
	clip, err := l.Load(context.Background(), handsKey())
	require.NoError(t, err)
	assert.Equal(t, 6, clip.Len())
	assert.Equal(t, int32(1), opener.opens.Load())
}

func TestCache_MaxEntriesEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Unix(100, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	c := NewCache(WithMaxEntries(2), WithCacheClock(clock))

	var calls atomic.Int32
	fn := func(ctx context.Context) (landmark.Clip, error) {
		calls.Add(1)
		return landmark.NewClip(landmark.TargetHands, 12, 0, nil), nil
	}

	ctx := context.Background()
	for _, k := range []string{"a", "b", "a", "c"} {
		_, err := c.Do(ctx, k, fn)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int32(3), calls.Load())

	// "b" was least recently used and must be re-extracted
	_, err := c.Do(ctx, "b", fn)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestCache_SlowExtractionSurvivesItsOwnArrival(t *testing.T) {
	now := time.Unix(100, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	c := NewCache(WithMaxEntries(1), WithCacheClock(clock))
	ctx := context.Background()

	var slowCalls, fastCalls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context) (landmark.Clip, error) {
		if slowCalls.Add(1) == 1 {
			close(started)
			<-release
		}
		return landmark.NewClip(landmark.TargetHands, 12, 0, nil), nil
	}
	fast := func(ctx context.Context) (landmark.Clip, error) {
		fastCalls.Add(1)
		return landmark.NewClip(landmark.TargetHands, 12, 0, nil), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Do(ctx, "slow", slow)
		done <- err
	}()
	<-started

	_, err := c.Do(ctx, "fast", fast)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, c.Len())

	// the slow clip resolved last, so it stays and the fast one is evicted
	_, err = c.Do(ctx, "slow", slow)
	require.NoError(t, err)
	assert.Equal(t, int32(1), slowCalls.Load())

	_, err = c.Do(ctx, "fast", fast)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fastCalls.Load())
}

func TestCache_Forget(t *testing.T) {
	c := NewCache()
	ctx := context.Background()

	var calls atomic.Int32
	fn := func(ctx context.Context) (landmark.Clip, error) {
		calls.Add(1)
		return landmark.NewClip(landmark.TargetHands, 12, 0, nil), nil
	}

	_, _ = c.Do(ctx, "a", fn)
	_, _ = c.Do(ctx, "b", fn)
	require.Equal(t, 2, c.Len())

	c.Forget("a")
	c.Forget("missing")
	assert.Equal(t, 1, c.Len())

	_, _ = c.Do(ctx, "b", fn)
	assert.Equal(t, int32(2), calls.Load())
	_, _ = c.Do(ctx, "a", fn)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCache_TTLAndReset(t *testing.T) {
	now := time.Unix(100, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
	c := NewCache(WithTTL(time.Minute), WithCacheClock(clock))

	var calls atomic.Int32
	fn := func(ctx context.Context) (landmark.Clip, error) {
		calls.Add(1)
		return landmark.NewClip(landmark.TargetHands, 12, 0, nil), nil
	}
	ctx := context.Background()

	_, _ = c.Do(ctx, "a", fn)
	advance(30 * time.Second)
	_, _ = c.Do(ctx, "a", fn)
	assert.Equal(t, int32(1), calls.Load())

	advance(2 * time.Minute)
	_, _ = c.Do(ctx, "a", fn)
	assert.Equal(t, int32(2), calls.Load())

	c.Reset()
	assert.Equal(t, 0, c.Len())
	_, _ = c.Do(ctx, "a", fn)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCache_PanicBecomesError(t *testing.T) {
	c := NewCache()
	_, err := c.Do(context.Background(), "boom", func(ctx context.Context) (landmark.Clip, error) {
		panic("decoder crashed")
	})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestSampleTime(t *testing.T) {
	assert.Equal(t, 0.0, sampleTime(0, 1, 3, 0.001))
	assert.Equal(t, 0.0, sampleTime(0, 4, 3, 0.001))
	assert.InDelta(t, 1.0, sampleTime(1, 4, 3, 0.001), 1e-12)
	assert.InDelta(t, 2.999, sampleTime(3, 4, 3, 0.001), 1e-12)
}
