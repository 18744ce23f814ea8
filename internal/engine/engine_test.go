package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/script2video/internal/config"
	"github.com/ivlev/script2video/internal/errs"
	"github.com/ivlev/script2video/internal/feedback"
	"github.com/ivlev/script2video/internal/ratings"
	"github.com/ivlev/script2video/internal/source"
	"github.com/ivlev/script2video/internal/storyboard"
)

const script = `Photosynthesis
Plants turn light into sugar. They need water and air.
For example, a leaf in the sun. In summary, light feeds the plant.
`

type fakeRenderer struct {
	mu       sync.Mutex
	calls    []*storyboard.Storyboard
	fail     error
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (f *fakeRenderer) Render(_ context.Context, sb *storyboard.Storyboard, out string) (string, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxSeen, m, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.calls = append(f.calls, sb.Clone())
	f.mu.Unlock()

	if f.fail != nil {
		return "", f.fail
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", err
	}
	return out, os.WriteFile(out, []byte("mp4"), 0644)
}

type fixture struct {
	engine   *Engine
	store    *ratings.Store
	renderer *fakeRenderer
	cfg      *config.Config
	script   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.DBPath = filepath.Join(dir, "meta.db")
	cfg.StoryboardDir = filepath.Join(dir, "storyboards")
	cfg.VideoDir = filepath.Join(dir, "videos")
	cfg.TelemetryPath = filepath.Join(dir, "weights.json")

	store, err := ratings.Open(cfg.DBPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	scriptPath := filepath.Join(dir, "lesson.txt")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0644))

	r := &fakeRenderer{}
	adapter := feedback.NewAdapter(store, &feedback.FileSink{Path: cfg.TelemetryPath}, zerolog.Nop())
	e := New(cfg, source.FileSource{}, store, adapter, r, zerolog.Nop())
	return &fixture{engine: e, store: store, renderer: r, cfg: cfg, script: scriptPath}
}

func TestGeneratePersistsAndRegisters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Generate(ctx, f.script, false)
	require.NoError(t, err)
	assert.Len(t, res.VideoID, 8)
	assert.Equal(t, "Photosynthesis", res.Storyboard.Title)
	assert.NotEmpty(t, res.Storyboard.Scenes)
	assert.Empty(t, res.VideoPath)
	assert.Empty(t, f.renderer.calls)

	loaded, err := storyboard.ReadStoryboard(res.StoryboardPath)
	require.NoError(t, err)
	assert.Equal(t, res.Storyboard, loaded)

	v, err := f.store.Video(ctx, res.VideoID)
	require.NoError(t, err)
	assert.Equal(t, "Photosynthesis", v.Title)
	assert.Equal(t, res.StoryboardPath, v.StoryboardPath)
}

func TestGenerateWithRender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Generate(ctx, f.script, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.cfg.VideoDir, res.VideoID+".mp4"), res.VideoPath)
	assert.FileExists(t, res.VideoPath)
	require.Len(t, f.renderer.calls, 1)

	v, err := f.store.Video(ctx, res.VideoID)
	require.NoError(t, err)
	assert.Equal(t, res.VideoPath, v.VideoPath)
}

func TestGenerateRejectsEmptyScript(t *testing.T) {
	f := newFixture(t)
	empty := filepath.Join(f.cfg.DataDir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("  \n\n "), 0644))

	_, err := f.engine.Generate(context.Background(), empty, false)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInput))
	assert.NoDirExists(t, f.cfg.StoryboardDir)

	summary, err := f.store.Summary(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestGenerateMissingScript(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Generate(context.Background(), filepath.Join(f.cfg.DataDir, "nope.txt"), false)
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestRenderFailureKeepsStoryboard(t *testing.T) {
	f := newFixture(t)
	f.renderer.fail = errors.New("ffmpeg died")

	res, err := f.engine.Generate(context.Background(), f.script, true)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindRender))
	require.NotNil(t, res)

	loaded, err := storyboard.ReadStoryboard(res.StoryboardPath)
	require.NoError(t, err)
	assert.Equal(t, res.Storyboard, loaded)

	// retry succeeds once the renderer recovers
	f.renderer.fail = nil
	res, err = f.engine.Render(context.Background(), res.VideoID)
	require.NoError(t, err)
	assert.FileExists(t, res.VideoPath)
}

func TestAdaptWithoutRatingsIsIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen, err := f.engine.Generate(ctx, f.script, false)
	require.NoError(t, err)

	res, err := f.engine.Adapt(ctx, gen.VideoID)
	require.NoError(t, err)
	assert.Equal(t, feedback.NeutralRating, res.Signal)
	assert.Equal(t, gen.Storyboard, res.Storyboard)
}

func TestAdaptLowRatingsShortensAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen, err := f.engine.Generate(ctx, f.script, false)
	require.NoError(t, err)

	require.NoError(t, f.engine.Rate(ctx, gen.VideoID, 1, "too slow"))
	require.NoError(t, f.engine.Rate(ctx, gen.VideoID, 2, ""))

	res, err := f.engine.Adapt(ctx, gen.VideoID)
	require.NoError(t, err)
	assert.Equal(t, 1.5, res.Signal)

	require.Len(t, res.Storyboard.Scenes, len(gen.Storyboard.Scenes))
	for i, sc := range res.Storyboard.Scenes {
		want := math.Max(storyboard.MinSceneDuration, gen.Storyboard.Scenes[i].DurationSecs-1)
		assert.Equal(t, want, sc.DurationSecs)
	}

	loaded, err := storyboard.ReadStoryboard(res.StoryboardPath)
	require.NoError(t, err)
	assert.Equal(t, res.Storyboard, loaded)
	assert.FileExists(t, f.cfg.TelemetryPath)
}

func TestRegenerateRendersAdaptedStoryboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen, err := f.engine.Generate(ctx, f.script, false)
	require.NoError(t, err)
	require.NoError(t, f.engine.Rate(ctx, gen.VideoID, 1, ""))

	for i := 0; i < 5; i++ {
		_, err := f.engine.Regenerate(ctx, gen.VideoID)
		require.NoError(t, err)
	}

	require.Len(t, f.renderer.calls, 5)
	last := f.renderer.calls[4]
	for _, sc := range last.Scenes {
		assert.Equal(t, storyboard.MinSceneDuration, sc.DurationSecs)
	}
}

func TestUnknownVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Adapt(ctx, "deadbeef")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))

	_, err = f.engine.Regenerate(ctx, "deadbeef")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))

	err = f.engine.Rate(ctx, "deadbeef", 4, "")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))

	_, err = f.engine.Adapt(ctx, "")
	assert.True(t, errs.IsKind(err, errs.KindInput))
}

func TestRateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen, err := f.engine.Generate(ctx, f.script, false)
	require.NoError(t, err)

	assert.True(t, errs.IsKind(f.engine.Rate(ctx, gen.VideoID, 0, ""), errs.KindInput))
	assert.True(t, errs.IsKind(f.engine.Rate(ctx, gen.VideoID, 6, ""), errs.KindInput))
	require.NoError(t, f.engine.Rate(ctx, gen.VideoID, 5, "great"))

	summary, err := f.engine.Ratings(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, 1, summary[0].Count)
	assert.Equal(t, 5.0, summary[0].AverageRating)
}

func TestShow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen, err := f.engine.Generate(ctx, f.script, false)
	require.NoError(t, err)
	require.NoError(t, f.engine.Rate(ctx, gen.VideoID, 4, ""))

	st, err := f.engine.Show(ctx, gen.VideoID)
	require.NoError(t, err)
	assert.Equal(t, gen.VideoID, st.Video.ID)
	assert.Equal(t, 4.0, st.Signal)
	assert.Equal(t, gen.Storyboard, st.Storyboard)
}

func TestRegenerateSerializesPerVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen, err := f.engine.Generate(ctx, f.script, false)
	require.NoError(t, err)
	f.renderer.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Regenerate(ctx, gen.VideoID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.renderer.maxSeen))
	assert.Len(t, f.renderer.calls, 4)
	assert.Zero(t, f.engine.locks.size())

	_, err = storyboard.ReadStoryboard(gen.StoryboardPath)
	assert.NoError(t, err)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")

	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
	assert.Zero(t, k.size())
}
