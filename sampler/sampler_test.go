package sampler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"perfsampler/collector"
	"perfsampler/logger"
	"perfsampler/storage"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClock advances only when the sampler sleeps or a source "blocks".
type fakeClock struct {
	now      time.Time
	sleeps   []time.Duration
	cancel   func() // called on sleep number cancelAt, if set
	cancelAt int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	if c.cancel != nil && len(c.sleeps) == c.cancelAt {
		c.cancel()
		return ctx.Err()
	}
	c.now = c.now.Add(d)
	return nil
}

// slowSource simulates a blocking CPU measurement by advancing the clock.
type slowSource struct {
	clock   *fakeClock
	cost    func(call int) time.Duration
	calls   int
	diskErr error
}

func (s *slowSource) CPUPercent(_ context.Context, window time.Duration) (float64, error) {
	s.calls++
	s.clock.now = s.clock.now.Add(window + s.cost(s.calls))
	return 25, nil
}

func (s *slowSource) MemoryPercent(context.Context) (float64, error) { return 50, nil }

func (s *slowSource) DiskPercent(context.Context, string) (float64, error) {
	return 75, s.diskErr
}

func newRig(t *testing.T, cost func(int) time.Duration) (*fakeClock, *slowSource, *collector.HostCollector) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)}
	src := &slowSource{clock: clk, cost: cost}
	coll := &collector.HostCollector{Source: src, CPUWindow: time.Second, DiskPath: "/", Now: clk.Now}
	return clk, src, coll
}

func noCost(int) time.Duration { return 0 }

func readLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
}

func TestConfig_Iterations(t *testing.T) {
	assert.Equal(t, 1440, Config{Duration: 7200 * time.Second, Interval: 5 * time.Second}.Iterations())
	assert.Equal(t, 2, Config{Duration: 10 * time.Second, Interval: 5 * time.Second}.Iterations())
	assert.Equal(t, 2, Config{Duration: 14 * time.Second, Interval: 5 * time.Second}.Iterations())
	assert.Equal(t, 0, Config{Duration: 4 * time.Second, Interval: 5 * time.Second}.Iterations())
	assert.Equal(t, 0, Config{Duration: time.Minute}.Iterations())
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New(Config{Duration: time.Minute}, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{Duration: -time.Second, Interval: time.Second}, nil, nil)
	assert.Error(t, err)
}

func TestRun_WritesHeaderPlusOneRowPerTick(t *testing.T) {
	clk, _, coll := newRig(t, noCost)
	path := filepath.Join(t.TempDir(), "out.csv")
	st, err := storage.NewCSV(path)
	require.NoError(t, err)

	s, err := New(Config{Duration: 10 * time.Second, Interval: 5 * time.Second}, coll, st, WithClock(clk))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	assert.Equal(t, 2, res.Ticks)
	assert.Equal(t, 10*time.Second, res.Finished.Sub(res.Started))
	assert.Equal(t, []float64{25, 50, 75}, res.Last.Values())

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, "Timestamp,CPU_Usage_Percent,Memory_Usage_Percent,Disk_Usage_Percent", lines[0])
	assert.Equal(t, "2024-05-01 12:00:00,25.0,50.0,75.0", lines[1])
	assert.Equal(t, "2024-05-01 12:00:05,25.0,50.0,75.0", lines[2])
}

func TestRun_FullDefaultSchedule(t *testing.T) {
	clk, _, coll := newRig(t, noCost)
	path := filepath.Join(t.TempDir(), "out.csv")
	st, err := storage.NewCSV(path)
	require.NoError(t, err)

	cfg := Config{Duration: 7200 * time.Second, Interval: 5 * time.Second}
	s, err := New(cfg, coll, st, WithClock(clk))
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 1+cfg.Iterations())

	var prev time.Time
	for i, line := range lines[1:] {
		cols := strings.Split(line, ",")
		require.Len(t, cols, 4)
		ts, err := time.ParseInLocation(collector.TimestampLayout, cols[0], time.Local)
		require.NoError(t, err)
		if i > 0 {
			assert.Equal(t, 5*time.Second, ts.Sub(prev), "row %d", i+1)
		}
		prev = ts
		for _, c := range cols[1:] {
			v, err := strconv.ParseFloat(c, 64)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 100.0)
		}
	}
}

func TestRun_CorrectsDriftFromSlowQueries(t *testing.T) {
	// Every CPU read takes its 1s window plus a jittery extra.
	clk, _, coll := newRig(t, func(call int) time.Duration {
		return time.Duration(call%3) * 700 * time.Millisecond
	})
	var stamps []time.Time
	st := storeFunc(func(s storage.Sample) error {
		stamps = append(stamps, s.Timestamp)
		return nil
	})

	s, err := New(Config{Duration: time.Minute, Interval: 5 * time.Second}, coll, st, WithClock(clk))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, stamps, 12)
	start := stamps[0]
	for k, ts := range stamps {
		assert.Equal(t, time.Duration(k)*5*time.Second, ts.Sub(start), "tick %d starts on its checkpoint", k+1)
	}
	assert.Equal(t, time.Minute, res.Finished.Sub(res.Started))
}

func TestRun_SkipsSleepWhenBehind(t *testing.T) {
	// The first tick overruns the interval by far.
	clk, _, coll := newRig(t, func(call int) time.Duration {
		if call == 1 {
			return 11 * time.Second
		}
		return 0
	})
	s, err := New(Config{Duration: 20 * time.Second, Interval: 5 * time.Second}, coll, storeFunc(func(storage.Sample) error { return nil }), WithClock(clk))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Ticks)
	// tick1 ends at 12s (behind 5s), tick2 ends at 13s (behind 10s),
	// tick3 ends at 14s and sleeps to 15s, tick4 ends at 16s and sleeps to 20s.
	assert.Equal(t, []time.Duration{time.Second, 4 * time.Second}, clk.sleeps)
}

func TestRun_DiskFailureLeavesOnlyHeader(t *testing.T) {
	clk, src, coll := newRig(t, noCost)
	src.diskErr = errors.New("statfs /: permission denied")
	path := filepath.Join(t.TempDir(), "out.csv")
	st, err := storage.NewCSV(path)
	require.NoError(t, err)

	s, err := New(Config{Duration: 10 * time.Second, Interval: 5 * time.Second}, coll, st, WithClock(clk))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, src.diskErr)
	assert.Contains(t, err.Error(), "tick 1")
	assert.Zero(t, res.Ticks)
	assert.Empty(t, clk.sleeps)

	require.NoError(t, st.Close())
	assert.Len(t, readLines(t, path), 1)
}

func TestRun_StoreFailureAborts(t *testing.T) {
	clk, _, coll := newRig(t, noCost)
	boom := errors.New("no space left on device")
	calls := 0
	st := storeFunc(func(storage.Sample) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})

	s, err := New(Config{Duration: time.Minute, Interval: 5 * time.Second}, coll, st, WithClock(clk))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, res.Ticks)
	assert.Equal(t, 2, calls)
}

func TestRun_CancelDuringSleep(t *testing.T) {
	clk, _, coll := newRig(t, noCost)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk.cancel, clk.cancelAt = cancel, 2

	written := 0
	st := storeFunc(func(storage.Sample) error { written++; return nil })
	s, err := New(Config{Duration: time.Minute, Interval: 5 * time.Second}, coll, st, WithClock(clk))
	require.NoError(t, err)

	res, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Ticks)
	assert.Equal(t, 2, written)
}

func TestRun_ZeroIterations(t *testing.T) {
	clk, src, coll := newRig(t, noCost)
	s, err := New(Config{Duration: 3 * time.Second, Interval: 5 * time.Second}, coll, storeFunc(func(storage.Sample) error { return nil }), WithClock(clk))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Ticks)
	assert.Zero(t, src.calls)
}

func TestRealClock_SleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := realClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, realClock{}.Sleep(context.Background(), time.Millisecond))
}

func TestRun_TickLogCarriesScheduleOnly(t *testing.T) {
	clk, _, coll := newRig(t, noCost)
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.WithContext(context.Background(), zap.New(core))

	s, err := New(Config{Duration: 10 * time.Second, Interval: 5 * time.Second}, coll, storeFunc(func(storage.Sample) error { return nil }), WithClock(clk))
	require.NoError(t, err)
	_, err = s.Run(ctx)
	require.NoError(t, err)

	ticks := logs.FilterMessage("tick").All()
	require.Len(t, ticks, 2)
	for _, e := range ticks {
		fields := e.ContextMap()
		assert.Len(t, fields, 2)
		assert.Contains(t, fields, "tick")
		assert.Equal(t, 4*time.Second, fields["wait"])
	}
}

type storeFunc func(storage.Sample) error

func (f storeFunc) Append(_ context.Context, s storage.Sample) error { return f(s) }
func (f storeFunc) Close() error { return nil }
