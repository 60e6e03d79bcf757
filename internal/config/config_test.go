package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
loop:
  frame_rate: 30
  fixed_rate: -1
  max_delta: 100ms
scheduler:
  prewarm: 16
  budget: 2ms
countdowns:
  - name: rotate
    duration: 30s
    scale: 2
    offset: -5s
    schedule: "*/10 * * * * *"
  - name: heartbeat
    duration: 1s
    run_while_paused: true
    autostart: true
diag:
  enabled: true
  token: secret
journal:
  driver: file
  path: ./journal
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("tickd.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 16, cfg.Scheduler.Prewarm)
	require.Len(t, cfg.Countdowns, 2)
	assert.Equal(t, 2.0, cfg.Countdowns[0].Scale)
	assert.True(t, cfg.Countdowns[1].RunWhilePaused)
	require.NotNil(t, cfg.Journal)
	assert.Equal(t, "file", cfg.Journal.Driver)
	require.NoError(t, Validate(cfg))
}

func TestDecodeSniffsFormat(t *testing.T) {
	cfg, err := Decode("tickd.conf", []byte(`{"loop":{"frame_rate":10}}`))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Loop.FrameRate)

	cfg, err = Decode("tickd.conf", []byte("loop:\n  frame_rate: 20\n"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Loop.FrameRate)

	cfg, err = Decode("empty.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Countdowns)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("tickd.json", []byte(`{"loop":{"frame_rte":10}}`))
	assert.Error(t, err)

	_, err = Decode("tickd.yaml", []byte("telegram:\n  token: x\n"))
	assert.Error(t, err)

	_, err = Decode("tickd.json", []byte(`{} {}`))
	assert.Error(t, err)
}

func TestResolveLoopDefaults(t *testing.T) {
	var cfg Config
	loop, err := cfg.ResolveLoop()
	require.NoError(t, err)
	assert.Equal(t, time.Second/60, loop.FrameInterval)
	assert.Equal(t, time.Second/50, loop.FixedStep)
	assert.Equal(t, DefaultMaxFixedSteps, loop.MaxFixedSteps)
	assert.Equal(t, DefaultMaxDelta, loop.MaxDelta)
	assert.Equal(t, time.Local, loop.Location)
}

func TestResolveLoopOverrides(t *testing.T) {
	cfg, err := Decode("tickd.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	loop, err := cfg.ResolveLoop()
	require.NoError(t, err)
	assert.Equal(t, time.Second/30, loop.FrameInterval)
	assert.Zero(t, loop.FixedStep, "negative fixed_rate disables the fixed lane")
	assert.Equal(t, 100*time.Millisecond, loop.MaxDelta)
}

func TestResolveCountdowns(t *testing.T) {
	cfg, err := Decode("tickd.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	cds, err := cfg.ResolveCountdowns()
	require.NoError(t, err)
	require.Len(t, cds, 2)

	rotate := cds[0]
	assert.Equal(t, "rotate", rotate.Name)
	assert.Equal(t, 30*time.Second, rotate.Duration)
	assert.Equal(t, -5*time.Second, rotate.Offset)
	require.NotNil(t, rotate.Schedule)
	from := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)
	assert.Equal(t, from.Add(9*time.Second), rotate.Schedule.Next(from))

	assert.Nil(t, cds[1].Schedule)
	assert.True(t, cds[1].Autostart)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Logging:   LoggingConfig{Level: "loud"},
		Loop:      LoopConfig{FrameRate: -1},
		Scheduler: SchedulerConfig{Budget: "soon"},
		Countdowns: []CountdownConfig{
			{Name: "a", Duration: "1s"},
			{Name: "a", Duration: "1s"},
		},
		Journal: &JournalConfig{Driver: "postgres"},
	}
	err := Validate(cfg)
	require.Error(t, err)
	for _, want := range []string{"logging.level", "loop.frame_rate", "scheduler.budget", "duplicate", "journal.driver"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateCountdownFields(t *testing.T) {
	tests := []struct {
		name string
		cd   CountdownConfig
		want string
	}{
		{"missing name", CountdownConfig{Duration: "1s"}, "name: required"},
		{"zero duration", CountdownConfig{Name: "x"}, "must be > 0"},
		{"bad duration", CountdownConfig{Name: "x", Duration: "1 parsec"}, "invalid duration"},
		{"negative scale", CountdownConfig{Name: "x", Duration: "1s", Scale: -1}, "scale"},
		{"bad schedule", CountdownConfig{Name: "x", Duration: "1s", Schedule: "every day"}, "schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&Config{Countdowns: []CountdownConfig{tt.cd}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestManagerLoadAndReload(t *testing.T) {
	path := writeFile(t, "tickd.yaml", sampleYAML)
	m := NewManager(path)
	ctx := context.Background()

	cfg, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	_, err = m.Reload(ctx)
	assert.ErrorIs(t, err, ErrUnchanged)

	require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"systemd:\n  notify: true\n"), 0o644))
	next, err := m.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, next.Systemd.Notify)
	assert.Same(t, next, <-sub)
	assert.Same(t, next, m.Get())
}

func TestManagerReloadKeepsConfigOnInvalidFile(t *testing.T) {
	path := writeFile(t, "tickd.json", `{"loop":{"frame_rate":30}}`)
	m := NewManager(path)
	cfg, err := m.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"loop":{"frame_rate":-4}}`), 0o644))
	_, err = m.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, cfg, m.Get())
}

func TestManagerCustomValidator(t *testing.T) {
	path := writeFile(t, "tickd.json", `{}`)
	m := NewManager(path)
	errNope := errors.New("nope")
	m.SetValidator(func(context.Context, *Config) error { return errNope })
	_, err := m.Load(context.Background())
	assert.ErrorIs(t, err, errNope)
	assert.Nil(t, m.Get())
}

func TestSlowSubscriberGetsLatest(t *testing.T) {
	m := NewManager("unused.json")
	sub := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	assert.Same(t, b, <-sub)

	m.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
}

func TestWatchPublishesChanges(t *testing.T) {
	path := writeFile(t, "tickd.json", `{"loop":{"frame_rate":30}}`)
	m := NewManager(path)
	_, err := m.Load(context.Background())
	require.NoError(t, err)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"loop":{"frame_rate":45}}`), 0o644))

	select {
	case cfg := <-sub:
		assert.Equal(t, 45, cfg.Loop.FrameRate)
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg, err := Decode("tickd.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	newCfg, err := Decode("tickd.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	changed, _, cds := SummarizeConfigChange(oldCfg, newCfg)
	assert.Empty(t, changed)
	assert.Empty(t, cds)

	newCfg.Diag.Token = "rotated"
	newCfg.Countdowns[0].Duration = "45s"
	newCfg.Countdowns = append(newCfg.Countdowns, CountdownConfig{Name: "fresh", Duration: "1s"})
	newCfg.Journal = nil

	changed, _, cds = SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"countdowns", "journal"}, changed, "token rotation alone is not reported")
	assert.Equal(t, []string{"fresh", "rotate"}, cds)
}
