package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"main/internal/model/enum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
sim:
  intervalMs: 500
  seed: 42
  instruments:
    - symbol: EURUSD
      initialPrice: 1.1
      initialSigma: 0.08
      engine: garch
      omega: 1e-6
      alpha: 0.05
      beta: 0.90
      spreadBase: 0.0002
    - symbol: USDJPY
      initialPrice: 150.0
      engine: egarch
  correlation:
    - [1.0, 0.3]
    - [0.3, 1.0]
  events:
    - name: cpi-release
      symbol: EURUSD
      at: 2026-09-01T12:30:00Z
      mean: 0.0
      vol: 0.004
calendar:
  holidays:
    - name: new-year
      from: 2026-01-01T00:00:00Z
      to: 2026-01-01T23:59:59Z
adapters:
  - kind: sim
    platform: SIM
    intervalMs: 500
  - kind: tcp
    platform: UPSTREAM
    addr: 127.0.0.1:5001
formula:
  path: calcs.json
dist:
  tcpAddr: ":6001"
pub:
  kafka:
    enabled: true
    brokers: ["localhost:9092"]
    topic: rates
supervisor:
  failureRate: 0.5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ratesim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadResolvesDomainConfig(t *testing.T) {
	loaded, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Len(t, loaded.Sim.Instruments, 2)
	eur := loaded.Sim.Instruments[0]
	assert.Equal(t, "EURUSD", eur.Symbol)
	assert.Equal(t, enum.EngineKindGARCH, eur.Engine)
	assert.InDelta(t, 1e-6, eur.Garch.Omega, 1e-12)
	assert.Equal(t, enum.EngineKindEGARCH, loaded.Sim.Instruments[1].Engine)
	assert.Equal(t, 500*time.Millisecond, loaded.Sim.Interval)
	assert.Equal(t, int64(42), loaded.Sim.Seed)

	require.Len(t, loaded.Sim.Events, 1)
	assert.Equal(t, "cpi-release", loaded.Sim.Events[0].Name)

	require.NotNil(t, loaded.Calendar)
	assert.True(t, loaded.Calendar.IsHoliday(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, loaded.Calendar.IsHoliday(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)))

	require.Len(t, loaded.Adapters, 2)
	assert.Equal(t, "sim", loaded.Adapters[0].Kind)
	assert.Equal(t, 500*time.Millisecond, loaded.Adapters[0].Interval)
	assert.Equal(t, "127.0.0.1:5001", loaded.Adapters[1].Addr)

	assert.Equal(t, ":6001", loaded.Dist.TCPAddr)
	assert.Equal(t, 1024, loaded.Dist.MaxConns, "default connection bound")
	assert.True(t, loaded.Pub.Kafka.Enabled)
	assert.Equal(t, 4096, loaded.Pub.QueueSize, "default queue size")
	assert.InDelta(t, 0.5, loaded.Supervisor.FailureRate, 1e-9)
	assert.Equal(t, 5*time.Second, loaded.SupTick, "default supervisor interval")
}

func TestLoadRejectsBadCorrelationShape(t *testing.T) {
	body := `
sim:
  instruments:
    - symbol: EURUSD
      initialPrice: 1.1
  correlation:
    - [1.0, 0.3]
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestLoadRejectsBadEventTime(t *testing.T) {
	body := `
sim:
  instruments:
    - symbol: EURUSD
      initialPrice: 1.1
  events:
    - name: bad
      at: not-a-time
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestLoadRejectsAdapterWithoutKind(t *testing.T) {
	body := `
sim:
  instruments:
    - symbol: EURUSD
      initialPrice: 1.1
adapters:
  - platform: SIM
`
	_, err := Load(writeConfig(t, body))
	assert.Error(t, err)
}

func TestWatchKeepsPreviousOnBrokenEdit(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	var (
		reloads = make(chan Loaded, 4)
	)
	loaded, err := Watch(path, func(next Loaded) { reloads <- next })
	require.NoError(t, err)
	assert.Equal(t, int64(42), loaded.Sim.Seed)

	// broken edit: no instruments survives validation, must not fire
	require.NoError(t, os.WriteFile(path, []byte("sim:\n  intervalMs: 100\n"), 0o644))
	select {
	case <-reloads:
		t.Fatal("broken config must not be applied")
	case <-time.After(300 * time.Millisecond):
	}

	// good edit fires onChange with the new values
	good := sampleConfig + "\nmetrics:\n  logIntervalMs: 1000\n"
	require.NoError(t, os.WriteFile(path, []byte(good), 0o644))
	select {
	case next := <-reloads:
		assert.Equal(t, time.Second, next.MetricsLog)
	case <-time.After(2 * time.Second):
		t.Fatal("config change was not observed")
	}
}
