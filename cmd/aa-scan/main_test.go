package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/activealign/internal/imaging"
	"github.com/banshee-data/activealign/internal/scan"
	"github.com/banshee-data/activealign/internal/store"
)

const devConfig = `scan_mode: normal
start_pos: 0.0
stop_pos: 0.1
step_size_um: 5
settle_delay: 1ms
position_checking: false
station_id: bench-1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func devOptions(t *testing.T) options {
	dir := t.TempDir()
	return options{
		ConfigPath: writeConfig(t, devConfig),
		DBPath:     filepath.Join(dir, "aa.db"),
		Dev:        true,
		DevFocus:   0.05,
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := loadConfig(options{
		ConfigPath: writeConfig(t, devConfig),
		Mode:       "stationary",
		Station:    "bench-2",
		Port:       "/dev/ttyACM1",
	})
	require.NoError(t, err)
	assert.Equal(t, "stationary", cfg.GetScanMode())
	assert.Equal(t, "bench-2", cfg.GetStationID())
	assert.Equal(t, "/dev/ttyACM1", cfg.GetStagePort())
}

func TestLoadConfig_InvalidMode(t *testing.T) {
	_, err := loadConfig(options{ConfigPath: writeConfig(t, devConfig), Mode: "spiral"})
	assert.Error(t, err)

	_, err = loadConfig(options{ConfigPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

func TestRun_DevScanRecordsDecision(t *testing.T) {
	o := devOptions(t)
	o.PlotsDir = filepath.Join(t.TempDir(), "plots")

	require.NoError(t, run(context.Background(), o))

	db, err := store.Open(o.DBPath)
	require.NoError(t, err)
	defer db.Close()

	scans, err := db.RecentScans(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, string(scan.StateAccepted), scans[0].State)
	assert.InDelta(t, 0.05, scans[0].TargetZ, 0.01)

	curves, err := db.ScanCurves(context.Background(), scans[0].ID)
	require.NoError(t, err)
	assert.Len(t, curves, 13)

	plots, err := filepath.Glob(filepath.Join(o.PlotsDir, scans[0].ID+"_layer*.png"))
	require.NoError(t, err)
	assert.Len(t, plots, 4)
}

func TestRun_DevMTFGate(t *testing.T) {
	o := devOptions(t)
	o.MTF = true
	require.NoError(t, run(context.Background(), o))

	db, err := store.Open(o.DBPath)
	require.NoError(t, err)
	defer db.Close()
	scans, err := db.RecentScans(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, scans, "the gate does not record a scan")
}

func TestOpenRig_DevUsesPureGoDetector(t *testing.T) {
	cfg, err := loadConfig(devOptions(t))
	require.NoError(t, err)

	hw, err := openRig(cfg, devOptions(t))
	require.NoError(t, err)
	defer hw.Close()

	assert.IsType(t, imaging.BlobDetector{}, hw.detector)
	assert.NotNil(t, patternDetector())
}

func TestRun_RequiresCamera(t *testing.T) {
	o := devOptions(t)
	o.Dev = false
	err := run(context.Background(), o)
	assert.ErrorContains(t, err, "no camera")
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aa.db")
	var out bytes.Buffer

	assert.Equal(t, 0, migrateCommand(&out, []string{"up"}, dbPath, ""))
	assert.Contains(t, out.String(), "All migrations applied")

	out.Reset()
	assert.Equal(t, 0, migrateCommand(&out, []string{"status"}, dbPath, ""))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	assert.Equal(t, 0, migrateCommand(&out, []string{"down"}, dbPath, ""))
	assert.Equal(t, 0, migrateCommand(&out, []string{"status"}, dbPath, ""))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	assert.Equal(t, 0, migrateCommand(&out, []string{"force", "2"}, dbPath, ""))
	assert.Contains(t, out.String(), "Forced version to 2")

	out.Reset()
	assert.Equal(t, 1, migrateCommand(&out, []string{"force", "x"}, dbPath, ""))
	assert.Equal(t, 1, migrateCommand(&out, []string{"sideways"}, dbPath, ""))
	assert.Contains(t, out.String(), "Unknown migrate action")
	assert.Equal(t, 1, migrateCommand(&out, nil, dbPath, ""))
}
