package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))
}

func TestLoadFallsBackToDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0xBAC0, cfg.Port)
	assert.Equal(t, SegmentationBoth, cfg.SegmentationSupported)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
instance_number: 4200
interface: 10.0.0.5
port: 47808
max_apdu_length_accepted: 480
segmentation_supported: receive
apdu_timeout: 1500ms
number_of_apdu_retries: 2
segment_ack_timeout: 1s
shutdown_timeout: 5s
logging:
  level: DEBUG
  format: json
  output: stderr
metrics:
  enabled: true
  port: 9191
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 4200, cfg.InstanceNumber)
	assert.Equal(t, "10.0.0.5", cfg.Interface)
	assert.Equal(t, SegmentationReceive, cfg.SegmentationSupported)
	assert.Equal(t, 1500*time.Millisecond, cfg.APDUTimeout)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidateRejectsBadInstanceNumber(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InstanceNumber = 4194303 // reserved wildcard, one past the valid range
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsIPv6WithEthernet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPv6 = true
	cfg.EthernetInterface = "eth0"
	assert.Error(t, Validate(cfg))
}

func TestIsBBMDAndForeignDevice(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.IsBBMD())
	assert.False(t, cfg.IsForeignDevice())

	cfg.BBMD.BDT = []BDTEntry{}
	assert.True(t, cfg.IsBBMD())

	cfg.BBMD.Address = "10.0.0.1:47808"
	assert.True(t, cfg.IsForeignDevice())
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.InstanceNumber = 77
	require.NoError(t, Save(cfg, path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 77, reloaded.InstanceNumber)
}
