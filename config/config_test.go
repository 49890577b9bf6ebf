package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 44818, cfg.PLC.Port)
	assert.Equal(t, 5*time.Second, cfg.Control.AckTimeout)
	assert.Equal(t, "continuous", cfg.Control.CycleMode)
	assert.True(t, cfg.PLC.AutoReconnect)
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
plc:
  ip: 10.0.0.5
  port: 44818
  connection_timeout: 5s
  simulated: true
control:
  cycle_mode: manual
tags:
  RobotAck: CustomRobot_Ack
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.PLC.IP)
	assert.True(t, cfg.PLC.Simulated)
	assert.Equal(t, "manual", cfg.Control.CycleMode)
	assert.Equal(t, "CustomRobot_Ack", cfg.Tags["RobotAck"])
	// Values not present in the file keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Control.PickTimeout)
	assert.Equal(t, 2, cfg.PLC.IORetries)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty ip", func(c *Config) { c.PLC.IP = "" }},
		{"port out of range", func(c *Config) { c.PLC.Port = 70000 }},
		{"zero connection timeout", func(c *Config) { c.PLC.ConnectionTimeout = 0 }},
		{"io retries too high", func(c *Config) { c.PLC.IORetries = 9 }},
		{"negative max retries", func(c *Config) { c.PLC.MaxRetries = -1 }},
		{"heartbeat too fast", func(c *Config) { c.PLC.HeartbeatInterval = time.Millisecond }},
		{"zero ack timeout", func(c *Config) { c.Control.AckTimeout = 0 }},
		{"zero poll interval", func(c *Config) { c.Control.PollInterval = 0 }},
		{"unknown cycle mode", func(c *Config) { c.Control.CycleMode = "turbo" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			assert.Error(t, err)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestSafeConfig_GetReturnsCopy(t *testing.T) {
	sc := NewSafeConfig(Default())

	got := sc.Get()
	got.PLC.IP = "changed"

	assert.NotEqual(t, "changed", sc.Get().PLC.IP)
}

func TestSafeConfig_UpdateValidates(t *testing.T) {
	sc := NewSafeConfig(Default())

	bad := Default()
	bad.PLC.IP = ""
	assert.Error(t, sc.Update(bad))

	good := Default()
	good.PLC.IP = "10.1.1.1"
	require.NoError(t, sc.Update(good))
	assert.Equal(t, "10.1.1.1", sc.Get().PLC.IP)
}

func TestSafeConfig_NilConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	assert.NoError(t, sc.Get().Validate())

	assert.Error(t, sc.Update(nil))
}
