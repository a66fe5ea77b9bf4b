// Package config loads and validates BACstack's runtime configuration:
// the device identity, per-adapter settings, and TSM/segmentation timing
// parameters.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (BACSTACK_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bactalk/bacstack/internal/bytesize"
)

// Segmentation support levels recognized by the segmentation-supported
// option.
const (
	SegmentationBoth    = "both"
	SegmentationReceive = "receive"
	SegmentationSend    = "send"
	SegmentationNone    = "none"
)

// Config is BACstack's top-level configuration.
type Config struct {
	// InstanceNumber is this device's BACnet object instance, 0..4194302.
	// Zero is a legal instance number, so the range check alone guards it.
	InstanceNumber uint32 `mapstructure:"instance_number" validate:"lt=4194303" yaml:"instance_number"`

	// Interface is the local bind address for IP-based adapters.
	Interface string `mapstructure:"interface" validate:"required" yaml:"interface"`

	// Port is the UDP port used by the IPv4 and IPv6 adapters.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// MaxAPDULengthAccepted is this station's declared max-APDU size, one
	// of 50, 128, 206, 480, 1024, 1476.
	MaxAPDULengthAccepted int `mapstructure:"max_apdu_length_accepted" validate:"oneof=50 128 206 480 1024 1476" yaml:"max_apdu_length_accepted"`

	// SegmentationSupported controls which direction(s) of segmented
	// transfer this station will negotiate.
	SegmentationSupported string `mapstructure:"segmentation_supported" validate:"oneof=both receive send none" yaml:"segmentation_supported"`

	// APDUTimeout is the per-retry timeout for outbound confirmed requests.
	APDUTimeout time.Duration `mapstructure:"apdu_timeout" validate:"required,gt=0" yaml:"apdu_timeout"`

	// NumberOfAPDURetries is the number of resends before a confirmed
	// request times out locally.
	NumberOfAPDURetries int `mapstructure:"number_of_apdu_retries" validate:"gte=0" yaml:"number_of_apdu_retries"`

	// SegmentAckTimeout bounds how long the segmentation sender waits for
	// a segment-ack before retransmitting its outstanding window.
	SegmentAckTimeout time.Duration `mapstructure:"segment_ack_timeout" validate:"required,gt=0" yaml:"segment_ack_timeout"`

	// BBMD configures this station as a foreign device (when Address is
	// set) and/or as a BBMD (when BDT is non-nil).
	BBMD BBMDConfig `mapstructure:"bbmd" yaml:"bbmd"`

	// IPv6 enables the BACnet/IPv6 adapter in place of BACnet/IP.
	IPv6 bool `mapstructure:"ipv6" yaml:"ipv6"`

	// Ethernet configures the raw 802.2 adapter; leave EthernetInterface
	// empty to disable it.
	EthernetInterface string `mapstructure:"ethernet_interface" yaml:"ethernet_interface,omitempty"`
	EthernetMAC       string `mapstructure:"ethernet_mac" yaml:"ethernet_mac,omitempty"`

	// SC configures the BACnet Secure Connect (WebSocket) adapter.
	SC SCConfig `mapstructure:"sc_config" yaml:"sc_config"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the Prometheus metrics HTTP surface.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout bounds how long graceful shutdown waits for
	// in-flight handlers to drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// BBMDConfig configures foreign-device registration and/or BBMD operation.
type BBMDConfig struct {
	// Address is the target BBMD's host:port. If set, this station
	// registers as a foreign device on start.
	Address string `mapstructure:"address" yaml:"address,omitempty"`

	// TTLSeconds is the registration time-to-live requested of the BBMD.
	TTLSeconds int `mapstructure:"ttl_seconds" validate:"omitempty,gt=0" yaml:"ttl_seconds,omitempty"`

	// BDT, if non-nil (even if empty), makes this station operate as a
	// BBMD with the given static broadcast-distribution peers.
	BDT []BDTEntry `mapstructure:"bdt" yaml:"bdt,omitempty"`
}

// BDTEntry is one static peer in a BBMD's Broadcast Distribution Table.
type BDTEntry struct {
	Address string `mapstructure:"address" validate:"required" yaml:"address"`
	Mask    string `mapstructure:"mask" yaml:"mask,omitempty"`
}

// SCConfig configures the BACnet/SC WebSocket adapter.
type SCConfig struct {
	PrimaryHubURI  string `mapstructure:"primary_hub_uri" yaml:"primary_hub_uri,omitempty"`
	FailoverHubURI string `mapstructure:"failover_hub_uri" yaml:"failover_hub_uri,omitempty"`
	TLSKeyPath     string `mapstructure:"tls_key_path" yaml:"tls_key_path,omitempty"`
	TLSCertPath    string `mapstructure:"tls_cert_path" yaml:"tls_cert_path,omitempty"`
	TLSCAPath      string `mapstructure:"tls_ca_path" yaml:"tls_ca_path,omitempty"`

	// AllowPlaintext permits a non-TLS connection to the hub. Testing
	// only — never set in production.
	AllowPlaintext bool `mapstructure:"allow_plaintext" yaml:"allow_plaintext,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the admin HTTP surface (health, Prometheus
// metrics, pprof). When AuthUsername is set, every endpoint requires
// HTTP basic auth checked against the bcrypt hash in AuthPasswordHash.
type MetricsConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	Port             int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
	AuthUsername     string `mapstructure:"auth_username" yaml:"auth_username,omitempty"`
	AuthPasswordHash string `mapstructure:"auth_password_hash" yaml:"auth_password_hash,omitempty"`
}

// IsBBMD reports whether this station should operate as a BBMD.
func (c *Config) IsBBMD() bool { return c.BBMD.BDT != nil }

// IsForeignDevice reports whether this station should register as a
// foreign device with a remote BBMD.
func (c *Config) IsForeignDevice() bool { return c.BBMD.Address != "" }

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config: default configuration failed validation: %w", err)
		}
		return cfg, nil
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path in YAML, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks cfg against its struct-tag constraints plus cross-field
// rules the struct tags can't express (IPv6 being mutually exclusive
// with some IPv4-only options).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.IPv6 && cfg.EthernetInterface != "" {
		return fmt.Errorf("config: ipv6 and ethernet_interface are mutually exclusive")
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BACSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook lets config values like cache/buffer sizes be written
// as human-readable strings ("1MiB") instead of a raw integer.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bacstack")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "bacstack")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
