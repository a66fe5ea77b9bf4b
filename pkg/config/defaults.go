package config

import "time"

// DefaultConfig returns a Config populated with this stack's documented
// defaults. Callers typically start from this and override specific
// fields from flags/env/file.
func DefaultConfig() *Config {
	return &Config{
		InstanceNumber:         0,
		Interface:              "0.0.0.0",
		Port:                   0xBAC0,
		MaxAPDULengthAccepted:  1476,
		SegmentationSupported:  SegmentationBoth,
		APDUTimeout:            3 * time.Second,
		NumberOfAPDURetries:    3,
		SegmentAckTimeout:      2 * time.Second,
		ShutdownTimeout:        10 * time.Second,
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}
