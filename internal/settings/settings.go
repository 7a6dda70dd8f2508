package settings

import (
	"fmt"
	"time"

	"github.com/s0up4200/go-udfvol/internal/blockdev"
	"github.com/s0up4200/go-udfvol/internal/fs/udf"
)

// Settings mirrors udfvol options.
type Settings struct {
	BlockSize             int           `mapstructure:"block_size"`
	FreeBlocks            uint32        `mapstructure:"free_blocks"`
	Label                 string        `mapstructure:"label"`
	VolumeSetID           string        `mapstructure:"volume_set_id"`
	MaxDirectoryBlocks    uint32        `mapstructure:"max_directory_blocks"`
	MaxPathLength         int           `mapstructure:"max_path_length"`
	Compliance            string        `mapstructure:"compliance"`
	TimestampRetries      int           `mapstructure:"timestamp_retries"`
	TimestampBackoff      time.Duration `mapstructure:"timestamp_backoff"`
	IgnoreTimestampErrors bool          `mapstructure:"ignore_timestamp_errors"`
	Debug                 bool          `mapstructure:"debug"`
	LogFormat             string        `mapstructure:"log_format"`
}

func Default() Settings {
	return Settings{
		BlockSize:             udf.DefaultBlockSize,
		FreeBlocks:            0,
		Label:                 udf.DefaultLabel,
		MaxDirectoryBlocks:    udf.MaxLength(udf.DefaultBlockSize) / udf.DefaultBlockSize,
		MaxPathLength:         udf.DefaultMaxPathLength,
		Compliance:            udf.Strict.String(),
		TimestampRetries:      5,
		TimestampBackoff:      50 * time.Millisecond,
		IgnoreTimestampErrors: true,
		Debug:                 false,
		LogFormat:             "human",
	}
}

// Validate reports the first setting a volume cannot be built or read
// with.
func (s Settings) Validate() error {
	if err := blockdev.ValidBlockSize(s.BlockSize); err != nil {
		return err
	}
	if _, err := udf.ParseCompliance(s.Compliance); err != nil {
		return err
	}
	if s.MaxPathLength <= 0 {
		return fmt.Errorf("max path length must be positive, got %d", s.MaxPathLength)
	}
	if s.TimestampRetries < 1 {
		return fmt.Errorf("timestamp retries must be at least 1, got %d", s.TimestampRetries)
	}
	if s.TimestampBackoff < 0 {
		return fmt.Errorf("timestamp backoff must not be negative, got %s", s.TimestampBackoff)
	}
	switch s.LogFormat {
	case "human", "json":
	default:
		return fmt.Errorf("log format must be human or json, got %q", s.LogFormat)
	}
	return nil
}

// WriterConfig returns the volume writer configuration.
func (s Settings) WriterConfig() udf.Config {
	return udf.Config{
		BlockSize:          s.BlockSize,
		FreeBlocks:         s.FreeBlocks,
		Label:              s.Label,
		VolumeSetID:        s.VolumeSetID,
		MaxDirectoryBlocks: s.MaxDirectoryBlocks,
		MaxPathLength:      s.MaxPathLength,
	}
}

// ComplianceMode parses Compliance, falling back to strict.
func (s Settings) ComplianceMode() udf.Compliance {
	c, err := udf.ParseCompliance(s.Compliance)
	if err != nil {
		return udf.Strict
	}
	return c
}
