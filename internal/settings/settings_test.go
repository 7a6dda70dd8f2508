package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/go-udfvol/internal/fs/udf"
)

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, 512, s.BlockSize)
	assert.Equal(t, "UDFVOL", s.Label)
	assert.Equal(t, udf.Strict, s.ComplianceMode())
	assert.True(t, s.IgnoreTimestampErrors)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"block size", func(s *Settings) { s.BlockSize = 1000 }},
		{"compliance", func(s *Settings) { s.Compliance = "sloppy" }},
		{"path length", func(s *Settings) { s.MaxPathLength = 0 }},
		{"retries", func(s *Settings) { s.TimestampRetries = 0 }},
		{"backoff", func(s *Settings) { s.TimestampBackoff = -1 }},
		{"log format", func(s *Settings) { s.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestWriterConfig(t *testing.T) {
	s := Default()
	s.BlockSize = 2048
	s.FreeBlocks = 12
	s.Label = "Archive"
	cfg := s.WriterConfig()
	assert.Equal(t, 2048, cfg.BlockSize)
	assert.Equal(t, uint32(12), cfg.FreeBlocks)
	assert.Equal(t, "Archive", cfg.Label)

	w, err := udf.NewWriter(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Archive", w.Label())
}

func TestComplianceModeFallsBackToStrict(t *testing.T) {
	s := Default()
	s.Compliance = "lenient"
	assert.Equal(t, udf.Lenient, s.ComplianceMode())
	s.Compliance = "bogus"
	assert.Equal(t, udf.Strict, s.ComplianceMode())
}
