package udfvol

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/s0up4200/go-udfvol/internal/fs"
	"github.com/s0up4200/go-udfvol/internal/fs/udf"
	"github.com/s0up4200/go-udfvol/internal/retry"
)

// ExtractOptions configure one Extract call.
type ExtractOptions struct {
	Image string
	// Destination is the directory the volume root is copied into. It is
	// created when missing.
	Destination string
	Key         []byte
	Settings    Settings
	// DestFs receives the extracted tree; nil writes to the host disk.
	DestFs     afero.Fs
	Logger     *zap.Logger
	OnProgress func(ProgressEvent)
}

// ExtractResult summarises an extraction.
type ExtractResult struct {
	Label       string
	Files       uint32
	Directories uint32
	Bytes       int64
}

// Extract copies every directory and file of Image below Destination.
func Extract(ctx context.Context, options ExtractOptions) (ExtractResult, error) {
	if options.Image == "" {
		return ExtractResult{}, errors.New("image is required")
	}
	if options.Destination == "" {
		return ExtractResult{}, errors.New("destination is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := loggerOrNop(options.Logger)
	cfg, err := resolveSettings(options.Settings)
	if err != nil {
		return ExtractResult{}, err
	}

	start := time.Now()
	emit(options.OnProgress, ProgressEvent{
		Stage:      StageStarting,
		Path:       options.Image,
		OccurredAt: time.Now(),
	})
	img, err := fs.OpenImage(options.Image, fs.ImageOptions{
		Key:        options.Key,
		Compliance: cfg.ComplianceMode(),
		Logger:     log,
	})
	if err != nil {
		return ExtractResult{}, err
	}
	defer img.Close()

	destFs := options.DestFs
	if destFs == nil {
		destFs = afero.NewOsFs()
	}
	s := &hostSink{
		ctx:    ctx,
		fs:     destFs,
		root:   options.Destination,
		log:    log,
		ignore: cfg.IgnoreTimestampErrors,
		policy: retry.Policy{
			Attempts:   cfg.TimestampRetries,
			Initial:    cfg.TimestampBackoff,
			Multiplier: 2,
		},
	}
	var result ExtractResult
	l := &progressListener{
		ctx:        ctx,
		onProgress: options.OnProgress,
		stage:      StageExtracting,
		mounted: func(info udf.VolumeInfo) {
			result.Label = info.Label
			result.Files = info.Files
			result.Directories = info.Directories
			emit(options.OnProgress, ProgressEvent{
				Stage:       StageMounted,
				Path:        options.Image,
				Blocks:      uint32(info.Blocks),
				Files:       info.Files,
				Directories: info.Directories,
				OccurredAt:  time.Now(),
			})
		},
	}
	if err := img.Reader.Extract(s, l); err != nil {
		return ExtractResult{}, l.cause(err)
	}
	result.Bytes = s.written

	log.Info("volume extracted",
		zap.String("image", options.Image),
		zap.String("destination", options.Destination),
		zap.Int64("bytes", s.written),
		zap.Duration("elapsed", time.Since(start)))
	emit(options.OnProgress, ProgressEvent{
		Stage:       StageDone,
		Path:        options.Destination,
		Files:       result.Files,
		Directories: result.Directories,
		Elapsed:     time.Since(start),
		OccurredAt:  time.Now(),
	})
	return result, nil
}

// hostSink materialises an extracted tree on an afero filesystem.
type hostSink struct {
	ctx     context.Context
	fs      afero.Fs
	root    string
	log     *zap.Logger
	ignore  bool
	policy  retry.Policy
	written int64
}

// hostPath maps a volume path below root. Volume paths are clean and
// absolute so the result cannot leave root.
func (s *hostSink) hostPath(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}

func (s *hostSink) MakeDirectory(p string) error {
	return s.fs.MkdirAll(s.hostPath(p), 0o755)
}

func (s *hostSink) CreateFile(p string, _ int64) (io.WriteCloser, error) {
	f, err := s.fs.OpenFile(s.hostPath(p), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &countingFile{File: f, n: &s.written}, nil
}

// SetModTime retries Chtimes; with ignore set a persistent failure is
// logged instead of returned.
func (s *hostSink) SetModTime(p string, t time.Time) error {
	target := s.hostPath(p)
	err := s.policy.Do(s.ctx, func() error {
		return s.fs.Chtimes(target, t, t)
	})
	if err != nil && s.ignore && s.ctx.Err() == nil {
		s.log.Warn("failed to set modification time", zap.String("path", target), zap.Error(err))
		return nil
	}
	return err
}

type countingFile struct {
	afero.File
	n *int64
}

func (f *countingFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	*f.n += int64(n)
	return n, err
}
