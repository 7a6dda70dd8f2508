package udfvol

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/s0up4200/go-udfvol/internal/blockdev"
	"github.com/s0up4200/go-udfvol/internal/fs"
	"github.com/s0up4200/go-udfvol/internal/fs/udf"
	internalsettings "github.com/s0up4200/go-udfvol/internal/settings"
)

// Stage represents a coarse progress stage for Build and Extract.
type Stage string

const (
	StageStarting   Stage = "starting"
	StageRegistered Stage = "registered"
	StageResolved   Stage = "resolved"
	StageWriting    Stage = "writing"
	StageMounted    Stage = "mounted"
	StageExtracting Stage = "extracting"
	StageDone       Stage = "done"
)

// ProgressEvent is emitted when an operation moves between phases and
// before each file is transferred.
type ProgressEvent struct {
	Stage       Stage
	Path        string
	Blocks      uint32
	Files       uint32
	Directories uint32
	FileSize    int64
	Elapsed     time.Duration
	OccurredAt  time.Time
}

// Settings are library-facing layout and extraction controls.
type Settings struct {
	BlockSize             int
	FreeBlocks            uint32
	Label                 string
	VolumeSetID           string
	MaxDirectoryBlocks    uint32
	MaxPathLength         int
	Compliance            string
	TimestampRetries      int
	TimestampBackoff      time.Duration
	IgnoreTimestampErrors bool
}

// DefaultSettings returns library defaults equivalent to CLI defaults.
func DefaultSettings() Settings {
	return fromInternalSettings(internalsettings.Default())
}

// BuildOptions configure one Build call.
type BuildOptions struct {
	// Source is the host directory that becomes the volume root. A regular
	// file on the host disk is read as a volume image and its tree is
	// copied.
	Source string
	// SourceKey decrypts a Source image.
	SourceKey []byte
	// Output is the image file to create.
	Output string
	// Key encrypts the image with AES-XTS when set (32 or 64 bytes).
	Key      []byte
	Settings Settings
	// RecordingTime stamps the volume; now when zero.
	RecordingTime time.Time
	// SourceFs reads the source tree; nil uses the host disk.
	SourceFs   afero.Fs
	Logger     *zap.Logger
	OnProgress func(ProgressEvent)
}

// BuildResult describes a written image.
type BuildResult struct {
	Output      string
	Label       string
	BlockSize   int
	Blocks      uint32
	Files       uint32
	Directories uint32
	FreeBlocks  uint32
}

// Build lays out the Source tree and writes it to Output. A partially
// written image is removed when Build fails.
func Build(ctx context.Context, options BuildOptions) (BuildResult, error) {
	if options.Source == "" {
		return BuildResult{}, errors.New("source is required")
	}
	if options.Output == "" {
		return BuildResult{}, errors.New("output is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return BuildResult{}, err
	}
	log := loggerOrNop(options.Logger)
	cfg, err := resolveSettings(options.Settings)
	if err != nil {
		return BuildResult{}, err
	}

	start := time.Now()
	emit(options.OnProgress, ProgressEvent{
		Stage:      StageStarting,
		Path:       options.Source,
		OccurredAt: time.Now(),
	})

	wcfg := cfg.WriterConfig()
	wcfg.RecordingTime = options.RecordingTime
	wcfg.Logger = log
	w, err := udf.NewWriter(wcfg)
	if err != nil {
		return BuildResult{}, err
	}
	root, closeSource, err := openSource(options, cfg.ComplianceMode(), log)
	if err != nil {
		return BuildResult{}, err
	}
	defer closeSource()
	if err := fs.Register(w, root); err != nil {
		return BuildResult{}, err
	}
	emit(options.OnProgress, ProgressEvent{
		Stage:      StageRegistered,
		Path:       options.Source,
		OccurredAt: time.Now(),
	})
	if err := ctx.Err(); err != nil {
		return BuildResult{}, err
	}

	blocks, err := w.Resolve()
	if err != nil {
		return BuildResult{}, err
	}
	layout, err := w.Layout()
	if err != nil {
		return BuildResult{}, err
	}
	emit(options.OnProgress, ProgressEvent{
		Stage:       StageResolved,
		Path:        options.Output,
		Blocks:      blocks,
		Files:       layout.Files,
		Directories: layout.Directories,
		OccurredAt:  time.Now(),
	})

	if err := writeImage(ctx, w, blocks, options); err != nil {
		return BuildResult{}, err
	}
	log.Info("volume written",
		zap.String("output", options.Output),
		zap.String("label", w.Label()),
		zap.Uint32("blocks", blocks),
		zap.Duration("elapsed", time.Since(start)))

	emit(options.OnProgress, ProgressEvent{
		Stage:       StageDone,
		Path:        options.Output,
		Blocks:      blocks,
		Files:       layout.Files,
		Directories: layout.Directories,
		Elapsed:     time.Since(start),
		OccurredAt:  time.Now(),
	})
	return BuildResult{
		Output:      options.Output,
		Label:       w.Label(),
		BlockSize:   layout.BlockSize,
		Blocks:      blocks,
		Files:       layout.Files,
		Directories: layout.Directories,
		FreeBlocks:  layout.FreeBlocks,
	}, nil
}

// openSource returns the tree to register and a func that releases it.
func openSource(options BuildOptions, compliance udf.Compliance, log *zap.Logger) (fs.DirectoryInfo, func(), error) {
	if options.SourceFs == nil {
		if st, err := os.Stat(options.Source); err == nil && st.Mode().IsRegular() {
			image := fs.NewISOFileSystem(fs.ImageOptions{Key: options.SourceKey, Compliance: compliance, Logger: log})
			if err := image.Mount(options.Source); err != nil {
				return nil, nil, err
			}
			root, err := image.GetDirectoryInfo("/")
			if err != nil {
				_ = image.Unmount()
				return nil, nil, err
			}
			log.Debug("copying volume image",
				zap.String("source", options.Source),
				zap.String("label", image.GetVolumeLabel()))
			return root, func() { _ = image.Unmount() }, nil
		}
	}
	root, err := fs.NewDiskFileSystem(options.SourceFs).GetDirectoryInfo(options.Source)
	if err != nil {
		return nil, nil, err
	}
	return root, func() {}, nil
}

func writeImage(ctx context.Context, w *udf.Writer, blocks uint32, options BuildOptions) (err error) {
	file, err := blockdev.Create(options.Output, w.BlockSize(), int64(blocks))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, file.Close())
		if err != nil {
			err = multierr.Append(err, removeIfExists(options.Output))
		}
	}()

	var dev blockdev.Device = file
	if options.Key != nil {
		if dev, err = blockdev.NewXTS(file, options.Key); err != nil {
			return err
		}
	}
	l := &progressListener{ctx: ctx, onProgress: options.OnProgress, stage: StageWriting}
	if err := w.Make(dev, l); err != nil {
		return l.cause(err)
	}
	return file.Sync()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// progressListener turns checkpoints into progress events and aborts once
// ctx is done.
type progressListener struct {
	udf.BaseListener
	ctx        context.Context
	onProgress func(ProgressEvent)
	stage      Stage
	mounted    func(udf.VolumeInfo)
}

func (l *progressListener) check() udf.Action {
	if l.ctx.Err() != nil {
		return udf.Abort
	}
	return udf.Continue
}

func (l *progressListener) Mounted(info udf.VolumeInfo) udf.Action {
	if l.mounted != nil {
		l.mounted(info)
	}
	return l.check()
}

func (l *progressListener) Directory(string, time.Time) udf.Action {
	return l.check()
}

func (l *progressListener) File(path string, size int64, _ time.Time) udf.Action {
	emit(l.onProgress, ProgressEvent{
		Stage:      l.stage,
		Path:       path,
		FileSize:   size,
		OccurredAt: time.Now(),
	})
	return l.check()
}

func (l *progressListener) Progress(string, int64, int64) udf.Action {
	return l.check()
}

// cause reports the context error behind an abort.
func (l *progressListener) cause(err error) error {
	if errors.Is(err, udf.ErrAborted) && l.ctx.Err() != nil {
		return fmt.Errorf("%w: %w", err, l.ctx.Err())
	}
	return err
}

func emit(cb func(ProgressEvent), event ProgressEvent) {
	if cb != nil {
		cb(event)
	}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func fromInternalSettings(s internalsettings.Settings) Settings {
	return Settings{
		BlockSize:             s.BlockSize,
		FreeBlocks:            s.FreeBlocks,
		Label:                 s.Label,
		VolumeSetID:           s.VolumeSetID,
		MaxDirectoryBlocks:    s.MaxDirectoryBlocks,
		MaxPathLength:         s.MaxPathLength,
		Compliance:            s.Compliance,
		TimestampRetries:      s.TimestampRetries,
		TimestampBackoff:      s.TimestampBackoff,
		IgnoreTimestampErrors: s.IgnoreTimestampErrors,
	}
}

func toInternalSettings(s Settings) internalsettings.Settings {
	base := internalsettings.Default()
	base.BlockSize = s.BlockSize
	base.FreeBlocks = s.FreeBlocks
	base.Label = s.Label
	base.VolumeSetID = s.VolumeSetID
	base.MaxDirectoryBlocks = s.MaxDirectoryBlocks
	base.MaxPathLength = s.MaxPathLength
	base.Compliance = s.Compliance
	base.TimestampRetries = s.TimestampRetries
	base.TimestampBackoff = s.TimestampBackoff
	base.IgnoreTimestampErrors = s.IgnoreTimestampErrors
	return base
}

// resolveSettings validates s, substituting the defaults for a zero value.
func resolveSettings(s Settings) (internalsettings.Settings, error) {
	if s == (Settings{}) {
		return internalsettings.Default(), nil
	}
	cfg := toInternalSettings(s)
	if err := cfg.Validate(); err != nil {
		return internalsettings.Settings{}, err
	}
	return cfg, nil
}

// FromSettings converts loaded configuration into library settings.
func FromSettings(s internalsettings.Settings) Settings {
	return fromInternalSettings(s)
}
