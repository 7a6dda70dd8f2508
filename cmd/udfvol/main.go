package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/blang/semver"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/s0up4200/go-udfvol/internal/config"
	"github.com/s0up4200/go-udfvol/internal/logger"
	"github.com/s0up4200/go-udfvol/internal/settings"
	"github.com/s0up4200/go-udfvol/pkg/udfvol"
)

var version = "dev"

const repoSlug = "s0up4200/go-udfvol"

type rootOptions struct {
	configFile string
	keyHex     string
	srcKeyHex  string
	output     string
	recursive  bool
	blockSize  int
	freeBlocks uint32
	label      string
	compliance string
	debug      bool
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	d := settings.Default()

	rootCmd := &cobra.Command{
		Use:           "udfvol",
		Short:         "Build, list and extract UDF 1.02 volume images.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Config file (default searches udfvol.yaml)")
	pf.StringVar(&opts.keyHex, "key-hex", "", "AES-XTS key as 64 or 128 hex digits")
	pf.StringVar(&opts.compliance, "compliance", d.Compliance, "Reader compliance: strict or lenient")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&opts.logFormat, "log-format", d.LogFormat, "Log format: human or json")

	makeCmd := &cobra.Command{
		Use:   "make <source-dir|source-image> <image>",
		Short: "Write a directory tree or the tree of another image to a new volume image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMake(cmd, opts, args[0], args[1])
		},
	}
	makeCmd.Flags().IntVar(&opts.blockSize, "block-size", d.BlockSize, "Logical block size in bytes")
	makeCmd.Flags().Uint32Var(&opts.freeBlocks, "free-blocks", d.FreeBlocks, "Unallocated blocks to reserve in the partition")
	makeCmd.Flags().StringVar(&opts.label, "label", d.Label, "Volume label")
	makeCmd.Flags().StringVar(&opts.srcKeyHex, "source-key-hex", "", "AES-XTS key of a source image as hex")

	lsCmd := &cobra.Command{
		Use:   "ls <image> [dir]",
		Short: "List a directory of a volume image",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 2 {
				dir = args[1]
			}
			return runList(cmd, opts, args[0], dir)
		},
	}
	lsCmd.Flags().BoolVarP(&opts.recursive, "recursive", "R", false, "List the whole subtree")
	lsCmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text, json or yaml")

	extractCmd := &cobra.Command{
		Use:   "extract <image> <dest-dir>",
		Short: "Copy every file of a volume image to a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, opts, args[0], args[1])
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Print the volume summary of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, opts, args[0])
		},
	}
	infoCmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text, json or yaml")

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update udfvol",
		Long:  "Update udfvol to latest version (release builds only).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd)
		},
		DisableFlagsInUseLine: true,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "udfvol version: %s\n", version)
			return nil
		},
		DisableFlagsInUseLine: true,
	}

	rootCmd.AddCommand(makeCmd, lsCmd, extractCmd, infoCmd, updateCmd, versionCmd)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "udfvol: %s\n", err.Error())
		os.Exit(1)
	}
}

// session is the configuration shared by every command run.
type session struct {
	settings settings.Settings
	key      []byte
	log      *zap.Logger
}

func newSession(cmd *cobra.Command, opts *rootOptions) (*session, error) {
	loaded, err := config.Load(opts.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	key, err := parseKey(opts.keyHex)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{Debug: loaded.Settings.Debug, Format: loaded.Settings.LogFormat})
	if err != nil {
		return nil, err
	}
	if loaded.File != "" {
		log.Debug("loaded config", zap.String("file", loaded.File))
	}
	return &session{settings: loaded.Settings, key: key, log: log}, nil
}

func (s *session) close() {
	_ = s.log.Sync()
}

// parseKey decodes an XTS key; empty means no encryption.
func parseKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	if len(key) != 32 && len(key) != 64 {
		return nil, fmt.Errorf("invalid key: need 32 or 64 bytes, got %d", len(key))
	}
	return key, nil
}

func runMake(cmd *cobra.Command, opts *rootOptions, source, image string) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	srcKey, err := parseKey(opts.srcKeyHex)
	if err != nil {
		return err
	}

	res, err := udfvol.Build(cmd.Context(), udfvol.BuildOptions{
		Source:     source,
		SourceKey:  srcKey,
		Output:     image,
		Key:        s.key,
		Settings:   udfvol.FromSettings(s.settings),
		Logger:     s.log,
		OnProgress: progressLogger(s.log),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Volume written: %s (%d files, %d directories, %d blocks of %d bytes)\n",
		res.Output, res.Files, res.Directories, res.Blocks, res.BlockSize)
	return nil
}

func runExtract(cmd *cobra.Command, opts *rootOptions, image, dest string) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := udfvol.Extract(cmd.Context(), udfvol.ExtractOptions{
		Image:       image,
		Destination: dest,
		Key:         s.key,
		Settings:    udfvol.FromSettings(s.settings),
		Logger:      s.log,
		OnProgress:  progressLogger(s.log),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Extracted %q: %d files, %d directories, %d bytes\n",
		res.Label, res.Files, res.Directories, res.Bytes)
	return nil
}

func runList(cmd *cobra.Command, opts *rootOptions, image, dir string) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	entries, err := udfvol.List(image, s.key, udfvol.FromSettings(s.settings), dir, opts.recursive)
	if err != nil {
		return err
	}
	return writeEntries(cmd.OutOrStdout(), opts.output, entries)
}

func runInfo(cmd *cobra.Command, opts *rootOptions, image string) error {
	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	info, err := udfvol.Inspect(image, s.key, udfvol.FromSettings(s.settings))
	if err != nil {
		return err
	}
	return writeInfo(cmd.OutOrStdout(), opts.output, info)
}

func progressLogger(log *zap.Logger) func(udfvol.ProgressEvent) {
	return func(e udfvol.ProgressEvent) {
		switch e.Stage {
		case udfvol.StageWriting, udfvol.StageExtracting:
			log.Debug("file", zap.String("stage", string(e.Stage)), zap.String("path", e.Path), zap.Int64("size", e.FileSize))
		case udfvol.StageDone:
			log.Info("done", zap.String("path", e.Path), zap.Duration("elapsed", e.Elapsed))
		default:
			log.Debug(string(e.Stage), zap.String("path", e.Path), zap.Uint32("blocks", e.Blocks))
		}
	}
}

func runSelfUpdate(cmd *cobra.Command) error {
	if version == "" || version == "dev" {
		return errors.New("self-update is only available in release builds")
	}

	if _, err := semver.ParseTolerant(version); err != nil {
		return fmt.Errorf("could not parse version: %w", err)
	}

	ctx := cmd.Context()
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repoSlug))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for %s/%s could not be found from github repository", repoSlug, version)
	}

	out := cmd.OutOrStdout()
	if latest.LessOrEqual(version) {
		fmt.Fprintf(out, "Current binary is the latest version: %s\n", version)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Fprintf(out, "Successfully updated to version: %s\n", latest.Version())
	return nil
}
