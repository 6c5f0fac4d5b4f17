package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	segtrack "github.com/getcharzp/go-segtrack"
	"github.com/getcharzp/go-segtrack/config"
	"github.com/getcharzp/go-segtrack/console"
	"github.com/getcharzp/go-segtrack/cvview"
	"github.com/getcharzp/go-segtrack/frames"
	"github.com/getcharzp/go-segtrack/overlay"
	"github.com/getcharzp/go-segtrack/segment"
	"github.com/getcharzp/go-segtrack/store"
	"github.com/getcharzp/go-segtrack/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version 程序版本
const Version = "0.1.0"

var (
	configPath string
	flags      config.Config

	cfg    *config.Config
	logger *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:          "segtrack",
	Short:        "Interactive point-prompted segmentation and centroid tracking",
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err = segtrack.NewLogger(cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "JSON configuration file")
	pf.StringVar(&flags.InputDir, "input", "", "input root directory (default /input)")
	pf.StringVar(&flags.OutputDir, "output", "", "output root directory (default /output)")
	pf.StringVar(&flags.VideosDir, "videos", "", "videos directory (default /app/videos)")
	pf.StringVar(&flags.FramesDir, "frames", "", "frames output directory (default /app/frames)")
	pf.StringVar(&flags.OnnxRuntimeLibPath, "ort-lib", "", "path of the ONNX Runtime shared library")
	pf.StringVar(&flags.EncodeModelPath, "encoder", "", "SAM2 image encoder model")
	pf.StringVar(&flags.DecodeModelPath, "decoder-model", "", "SAM2 prompt/mask decoder model")
	pf.BoolVar(&flags.UseCuda, "cuda", false, "enable the CUDA execution provider")
	pf.IntVar(&flags.NumThreads, "threads", 0, "ONNX Runtime intra-op threads (0 = runtime default)")
	pf.StringVar(&flags.FontPath, "font", "", "TrueType font for annotations (default: built-in Go font)")
	pf.BoolVar(&flags.Headless, "headless", false, "write previews to disk instead of opening windows")
	pf.StringVar(&flags.Decoder, "decoder", "", "video decoder backend: gocv or ffmpeg")
	pf.StringVar(&flags.DatabaseURL, "db", "", "PostgreSQL connection string for the session ledger")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
}

// applyFlags 命令行参数覆盖配置文件
func applyFlags(cmd *cobra.Command, c *config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("input", func() { c.InputDir = flags.InputDir })
	set("output", func() { c.OutputDir = flags.OutputDir })
	set("videos", func() { c.VideosDir = flags.VideosDir })
	set("frames", func() { c.FramesDir = flags.FramesDir })
	set("ort-lib", func() { c.OnnxRuntimeLibPath = flags.OnnxRuntimeLibPath })
	set("encoder", func() { c.EncodeModelPath = flags.EncodeModelPath })
	set("decoder-model", func() { c.DecodeModelPath = flags.DecodeModelPath })
	set("cuda", func() { c.UseCuda = flags.UseCuda })
	set("threads", func() { c.NumThreads = flags.NumThreads })
	set("font", func() { c.FontPath = flags.FontPath })
	set("headless", func() { c.Headless = flags.Headless })
	set("decoder", func() { c.Decoder = flags.Decoder })
	set("db", func() { c.DatabaseURL = flags.DatabaseURL })
	set("log-level", func() { c.LogLevel = flags.LogLevel })
}

func runMenu(ctx context.Context) error {
	adapter := segment.NewAdapter(segment.SAM2Opener(cfg.SAM2()), logger)
	defer func() {
		if err := adapter.Close(); err != nil {
			logger.Warnw("释放模型失败", "error", err)
		}
	}()

	composer, err := overlay.NewComposer(cfg.FontPath)
	if err != nil {
		return err
	}
	defer composer.Close()

	app := &workflow.App{
		Prompter: console.New(os.Stdin, os.Stdout),
		Loader:   frames.New(cfg.InputDir, logger),
		Model:    adapter,
		Composer: composer,
		Viewer:   newViewer(),
		Writer:   overlay.Writer{Root: cfg.OutputDir},
		Progress: os.Stderr,
		Headless: cfg.Headless,
		Logger:   logger,
	}

	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warnw("无法连接会话数据库, 本次不记录", "error", err)
		} else {
			defer db.Close(context.Background())
			app.Ledger = db
		}
	}
	return app.Run(ctx)
}

func newViewer() overlay.Viewer {
	if cfg.Headless {
		return &overlay.DiskViewer{Dir: filepath.Join(cfg.OutputDir, "previews"), Logger: logger}
	}
	return cvview.Window{}
}

// Execute 监听 Ctrl+C 并运行命令
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
