// Package workflow 控制台菜单和各个交互会话
package workflow

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/getcharzp/go-segtrack/console"
	"github.com/getcharzp/go-segtrack/coords"
	"github.com/getcharzp/go-segtrack/frames"
	"github.com/getcharzp/go-segtrack/overlay"
	"github.com/getcharzp/go-segtrack/segment"
	"github.com/getcharzp/go-segtrack/track"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const menuRule = "=============================="

// Segmenter 分割模型, 由 segment.Adapter 实现
type Segmenter interface {
	Initialize() error
	SetImage(img image.Image) error
	PredictFromPoint(pt image.Point) (segment.Prediction, error)
}

// Ledger 跟踪会话记录, 由 store.Store 实现
type Ledger interface {
	BeginSession(ctx context.Context, inputDir, outputDir string, totalFrames int) (int64, error)
	RecordFrame(ctx context.Context, sessionID int64, r track.FrameResult) error
	FinishSession(ctx context.Context, sessionID int64, rep track.Report) error
}

// App 分割与跟踪程序
type App struct {
	Prompter *console.Prompter
	Loader   *frames.Loader
	Model    Segmenter
	Composer *overlay.Composer
	Viewer   overlay.Viewer
	Writer   overlay.Writer

	Ledger   Ledger    // 可为 nil
	Progress io.Writer // 跟踪进度条, 可为 nil
	Headless bool      // 预览不阻塞, 不输出按键提示
	Logger   *zap.SugaredLogger
}

func (a *App) logger() *zap.SugaredLogger {
	if a.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return a.Logger
}

// Run 显示菜单直到用户退出或输入结束
func (a *App) Run(ctx context.Context) error {
	p := a.Prompter
	p.Println("Welcome to the Interactive Segmenter and Tracker!")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.Println("\n" + menuRule)
		p.Println("Choose your workflow:")
		p.Println("1. Interactively segment a single image")
		p.Println("2. Track object in a folder of frames")
		p.Println("q. Quit")
		p.Println(menuRule)

		choice, err := p.Ask("Enter your choice (1, 2, or q): ")
		if err != nil {
			return a.exit(err)
		}
		switch {
		case choice == "1":
			err = a.RunInteractive(ctx)
		case choice == "2":
			err = a.RunTracking(ctx)
		case strings.EqualFold(choice, "q"):
			return a.exit(nil)
		default:
			p.Println("Invalid choice. Please try again.")
		}
		if err != nil {
			return a.exit(err)
		}
	}
}

// exit 输入结束视为正常退出
func (a *App) exit(err error) error {
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	a.Prompter.Println("Exiting program.")
	return nil
}

// RunInteractive 单张图片的交互式分割
func (a *App) RunInteractive(ctx context.Context) error {
	p := a.Prompter
	for {
		name, err := p.Ask(fmt.Sprintf("Enter the name of your image file in '%s': ", a.Loader.Root()))
		if err != nil {
			return err
		}
		if err := a.Loader.LoadSingle(name); err != nil {
			p.Printf("An error occurred while loading the file: %v\n", err)
			p.Println("Image loading failed. Please try again.")
			continue
		}
		p.Printf("Successfully loaded image from %s\n", filepath.Join(a.Loader.Root(), name))
		break
	}
	img, err := a.Loader.Image()
	if err != nil {
		return err
	}

	a.show(a.Loader.Title(), img, "Image window is open. Press any key to close it and continue.")
	if err := a.Model.Initialize(); err != nil {
		return err
	}
	p.Println("Setting image in the predictor (computing embeddings)...")
	if err := a.Model.SetImage(img); err != nil {
		return err
	}
	p.Println("Embeddings computed and predictor is ready.")

	w, h := img.Rect.Dx(), img.Rect.Dy()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := p.Ask("Enter relative coordinates or 'q' to quit (e.g. '10 20' or 'q'): ")
		if err != nil {
			return err
		}
		if strings.EqualFold(line, "q") {
			return nil
		}
		relX, relY, err := coords.ParsePair(line)
		if err != nil {
			p.Printf("Invalid input: %v. Please enter two integers or 'q'.\n", err)
			continue
		}
		pt := coords.ToAbsolute(w, h, relX, relY)
		p.Printf("Using prompt at: [%d %d] (relative: [%d, %d])\n", pt.X, pt.Y, relX, relY)

		pred, err := a.Model.PredictFromPoint(pt)
		if err != nil {
			if isSequenceError(err) {
				return err
			}
			p.Printf("An unexpected error occurred: %v\n", err)
			continue
		}
		p.Printf("Mask generated with %d pixels. Score: %.4f\n", pred.PixelCount, pred.Score)
		a.show("Segmentation Result", a.Composer.Preview(img, pt, pred, ""), "Result window is open. Press any key to close it.")
	}
}

// RunTracking 在帧目录上跟踪目标
func (a *App) RunTracking(ctx context.Context) error {
	p := a.Prompter
	folder, err := p.Ask(fmt.Sprintf("Enter the name of the folder in '%s' with image frames: ", a.Loader.Root()))
	if err != nil {
		return err
	}
	outName, err := p.Ask(fmt.Sprintf("Enter a name for the output folder in '%s': ", a.Writer.Root))
	if err != nil {
		return err
	}

	if err := a.Loader.LoadFolder(folder); err != nil {
		if errors.Is(err, frames.ErrNoImages) {
			p.Println("No image files found in the specified folder.")
		} else {
			p.Printf("An error occurred while loading from the folder: %v\n", err)
		}
		return nil
	}
	seq := a.Loader.Paths()
	p.Printf("Found %d frames. Loaded first frame for prompting.\n", len(seq))

	outDir, err := a.Writer.Prepare(outName)
	if err != nil {
		p.Printf("An error occurred while creating the output folder: %v\n", err)
		return nil
	}
	first, err := a.Loader.Image()
	if err != nil {
		return err
	}
	a.show(a.Loader.Title(), first, "Image window is open. Press any key to close it and continue.")

	if err := a.Model.Initialize(); err != nil {
		return err
	}
	p.Println("Setting image in the predictor (computing embeddings)...")

	tracker := &track.Tracker{
		Segmenter: a.Model,
		ReadFrame: frames.ReadFrame,
		Sink:      &annotatedSink{composer: a.Composer, writer: a.Writer, subfolder: outName},
		Progress:  a.Progress,
		Logger:    a.logger(),
	}
	sessionID, recording := a.beginSession(ctx, filepath.Join(a.Loader.Root(), folder), outDir, len(seq))
	if recording {
		tracker.Recorder = ledgerRecorder{ledger: a.Ledger, sessionID: sessionID}
	}

	prompt := func(img *image.RGBA) (image.Point, error) {
		p.Println("Embeddings computed and predictor is ready.")
		return a.askPoint(img)
	}
	onFirst := func(r track.FrameResult) error {
		p.Printf("Initial mask found with %d pixels. Score: %.4f\n", r.Prediction.PixelCount, r.Prediction.Score)
		a.show("Segmentation Result", a.Composer.Preview(r.Image, r.Prompt, r.Prediction, " (First Frame)"), "Result window is open. Press any key to close it.")
		if remaining := len(seq) - 1; remaining > 0 {
			p.Printf("Starting tracking for the remaining %d frames...\n", remaining)
		}
		return nil
	}

	rep, runErr := tracker.Run(ctx, seq, prompt, onFirst)
	if recording {
		// 会话被取消时仍然写入最终状态
		if err := a.Ledger.FinishSession(context.WithoutCancel(ctx), sessionID, rep); err != nil {
			a.logger().Warnw("更新跟踪会话失败", "session", sessionID, "error", err)
		}
	}
	if runErr != nil {
		if isSequenceError(runErr) || errors.Is(runErr, io.EOF) || ctx.Err() != nil {
			return runErr
		}
		p.Printf("\nAn error occurred during tracking: %v\n", runErr)
		return nil
	}

	if rep.State == track.StateLost {
		p.Printf("\nWarning: Object lost at frame %d. Stopping track.\n", rep.LostAt)
	}
	p.Printf("\nTracking complete. Results saved in '%s'.\n", outDir)
	return nil
}

// askPoint 分别读取相对坐标 x 和 y, 任一无效时两个都重新输入
func (a *App) askPoint(img *image.RGBA) (image.Point, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	c := coords.Center(w, h)
	for {
		xs, err := a.Prompter.Ask(fmt.Sprintf("Enter relative x coordinate (center is %d): ", c.X))
		if err != nil {
			return image.Point{}, err
		}
		ys, err := a.Prompter.Ask(fmt.Sprintf("Enter relative y coordinate (center is %d): ", c.Y))
		if err != nil {
			return image.Point{}, err
		}
		relX, errX := coords.ParseInt(xs)
		relY, errY := coords.ParseInt(ys)
		if errX != nil || errY != nil {
			a.Prompter.Println("Invalid input. Please enter integers for coordinates.")
			continue
		}
		pt := coords.ToAbsolute(w, h, relX, relY)
		a.Prompter.Printf("Using prompt at: [%d %d] (relative: [%d, %d])\n", pt.X, pt.Y, relX, relY)
		return pt, nil
	}
}

// show 显示图片, 显示失败只记录日志
func (a *App) show(title string, img image.Image, hint string) {
	if !a.Headless {
		a.Prompter.Println(hint)
	}
	if err := a.Viewer.Show(title, img); err != nil {
		a.logger().Warnw("显示图片失败", "title", title, "error", err)
	}
}

func (a *App) beginSession(ctx context.Context, inputDir, outputDir string, total int) (int64, bool) {
	if a.Ledger == nil {
		return 0, false
	}
	id, err := a.Ledger.BeginSession(ctx, inputDir, outputDir, total)
	if err != nil {
		a.logger().Warnw("创建跟踪会话记录失败, 本次不记录", "error", err)
		return 0, false
	}
	return id, true
}

// isSequenceError 调用顺序错误, 属于程序缺陷
func isSequenceError(err error) bool {
	return errors.Is(err, segment.ErrNotInitialized) || errors.Is(err, segment.ErrImageNotSet)
}

// annotatedSink 把叠加结果以原文件名写入输出目录
type annotatedSink struct {
	composer  *overlay.Composer
	writer    overlay.Writer
	subfolder string
}

func (s *annotatedSink) Persist(r track.FrameResult) error {
	_, err := s.writer.Save(s.subfolder, r.Path, s.composer.Annotate(r.Image, r.Prediction))
	return err
}

type ledgerRecorder struct {
	ledger    Ledger
	sessionID int64
}

func (l ledgerRecorder) RecordFrame(ctx context.Context, r track.FrameResult) error {
	return l.ledger.RecordFrame(ctx, l.sessionID, r)
}
