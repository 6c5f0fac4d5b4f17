// Package slicer 把视频的每一帧写成编号的 JPEG 文件
package slicer

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/getcharzp/go-segtrack/overlay"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrOpenFailed 视频无法打开
var ErrOpenFailed = errors.New("无法打开视频")

// progressEvery 每隔多少帧输出一次进度
const progressEvery = 100

// VideoInfo 视频元数据, 未知时为 0
type VideoInfo struct {
	FrameCount int
	FPS        float64
}

// Source 顺序解码的视频帧来源
type Source interface {
	// Next 返回下一帧, 结束时返回 io.EOF
	Next() (image.Image, error)
	Info() VideoInfo
	Close() error
}

// Opener 打开视频文件
type Opener func(ctx context.Context, path string) (Source, error)

// Preview 实时预览, 返回 true 表示用户要求停止
type Preview interface {
	Show(img image.Image) (quit bool)
}

// NoPreview 不显示任何内容
type NoPreview struct{}

func (NoPreview) Show(image.Image) bool { return false }

// FrameName 第 i 帧的文件名
func FrameName(i int) string {
	return fmt.Sprintf("frame_%05d.jpg", i)
}

// Result 拆帧结果
type Result struct {
	OutputDir   string
	Saved       int
	Interrupted bool
}

// Dumper 拆帧器
type Dumper struct {
	Out    io.Writer // 控制台输出
	Logger *zap.SugaredLogger
}

// Run 打开视频并把所有帧写入 outDir
//
// # Params:
//
//	open: 视频解码后端
//	videoPath: 视频路径
//	outDir: 输出目录, 不存在时创建
//	preview: 实时预览, 可以要求提前停止
func (d *Dumper) Run(ctx context.Context, open Opener, videoPath, outDir string, preview Preview) (Result, error) {
	out := d.Out
	if out == nil {
		out = io.Discard
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if preview == nil {
		preview = NoPreview{}
	}
	res := Result{OutputDir: outDir}

	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return res, errors.Wrapf(err, "创建输出目录 %s 失败", outDir)
		}
		fmt.Fprintf(out, "Created output folder: %s\n", outDir)
	}

	src, err := open(ctx, videoPath)
	if err != nil {
		fmt.Fprintf(out, "Error: Could not open video file: %s\n", videoPath)
		return res, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warnw("关闭视频失败", "path", videoPath, "error", err)
		}
	}()

	info := src.Info()
	fmt.Fprintf(out, "\nVideo Properties:\n  - Frame Count: %d\n  - FPS: %.2f\n", info.FrameCount, info.FPS)
	fmt.Fprintln(out, "\nSplitting video into frames...")
	fmt.Fprintln(out, "Press 'q' or 'Q' on the video window to stop the process at any time.")

	for {
		if err := ctx.Err(); err != nil {
			res.Interrupted = true
			d.finish(out, res)
			return res, err
		}
		img, err := src.Next()
		if err == io.EOF {
			fmt.Fprintln(out, "\nEnd of video reached.")
			break
		}
		if err != nil {
			d.finish(out, res)
			return res, errors.Wrapf(err, "读取第 %d 帧失败", res.Saved)
		}

		quit := preview.Show(img)
		if err := overlay.SaveImage(filepath.Join(outDir, FrameName(res.Saved)), img); err != nil {
			d.finish(out, res)
			return res, err
		}
		res.Saved++

		if res.Saved%progressEvery == 0 || res.Saved == info.FrameCount {
			fmt.Fprintf(out, "  - Saved frame %d/%d\n", res.Saved, info.FrameCount)
		}
		if quit {
			fmt.Fprintln(out, "\nExecution interrupted by user.")
			res.Interrupted = true
			break
		}
	}

	d.finish(out, res)
	logger.Infow("拆帧完成", "video", videoPath, "saved", res.Saved, "interrupted", res.Interrupted)
	return res, nil
}

func (d *Dumper) finish(out io.Writer, res Result) {
	fmt.Fprintln(out, "\nVideo splitting process finished.")
	fmt.Fprintf(out, "%d frames were saved in: %s\n", res.Saved, res.OutputDir)
}
