// Package track 通过质心重提示在帧序列上传播分割 Mask
//
// 第一帧由用户给出提示点, 之后每一帧都以上一帧 Mask 的质心作为新的提示点,
// 重新计算图片特征并预测. 上一帧 Mask 为空时视为目标丢失, 直接停止.
package track

import (
	"context"
	"image"
	"io"

	"github.com/getcharzp/go-segtrack/segment"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// State 跟踪会话状态
type State int

const (
	StateAwaitingFirstPrompt State = iota
	StateTracking
	StateLost
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateAwaitingFirstPrompt:
		return "awaiting_first_prompt"
	case StateTracking:
		return "tracking"
	case StateLost:
		return "lost"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ErrEmptySequence 帧序列为空
var ErrEmptySequence = errors.New("帧序列为空")

// Segmenter 分割模型, 由 segment.Adapter 实现
type Segmenter interface {
	SetImage(img image.Image) error
	PredictFromPoint(pt image.Point) (segment.Prediction, error)
}

// FrameReader 读取一帧并转换为规范格式
type FrameReader func(path string) (*image.RGBA, error)

// FrameResult 一帧的处理结果
type FrameResult struct {
	Index      int
	Path       string
	Image      *image.RGBA
	Prompt     image.Point
	Prediction segment.Prediction
}

// Sink 保存每一帧的结果
type Sink interface {
	Persist(r FrameResult) error
}

// Recorder 记录每一帧的结果 (可选)
//
// 记录失败只打印警告, 不中断跟踪, 本次运行的后续帧不再记录
type Recorder interface {
	RecordFrame(ctx context.Context, r FrameResult) error
}

// PromptFunc 为第一帧取得提示点
type PromptFunc func(first *image.RGBA) (image.Point, error)

// FirstFrameHook 第一帧预测完成后调用, 用于交互式显示
type FirstFrameHook func(r FrameResult) error

// Report 会话结果
type Report struct {
	State     State
	Total     int // 序列中的帧数
	Processed int // 已保存的帧数
	LostAt    int // 目标丢失的帧索引, 未丢失为 -1
}

// Tracker 跟踪循环
type Tracker struct {
	Segmenter Segmenter
	ReadFrame FrameReader
	Sink      Sink
	Recorder  Recorder  // 可为 nil
	Progress  io.Writer // 进度条输出, nil 不显示
	Logger    *zap.SugaredLogger

	recordOff bool // 记录失败后不再记录
}

// Run 在帧序列上执行跟踪
//
// # Params:
//
//	seq: 排序后的帧路径
//	prompt: 第一帧的提示点来源
//	onFirst: 第一帧预测完成后的回调, 可为 nil
func (t *Tracker) Run(ctx context.Context, seq []string, prompt PromptFunc, onFirst FirstFrameHook) (Report, error) {
	logger := t.logger()
	t.recordOff = false
	report := Report{State: StateAwaitingFirstPrompt, Total: len(seq), LostAt: -1}
	if len(seq) == 0 {
		return report, ErrEmptySequence
	}

	first, err := t.ReadFrame(seq[0])
	if err != nil {
		return report, err
	}
	if err := t.Segmenter.SetImage(first); err != nil {
		return report, err
	}
	pt, err := prompt(first)
	if err != nil {
		return report, err
	}

	prev, err := t.step(ctx, 0, seq[0], first, pt, onFirst)
	if err != nil {
		return report, err
	}
	logger.Infow("第一帧 Mask", "pixels", prev.PixelCount, "score", prev.Score)
	report.Processed = 1
	report.State = StateTracking

	remaining := len(seq) - 1
	if remaining > 0 {
		logger.Infow("开始跟踪剩余帧", "frames", remaining)
	}
	bar := t.newBar(remaining)

	for i := 1; i < len(seq); i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c, ok := Centroid(prev.Mask)
		if !ok {
			report.State = StateLost
			report.LostAt = i - 1
			logger.Warnw("目标丢失, 停止跟踪", "frame", i-1)
			break
		}

		frame, err := t.ReadFrame(seq[i])
		if err != nil {
			return report, err
		}
		if err := t.Segmenter.SetImage(frame); err != nil {
			return report, err
		}
		pred, err := t.step(ctx, i, seq[i], frame, c, nil)
		if err != nil {
			return report, err
		}
		prev = pred
		report.Processed++
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if report.State == StateTracking {
		report.State = StateCompleted
	}
	return report, nil
}

// step 对已设置特征的帧预测、回调并保存
func (t *Tracker) step(ctx context.Context, idx int, path string, img *image.RGBA, pt image.Point, hook FirstFrameHook) (segment.Prediction, error) {
	pred, err := t.Segmenter.PredictFromPoint(pt)
	if err != nil {
		return pred, err
	}
	res := FrameResult{Index: idx, Path: path, Image: img, Prompt: pt, Prediction: pred}

	if hook != nil {
		if err := hook(res); err != nil {
			return pred, err
		}
	}
	if err := t.Sink.Persist(res); err != nil {
		return pred, errors.Wrapf(err, "保存第 %d 帧失败", idx)
	}
	if t.Recorder != nil && !t.recordOff {
		if err := t.Recorder.RecordFrame(ctx, res); err != nil {
			t.recordOff = true
			t.logger().Warnw("记录帧失败, 后续帧不再记录", "frame", idx, "error", err)
		}
	}
	return pred, nil
}

func (t *Tracker) logger() *zap.SugaredLogger {
	if t.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return t.Logger
}

func (t *Tracker) newBar(total int) *progressbar.ProgressBar {
	if t.Progress == nil || total <= 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Tracking Frames"),
		progressbar.OptionSetWriter(t.Progress),
		progressbar.OptionShowCount(),
	)
}

// Centroid Mask 前景像素的平均行列坐标 (截断为整数)
//
// Mask 为空时返回 false
func Centroid(m segment.Mask) (image.Point, bool) {
	var sumX, sumY, n int
	for y := 0; y < m.Height; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		for x, v := range row {
			if v {
				sumX += x
				sumY += y
				n++
			}
		}
	}
	if n == 0 {
		return image.Point{}, false
	}
	return image.Pt(sumX/n, sumY/n), true
}
