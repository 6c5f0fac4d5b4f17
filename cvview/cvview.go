// Package cvview 基于 OpenCV (gocv) 的窗口显示和视频解码
package cvview

import (
	"context"
	"image"
	"io"

	"github.com/getcharzp/go-segtrack/slicer"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Window 阻塞式预览窗口, 每次 Show 等待任意按键后关闭
type Window struct{}

// Show 显示图片直到用户按键
func (Window) Show(title string, img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrap(err, "转换预览图片失败")
	}
	defer mat.Close()

	win := gocv.NewWindow(title)
	defer win.Close()
	win.IMShow(mat)
	win.WaitKey(0)
	return nil
}

// Player 视频拆帧时的实时预览, 第一次 Show 时打开窗口
type Player struct {
	title string
	win   *gocv.Window
}

// NewPlayer 创建名为 title 的预览
func NewPlayer(title string) *Player {
	return &Player{title: title}
}

// Show 显示一帧, 用户按下 q 或 Q 时返回 true
func (p *Player) Show(img image.Image) bool {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return false
	}
	defer mat.Close()

	if p.win == nil {
		p.win = gocv.NewWindow(p.title)
		p.win.ResizeWindow(960, 540)
	}
	p.win.IMShow(mat)
	key := p.win.WaitKey(1) & 0xFF
	return key == 'q' || key == 'Q'
}

func (p *Player) Close() error {
	if p.win == nil {
		return nil
	}
	return p.win.Close()
}

// videoSource 通过 VideoCapture 读取帧
type videoSource struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
	info    slicer.VideoInfo
}

// OpenVideo 实现 slicer.Opener
func OpenVideo(_ context.Context, path string) (slicer.Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(slicer.ErrOpenFailed, "%s: %v", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Wrap(slicer.ErrOpenFailed, path)
	}
	return &videoSource{
		capture: capture,
		frame:   gocv.NewMat(),
		info: slicer.VideoInfo{
			FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
			FPS:        capture.Get(gocv.VideoCaptureFPS),
		},
	}, nil
}

func (v *videoSource) Info() slicer.VideoInfo {
	return v.info
}

func (v *videoSource) Next() (image.Image, error) {
	if ok := v.capture.Read(&v.frame); !ok || v.frame.Empty() {
		return nil, io.EOF
	}
	img, err := v.frame.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "转换视频帧失败")
	}
	return img, nil
}

func (v *videoSource) Close() error {
	_ = v.frame.Close()
	return v.capture.Close()
}
