package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/getcharzp/go-segtrack/console"
	"github.com/getcharzp/go-segtrack/slicer"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SliceApp 视频拆帧
type SliceApp struct {
	Prompter  *console.Prompter
	VideosDir string
	FramesDir string
	Open      slicer.Opener
	Preview   slicer.Preview
	Logger    *zap.SugaredLogger
}

// Run 询问视频文件名并拆帧到 FramesDir/<不含扩展名的文件名>
func (s *SliceApp) Run(ctx context.Context) error {
	p := s.Prompter
	p.Println("--- Video Slicer ---")
	p.Printf("Place your videos in %s\n", s.VideosDir)
	p.Printf("Frames will be saved in %s\n\n", s.FramesDir)

	name, err := p.Ask("Enter the filename of the video (must be in the 'videos' folder): ")
	if err != nil {
		return err
	}
	return s.Slice(ctx, name)
}

// Slice 拆分 VideosDir 下名为 name 的视频
func (s *SliceApp) Slice(ctx context.Context, name string) error {
	p := s.Prompter
	path := filepath.Join(s.VideosDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		p.Printf("Error: The video file '%s' was not found in the %s directory.\n", name, s.VideosDir)
		return nil
	}

	base := filepath.Base(name)
	outDir := filepath.Join(s.FramesDir, strings.TrimSuffix(base, filepath.Ext(base)))
	d := &slicer.Dumper{Out: p.Out(), Logger: s.Logger}
	if _, err := d.Run(ctx, s.Open, path, outDir, s.Preview); err != nil {
		if errors.Is(err, slicer.ErrOpenFailed) {
			return nil
		}
		return err
	}
	return nil
}
