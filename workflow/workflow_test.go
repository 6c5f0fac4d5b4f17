package workflow

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getcharzp/go-segtrack/console"
	"github.com/getcharzp/go-segtrack/frames"
	"github.com/getcharzp/go-segtrack/overlay"
	"github.com/getcharzp/go-segtrack/segment"
	"github.com/getcharzp/go-segtrack/slicer"
	"github.com/getcharzp/go-segtrack/track"
)

// fakeModel 在提示点周围返回 3x3 的 Mask, 从第 emptyFrom 帧起返回空 Mask
type fakeModel struct {
	emptyFrom int
	predErr   error

	inits   int
	frames  int
	size    image.Point
	prompts []image.Point
}

func (m *fakeModel) Initialize() error {
	m.inits++
	return nil
}

func (m *fakeModel) SetImage(img image.Image) error {
	m.frames++
	m.size = img.Bounds().Size()
	return nil
}

func (m *fakeModel) PredictFromPoint(pt image.Point) (segment.Prediction, error) {
	if m.predErr != nil {
		return segment.Prediction{}, m.predErr
	}
	m.prompts = append(m.prompts, pt)
	mask := segment.NewMask(m.size.X, m.size.Y)
	if m.emptyFrom <= 0 || m.frames-1 < m.emptyFrom {
		for y := pt.Y - 1; y <= pt.Y+1; y++ {
			for x := pt.X - 1; x <= pt.X+1; x++ {
				if x >= 0 && y >= 0 && x < m.size.X && y < m.size.Y {
					mask.Set(x, y, true)
				}
			}
		}
	}
	return segment.Prediction{Mask: mask, Score: 0.75, PixelCount: mask.Count()}, nil
}

type recordingViewer struct {
	titles []string
}

func (v *recordingViewer) Show(title string, img image.Image) error {
	v.titles = append(v.titles, title)
	return nil
}

type memLedger struct {
	begun    int
	frames   []int
	finished []track.Report
}

func (l *memLedger) BeginSession(ctx context.Context, in, out string, total int) (int64, error) {
	l.begun++
	return 7, nil
}

func (l *memLedger) RecordFrame(ctx context.Context, id int64, r track.FrameResult) error {
	l.frames = append(l.frames, r.Index)
	return nil
}

func (l *memLedger) FinishSession(ctx context.Context, id int64, rep track.Report) error {
	l.finished = append(l.finished, rep)
	return nil
}

// droppingLedger 写入帧记录时连接断开
type droppingLedger struct {
	memLedger
	recordCalls int
}

func (l *droppingLedger) RecordFrame(ctx context.Context, id int64, r track.FrameResult) error {
	l.recordCalls++
	return errors.New("connection reset")
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	app    *App
	model  *fakeModel
	viewer *recordingViewer
	out    *bytes.Buffer
	inDir  string
	outDir string
}

func newFixture(t *testing.T, input string) *fixture {
	t.Helper()
	composer, err := overlay.NewComposer("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(composer.Close)

	f := &fixture{
		model:  &fakeModel{},
		viewer: &recordingViewer{},
		out:    &bytes.Buffer{},
		inDir:  t.TempDir(),
		outDir: t.TempDir(),
	}
	f.app = &App{
		Prompter: console.New(strings.NewReader(input), f.out),
		Loader:   frames.New(f.inDir, nil),
		Model:    f.model,
		Composer: composer,
		Viewer:   f.viewer,
		Writer:   overlay.Writer{Root: f.outDir},
	}
	return f
}

func TestMenu_InvalidChoiceThenQuit(t *testing.T) {
	f := newFixture(t, "7\nQ\n")
	if err := f.app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := f.out.String()
	if !strings.Contains(got, "Invalid choice. Please try again.") || !strings.Contains(got, "Exiting program.") {
		t.Fatalf("输出错误:\n%s", got)
	}
	if strings.Count(got, "Choose your workflow:") != 2 {
		t.Fatal("无效选择后应重新显示菜单")
	}
}

func TestMenu_EOFExitsCleanly(t *testing.T) {
	f := newFixture(t, "")
	if err := f.app.Run(context.Background()); err != nil {
		t.Fatalf("输入结束应正常退出: %v", err)
	}
}

func TestInteractiveSession(t *testing.T) {
	f := newFixture(t, "1\nmissing.png\ncell.png\nabc\n10 20\nq\nq\n")
	writePNG(t, filepath.Join(f.inDir, "cell.png"), 40, 30)

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := f.out.String()
	for _, s := range []string{
		"Image loading failed. Please try again.",
		"Invalid input:",
		"Using prompt at: [30 0] (relative: [10, 20])",
		"Mask generated with 6 pixels. Score: 0.7500",
	} {
		if !strings.Contains(got, s) {
			t.Fatalf("输出缺少 %q:\n%s", s, got)
		}
	}
	if f.model.inits != 1 || f.model.frames != 1 {
		t.Fatalf("模型调用错误: inits=%d frames=%d", f.model.inits, f.model.frames)
	}
	want := []string{"Loaded: cell.png", "Segmentation Result"}
	if strings.Join(f.viewer.titles, "|") != strings.Join(want, "|") {
		t.Fatalf("显示顺序错误: %v", f.viewer.titles)
	}
}

func TestInteractiveSession_InferenceErrorReported(t *testing.T) {
	f := newFixture(t, "1\ncell.png\n1 1\nq\nq\n")
	writePNG(t, filepath.Join(f.inDir, "cell.png"), 10, 10)
	f.model.predErr = errors.New("onnx failure")

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.out.String(), "An unexpected error occurred: onnx failure") {
		t.Fatalf("推理错误应报告给用户:\n%s", f.out.String())
	}
}

func TestInteractiveSession_SequenceErrorIsFatal(t *testing.T) {
	f := newFixture(t, "1\ncell.png\n1 1\nq\nq\n")
	writePNG(t, filepath.Join(f.inDir, "cell.png"), 10, 10)
	f.model.predErr = segment.ErrImageNotSet

	if err := f.app.Run(context.Background()); !errors.Is(err, segment.ErrImageNotSet) {
		t.Fatalf("调用顺序错误应向上传递, 得到 %v", err)
	}
}

func TestTrackingSession_ObjectLost(t *testing.T) {
	f := newFixture(t, "2\nclip\nrun1\nx\n0\n0\n0\nq\n")
	clip := filepath.Join(f.inDir, "clip")
	if err := os.Mkdir(clip, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"f_002.png", "f_000.png", "f_001.png"} {
		writePNG(t, filepath.Join(clip, name), 20, 20)
	}
	f.model.emptyFrom = 1
	ledger := &memLedger{}
	f.app.Ledger = ledger

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(f.outDir, "run1"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if strings.Join(names, ",") != "f_000.png,f_001.png" {
		t.Fatalf("输出文件错误: %v", names)
	}

	got := f.out.String()
	for _, s := range []string{
		"Found 3 frames.",
		"Invalid input. Please enter integers for coordinates.",
		"Using prompt at: [10 10] (relative: [0, 0])",
		"Initial mask found with 9 pixels.",
		"Starting tracking for the remaining 2 frames...",
		"Warning: Object lost at frame 1.",
		"Tracking complete.",
	} {
		if !strings.Contains(got, s) {
			t.Fatalf("输出缺少 %q:\n%s", s, got)
		}
	}
	if strings.Count(got, "Enter relative x coordinate") != 2 || strings.Count(got, "Enter relative y coordinate") != 2 {
		t.Fatalf("无效坐标后应重新输入 x 和 y:\n%s", got)
	}
	if len(f.viewer.titles) != 2 || f.viewer.titles[0] != "Loaded First Frame: f_000.png" {
		t.Fatalf("显示错误: %v", f.viewer.titles)
	}
	if f.model.prompts[1] != image.Pt(10, 10) {
		t.Fatalf("第二帧应以质心为提示点: %v", f.model.prompts)
	}
	if ledger.begun != 1 || len(ledger.frames) != 2 || len(ledger.finished) != 1 || ledger.finished[0].State != track.StateLost {
		t.Fatalf("会话记录错误: %+v", ledger)
	}
}

func TestTrackingSession_LedgerWriteFailureKeepsTracking(t *testing.T) {
	f := newFixture(t, "2\nclip\nrun1\n0\n0\nq\n")
	clip := filepath.Join(f.inDir, "clip")
	if err := os.Mkdir(clip, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"f_000.png", "f_001.png", "f_002.png"} {
		writePNG(t, filepath.Join(clip, name), 20, 20)
	}
	ledger := &droppingLedger{}
	f.app.Ledger = ledger

	if err := f.app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(f.outDir, "run1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("记录失败不应影响输出, 期望 3 个文件, 得到 %d", len(entries))
	}
	got := f.out.String()
	if strings.Contains(got, "An error occurred during tracking") || !strings.Contains(got, "Tracking complete.") {
		t.Fatalf("跟踪应正常完成:\n%s", got)
	}
	if ledger.recordCalls != 1 {
		t.Fatalf("第一次失败后不应继续写入, 调用 %d 次", ledger.recordCalls)
	}
	if len(ledger.finished) != 1 || ledger.finished[0].State != track.StateCompleted || ledger.finished[0].Processed != 3 {
		t.Fatalf("会话仍应结束并记录最终状态: %+v", ledger.finished)
	}
}

func TestTrackingSession_LoadFailureReturnsToMenu(t *testing.T) {
	f := newFixture(t, "2\nnowhere\nrun1\nq\n")
	if err := f.app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := f.out.String()
	if !strings.Contains(got, "An error occurred while loading from the folder") {
		t.Fatalf("应报告加载失败:\n%s", got)
	}
	if strings.Count(got, "Choose your workflow:") != 2 {
		t.Fatal("加载失败后应回到菜单")
	}
	if f.model.inits != 0 {
		t.Fatal("加载失败时不应初始化模型")
	}
}

func TestTrackingSession_EmptyFolder(t *testing.T) {
	f := newFixture(t, "2\nempty\nrun1\nq\n")
	if err := os.Mkdir(filepath.Join(f.inDir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := f.app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.out.String(), "No image files found in the specified folder.") {
		t.Fatalf("输出错误:\n%s", f.out.String())
	}
}

type stubSource struct {
	n   int
	pos int
}

func (s *stubSource) Next() (image.Image, error) {
	if s.pos >= s.n {
		return nil, io.EOF
	}
	s.pos++
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func (s *stubSource) Info() slicer.VideoInfo { return slicer.VideoInfo{FrameCount: s.n, FPS: 30} }

func (s *stubSource) Close() error { return nil }

func TestSliceApp(t *testing.T) {
	videos, framesDir := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(videos, "clip.mp4"), []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	app := &SliceApp{
		Prompter:  console.New(strings.NewReader("clip.mp4\n"), &out),
		VideosDir: videos,
		FramesDir: framesDir,
		Open: func(context.Context, string) (slicer.Source, error) {
			return &stubSource{n: 3}, nil
		},
		Preview: slicer.NoPreview{},
	}
	if err := app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(framesDir, "clip"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("期望 3 帧, 得到 %d", len(entries))
	}
}

func TestSliceApp_MissingVideo(t *testing.T) {
	var out bytes.Buffer
	app := &SliceApp{
		Prompter:  console.New(strings.NewReader("none.mp4\n"), &out),
		VideosDir: t.TempDir(),
		FramesDir: t.TempDir(),
		Open: func(context.Context, string) (slicer.Source, error) {
			t.Fatal("视频不存在时不应打开")
			return nil, nil
		},
	}
	if err := app.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Error: The video file 'none.mp4' was not found") {
		t.Fatalf("输出错误:\n%s", out.String())
	}
}

func TestSliceApp_OpenFailedIsReported(t *testing.T) {
	videos := t.TempDir()
	if err := os.WriteFile(filepath.Join(videos, "bad.avi"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	app := &SliceApp{
		Prompter:  console.New(strings.NewReader(""), &out),
		VideosDir: videos,
		FramesDir: t.TempDir(),
		Open: func(context.Context, string) (slicer.Source, error) {
			return nil, slicer.ErrOpenFailed
		},
	}
	if err := app.Slice(context.Background(), "bad.avi"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Could not open video file") {
		t.Fatalf("输出错误:\n%s", out.String())
	}
}
