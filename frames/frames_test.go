package frames

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func sameRGBA(a, b *image.RGBA) bool {
	if a.Rect != b.Rect || len(a.Pix) != len(b.Pix) {
		return false
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			return false
		}
	}
	return true
}

func TestNormalize_Gray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 2))
	src.SetGray(1, 1, color.Gray{Y: 77})

	out := Normalize(src)
	if out.Rect != image.Rect(0, 0, 3, 2) {
		t.Fatalf("尺寸错误: %v", out.Rect)
	}
	if c := out.RGBAAt(1, 1); c != (color.RGBA{R: 77, G: 77, B: 77, A: 255}) {
		t.Fatalf("灰度复制错误: %v", c)
	}
	if !sameRGBA(Normalize(out), out) {
		t.Fatal("Normalize 应幂等")
	}
}

func TestNormalize_AlphaOverWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 100, B: 0, A: 255})

	out := Normalize(src)
	if c := out.RGBAAt(0, 0); c != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("透明像素应为白色: %v", c)
	}
	if c := out.RGBAAt(1, 0); c != (color.RGBA{R: 200, G: 100, B: 0, A: 255}) {
		t.Fatalf("不透明像素应保持不变: %v", c)
	}
	if !sameRGBA(Normalize(out), out) {
		t.Fatal("Normalize 应幂等")
	}
}

func TestNormalize_SixteenBit(t *testing.T) {
	src := image.NewRGBA64(image.Rect(0, 0, 1, 1))
	src.SetRGBA64(0, 0, color.RGBA64{R: 0xffff, G: 0x8000, B: 0x0101, A: 0xffff})

	out := Normalize(src)
	if c := out.RGBAAt(0, 0); c != (color.RGBA{R: 0xff, G: 0x80, B: 0x01, A: 0xff}) {
		t.Fatalf("16 位转换错误: %v", c)
	}
	if !sameRGBA(Normalize(out), out) {
		t.Fatal("Normalize 应幂等")
	}

	g16 := image.NewGray16(image.Rect(0, 0, 1, 1))
	g16.SetGray16(0, 0, color.Gray16{Y: 0x1234})
	if c := Normalize(g16).RGBAAt(0, 0); c != (color.RGBA{R: 0x12, G: 0x12, B: 0x12, A: 0xff}) {
		t.Fatalf("Gray16 转换错误: %v", c)
	}
}

func TestNormalize_CanonicalUnchanged(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	if Normalize(img) != img {
		t.Fatal("规范格式图片应原样返回")
	}
}

func TestNormalize_OffsetBounds(t *testing.T) {
	src := image.NewGray(image.Rect(5, 5, 8, 7))
	src.SetGray(5, 5, color.Gray{Y: 9})
	out := Normalize(src)
	if out.Rect != image.Rect(0, 0, 3, 2) || out.RGBAAt(0, 0).R != 9 {
		t.Fatalf("原点应移动到 (0, 0): %v", out.Rect)
	}
}

func TestLoader_LoadSingle(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "cell.png"), image.NewGray(image.Rect(0, 0, 4, 3)))

	l := New(root, nil)
	if err := l.LoadSingle("cell.png"); err != nil {
		t.Fatal(err)
	}
	img, err := l.Image()
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Fatalf("尺寸错误: %v", img.Bounds())
	}
	if l.Title() != "Loaded: cell.png" {
		t.Fatalf("标题错误: %q", l.Title())
	}

	if err := l.LoadSingle("missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("期望 ErrNotFound, 得到 %v", err)
	}
	if _, err := l.Image(); !errors.Is(err, ErrNoImage) {
		t.Fatalf("加载失败后不应保留图片, 期望 ErrNoImage, 得到 %v", err)
	}
}

func TestLoader_LoadFolder(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "clip")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"f_002.png", "f_000.png", "f_001.PNG"} {
		writePNG(t, filepath.Join(dir, name), image.NewGray(image.Rect(0, 0, 2, 2)))
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(root, nil)
	if err := l.LoadFolder("clip"); err != nil {
		t.Fatal(err)
	}
	paths := l.Paths()
	want := []string{"f_000.png", "f_001.PNG", "f_002.png"}
	if len(paths) != len(want) {
		t.Fatalf("帧数量错误: %v", paths)
	}
	for i, p := range paths {
		if filepath.Base(p) != want[i] {
			t.Fatalf("排序错误: %v", paths)
		}
	}
	if l.Title() != "Loaded First Frame: f_000.png" {
		t.Fatalf("标题错误: %q", l.Title())
	}
}

func TestLoader_LoadFolder_Errors(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(root, "a.png"), image.NewGray(image.Rect(0, 0, 1, 1)))

	l := New(root, nil)
	if err := l.LoadFolder("empty"); !errors.Is(err, ErrNoImages) {
		t.Fatalf("期望 ErrNoImages, 得到 %v", err)
	}
	if _, err := l.Image(); len(l.Paths()) != 0 || !errors.Is(err, ErrNoImage) {
		t.Fatal("空目录加载失败后状态应为空")
	}

	if err := l.LoadFolder("a.png"); !errors.Is(err, ErrNotADirectory) {
		t.Fatalf("期望 ErrNotADirectory, 得到 %v", err)
	}
	if err := l.LoadFolder("nope"); !errors.Is(err, ErrNotADirectory) {
		t.Fatalf("期望 ErrNotADirectory, 得到 %v", err)
	}
}

func TestReadFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.png")
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	writePNG(t, path, src)

	img, err := ReadFrame(path)
	if err != nil {
		t.Fatal(err)
	}
	if !IsCanonical(img) {
		t.Fatal("ReadFrame 应返回规范格式")
	}
}
