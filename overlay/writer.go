package overlay

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// JPEGQuality 写入 JPEG 的质量, 与 OpenCV imwrite 默认值一致
const JPEGQuality = 95

// Writer 把结果图写到输出根目录下的子目录
type Writer struct {
	Root string
}

// Dir 子目录的完整路径
func (w Writer) Dir(subfolder string) string {
	return filepath.Join(w.Root, subfolder)
}

// Prepare 创建子目录 (已存在不报错)
func (w Writer) Prepare(subfolder string) (string, error) {
	dir := w.Dir(subfolder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "创建输出目录 %s 失败", dir)
	}
	return dir, nil
}

// Save 以原始帧的文件名写入子目录, 返回写入的路径
func (w Writer) Save(subfolder, srcPath string, img image.Image) (string, error) {
	dst := filepath.Join(w.Dir(subfolder), filepath.Base(srcPath))
	if err := SaveImage(dst, img); err != nil {
		return "", err
	}
	return dst, nil
}

// SaveImage 按扩展名编码写入图片
func SaveImage(path string, img image.Image) error {
	if err := imaging.Save(img, path, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return errors.Wrapf(err, "写入图片 %s 失败", path)
	}
	return nil
}

// Viewer 显示图片并等待用户按键后关闭
type Viewer interface {
	Show(title string, img image.Image) error
}

// DiskViewer 无显示环境时使用: 把预览写成 PNG 文件并记录路径
//
// 文件名带递增序号, 不覆盖已有的预览
type DiskViewer struct {
	Dir    string
	Logger *zap.SugaredLogger

	n int
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Show 写入预览文件, 不阻塞
func (v *DiskViewer) Show(title string, img image.Image) error {
	if err := os.MkdirAll(v.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "创建预览目录 %s 失败", v.Dir)
	}
	name := strings.Trim(unsafeChars.ReplaceAllString(title, "_"), "_")
	if name == "" {
		name = "preview"
	}
	path := v.nextPath(name)
	if err := SaveImage(path, img); err != nil {
		return err
	}
	if v.Logger != nil {
		v.Logger.Infow("预览已写入文件", "title", title, "path", path)
	}
	return nil
}

func (v *DiskViewer) nextPath(name string) string {
	for {
		v.n++
		path := filepath.Join(v.Dir, fmt.Sprintf("%03d_%s.png", v.n, name))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}
