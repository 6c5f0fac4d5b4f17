package frames

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/up-zero/gotool/imageutil"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrNotFound 输入文件不存在
	ErrNotFound = errors.New("文件不存在")
	// ErrNotADirectory 输入路径不是目录
	ErrNotADirectory = errors.New("不是有效的目录")
	// ErrNoImages 目录中没有图片
	ErrNoImages = errors.New("目录中没有图片文件")
	// ErrNoImage 尚未加载图片
	ErrNoImage = errors.New("尚未加载图片")
)

// Extensions 目录加载时识别的图片扩展名
var Extensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff"}

// Loader 从输入根目录加载单张图片或帧序列
type Loader struct {
	root   string
	logger *zap.SugaredLogger

	raw   image.Image
	img   *image.RGBA
	title string
	paths []string
}

// New 创建 Loader
//
// # Params:
//
//	root: 输入根目录, 所有路径都相对于它
func New(root string, logger *zap.SugaredLogger) *Loader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Loader{root: root, logger: logger}
}

// Root 输入根目录
func (l *Loader) Root() string {
	return l.root
}

// LoadSingle 加载根目录下的一张图片, 失败时清空已加载的图片
func (l *Loader) LoadSingle(name string) error {
	fullPath := filepath.Join(l.root, name)
	raw, err := l.open(fullPath)
	if err != nil {
		l.resetImage()
		return err
	}
	l.setImage(raw, "Loaded: "+filepath.Base(name))
	l.logger.Infow("图片加载成功", "path", fullPath)
	return nil
}

// LoadFolder 加载根目录下的帧目录, 只解码第一帧, 保留排序后的全部路径
func (l *Loader) LoadFolder(name string) error {
	dir := filepath.Join(l.root, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		l.reset()
		return errors.Wrapf(ErrNotADirectory, "%s", dir)
	}

	paths, err := ListImages(dir)
	if err != nil {
		l.reset()
		return err
	}
	if len(paths) == 0 {
		l.reset()
		return errors.Wrapf(ErrNoImages, "%s", dir)
	}

	raw, err := l.open(paths[0])
	if err != nil {
		l.reset()
		return err
	}
	l.paths = paths
	l.setImage(raw, "Loaded First Frame: "+filepath.Base(paths[0]))
	l.logger.Infow("帧目录加载成功", "dir", dir, "frames", len(paths))
	return nil
}

// Image 当前图片的规范格式
func (l *Loader) Image() (*image.RGBA, error) {
	if l.raw == nil {
		return nil, ErrNoImage
	}
	if l.img == nil {
		l.img = Normalize(l.raw)
	}
	return l.img, nil
}

// Title 当前图片的显示标题
func (l *Loader) Title() string {
	return l.title
}

// Paths 帧序列的路径副本
func (l *Loader) Paths() []string {
	return append([]string(nil), l.paths...)
}

func (l *Loader) open(path string) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "读取 %s 失败", path)
	}
	raw, err := imageutil.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "解码图片 %s 失败", path)
	}
	return raw, nil
}

func (l *Loader) setImage(raw image.Image, title string) {
	l.raw = raw
	l.img = nil
	l.title = title
}

func (l *Loader) resetImage() {
	l.raw = nil
	l.img = nil
	l.title = ""
}

func (l *Loader) reset() {
	l.resetImage()
	l.paths = nil
}

// ListImages 列出目录中的图片文件, 按字典序排序
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "读取目录 %s 失败", dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !hasImageExt(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func hasImageExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReadFrame 读取一帧并转换为规范格式
func ReadFrame(path string) (*image.RGBA, error) {
	raw, err := imageutil.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取帧 %s 失败", path)
	}
	return Normalize(raw), nil
}
