package segtrack

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// TextDrawer 文本绘制工具
type TextDrawer struct {
	font     *opentype.Font
	face     font.Face
	fontSize float64
}

// NewTextDrawer 创建文本绘制工具
//
// # Params:
//
//	fontPath: 字体路径, 为空时使用内置的 Go Regular 字体
func NewTextDrawer(fontPath string) (*TextDrawer, error) {
	fontBytes := goregular.TTF
	if fontPath != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("打开字体文件失败：%w", err)
		}
		fontBytes = b
	}

	ttFont, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("解析字体文件失败：%w", err)
	}

	d := &TextDrawer{font: ttFont}
	if err := d.SetSize(24); err != nil {
		return nil, err
	}
	return d, nil
}

// SetSize 动态调整字体大小
func (d *TextDrawer) SetSize(fontSize float64) error {
	if d.face != nil && d.fontSize == fontSize {
		return nil
	}
	if d.face != nil {
		d.face.Close()
	}

	nf, err := opentype.NewFace(d.font, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}

	d.face = nf
	d.fontSize = fontSize
	return nil
}

// DrawText 绘制文本, (x, y) 为基线起点
//
// # Params:
//
//	img: 被绘制的图像
//	text: 绘制的文本
//	x, y: 绘制的坐标
//	c: 绘制的颜色
func (d *TextDrawer) DrawText(img draw.Image, text string, x, y int, c color.Color) {
	fd := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: d.face,
		Dot:  fixed.P(x, y),
	}
	fd.DrawString(text)
}

// DrawOutlinedText 带 1 像素描边的文本, 在任意背景上都可读
func (d *TextDrawer) DrawOutlinedText(img draw.Image, text string, x, y int, fg, outline color.Color) {
	for _, off := range [...]image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		d.DrawText(img, text, x+off.X, y+off.Y, outline)
	}
	d.DrawText(img, text, x, y, fg)
}

// MeasureText 返回文本的像素宽度
func (d *TextDrawer) MeasureText(text string) int {
	return font.MeasureString(d.face, text).Ceil()
}

// Close 释放资源
func (d *TextDrawer) Close() {
	if d.face != nil {
		d.face.Close()
		d.face = nil
	}
}
