package overlay

import (
	"fmt"
	"image"
	"image/color"

	segtrack "github.com/getcharzp/go-segtrack"
	"github.com/getcharzp/go-segtrack/segment"
)

const (
	textSize   = 28
	textMargin = 10
	lineOne    = 30
	lineTwo    = 70
)

var titleColor = color.RGBA{G: 255, A: 255}

// Composer 生成带提示点、Mask 和分数的可视化图片
type Composer struct {
	text *segtrack.TextDrawer
}

// NewComposer 创建 Composer
//
// # Params:
//
//	fontPath: 字体路径, 为空使用内置字体
func NewComposer(fontPath string) (*Composer, error) {
	td, err := segtrack.NewTextDrawer(fontPath)
	if err != nil {
		return nil, err
	}
	if err := td.SetSize(textSize); err != nil {
		td.Close()
		return nil, err
	}
	return &Composer{text: td}, nil
}

// Close 释放字体资源
func (c *Composer) Close() {
	c.text.Close()
}

// Preview 交互模式的结果图: 左侧为带提示点的原图, 右侧为 Mask 叠加和分数
func (c *Composer) Preview(img *image.RGBA, pt image.Point, pred segment.Prediction, titleSuffix string) *image.RGBA {
	left := Clone(img)
	DrawStar(left, pt, MarkerSize, MarkerColor)
	c.text.DrawOutlinedText(left, "Image with Prompt"+titleSuffix, textMargin, lineOne, titleColor, color.Black)

	right := Blend(img, pred.Mask, MaskColor, BlendAlpha)
	c.text.DrawOutlinedText(right, fmt.Sprintf("Score: %.4f", pred.Score), textMargin, lineOne, TextColor, color.Black)
	c.text.DrawOutlinedText(right, fmt.Sprintf("Pixels: %d", pred.PixelCount), textMargin, lineTwo, TextColor, color.Black)
	c.text.DrawOutlinedText(right, "Segmentation Result", textMargin, right.Rect.Dy()-20, titleColor, color.Black)

	return HStack(left, right)
}

// Annotate 写入磁盘的跟踪结果帧: Mask 叠加和一行分数信息
func (c *Composer) Annotate(img *image.RGBA, pred segment.Prediction) *image.RGBA {
	out := Blend(img, pred.Mask, MaskColor, BlendAlpha)
	info := fmt.Sprintf("Score: %.4f | Pixels: %d", pred.Score, pred.PixelCount)
	c.text.DrawOutlinedText(out, info, textMargin, lineOne, TextColor, color.Black)
	return out
}
