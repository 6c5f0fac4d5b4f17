package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/getcharzp/go-segtrack/segment"
	"github.com/up-zero/gotool/imageutil"
)

var (
	// MaskColor Mask 叠加颜色 (道奇蓝)
	MaskColor = color.RGBA{R: 30, G: 144, B: 255, A: 255}
	// MarkerColor 提示点颜色
	MarkerColor = color.RGBA{G: 255, A: 255}
	// TextColor 分数文字颜色
	TextColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	// BlendAlpha Mask 颜色的叠加系数
	BlendAlpha = 0.6
	// MarkerSize 星形标记的尺寸
	MarkerSize = 40
	// MarkerThickness 星形标记的线宽
	MarkerThickness = 2
)

// Clone 复制为新的 RGBA 图片
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Blend 在 Mask 区域叠加颜色: out = base + alpha * c, 结果截断到 255
//
// 非 Mask 区域保持原样, 返回新图片
func Blend(base *image.RGBA, mask segment.Mask, c color.RGBA, alpha float64) *image.RGBA {
	dst := Clone(base)
	add := [3]float64{alpha * float64(c.R), alpha * float64(c.G), alpha * float64(c.B)}

	w, h := min(dst.Rect.Dx(), mask.Width), min(dst.Rect.Dy(), mask.Height)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask.Pix[y*mask.Width+x] {
				continue
			}
			off := dst.PixOffset(x, y)
			for ch := 0; ch < 3; ch++ {
				dst.Pix[off+ch] = saturate(float64(dst.Pix[off+ch]) + add[ch])
			}
		}
	}
	return dst
}

func saturate(v float64) uint8 {
	return uint8(math.Min(255, math.Round(v)))
}

// DrawStar 在 pt 处绘制星形标记 (十字 + 斜十字), 线宽为 MarkerThickness
//
// 线段先裁剪到图片范围内再绘制
func DrawStar(dst *image.RGBA, pt image.Point, size int, c color.RGBA) {
	h := size / 2
	for _, dir := range [...]image.Point{{1, 0}, {0, 1}, {1, 1}, {1, -1}} {
		a, b, ok := clipRay(pt, dir, h, dst.Rect)
		if !ok {
			continue
		}
		imageutil.DrawThickLine(dst, a, b, MarkerThickness, c)
	}
}

// clipRay 把 pt + t*dir (t ∈ [-h, h]) 裁剪到 r 内
func clipRay(pt, dir image.Point, h int, r image.Rectangle) (image.Point, image.Point, bool) {
	lo, hi := -h, h
	limit := func(p, d, lower, upper int) {
		if d == 0 {
			if p < lower || p >= upper {
				lo, hi = 1, 0
			}
			return
		}
		// lower <= p + t*d <= upper-1, d 为 ±1
		a, b := (lower-p)*d, (upper-1-p)*d
		if a > b {
			a, b = b, a
		}
		lo, hi = max(lo, a), min(hi, b)
	}
	limit(pt.X, dir.X, r.Min.X, r.Max.X)
	limit(pt.Y, dir.Y, r.Min.Y, r.Max.Y)
	if lo > hi {
		return image.Point{}, image.Point{}, false
	}
	return pt.Add(dir.Mul(lo)), pt.Add(dir.Mul(hi)), true
}

// HStack 水平拼接两张图片, 高度取较大值
func HStack(left, right image.Image) *image.RGBA {
	lb, rb := left.Bounds(), right.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, lb.Dx()+rb.Dx(), max(lb.Dy(), rb.Dy())))
	draw.Draw(dst, image.Rect(0, 0, lb.Dx(), lb.Dy()), left, lb.Min, draw.Src)
	draw.Draw(dst, image.Rect(lb.Dx(), 0, lb.Dx()+rb.Dx(), rb.Dy()), right, rb.Min, draw.Src)
	return dst
}
