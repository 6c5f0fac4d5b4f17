package frames

import (
	"image"
	"image/color"
)

// Normalize 转换为模型需要的规范格式: 原点为 (0, 0)、完全不透明的 8 位 RGB
//
//   - 灰度图复制为三通道
//   - 带透明度的图片与白色背景混合
//   - 16 位采样缩放到 8 位
//
// 已是规范格式的图片原样返回, 因此 Normalize 是幂等的
func Normalize(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && IsCanonical(rgba) {
		return rgba
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				v := src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)]
				setRGB(dst, x, y, v, v, v)
			}
		}
	case *image.Gray16:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				v := src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)] // 大端, 高字节
				setRGB(dst, x, y, v, v, v)
			}
		}
	default:
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				setRGB(dst, x, y, overWhite(c.R, c.A), overWhite(c.G, c.A), overWhite(c.B, c.A))
			}
		}
	}
	return dst
}

// IsCanonical 是否已是规范格式
func IsCanonical(img *image.RGBA) bool {
	return img.Rect.Min == (image.Point{}) && img.Opaque()
}

// overWhite 非预乘的 16 位通道与白色背景混合后取 8 位
func overWhite(v, a uint16) uint8 {
	blended := (uint32(v)*uint32(a) + 0xffff*(0xffff-uint32(a))) / 0xffff
	return uint8(blended >> 8)
}

func setRGB(dst *image.RGBA, x, y int, r, g, b uint8) {
	off := dst.PixOffset(x, y)
	dst.Pix[off] = r
	dst.Pix[off+1] = g
	dst.Pix[off+2] = b
	dst.Pix[off+3] = 0xff
}
