package sam2

import (
	"image"
)

// normalizeAndPad 归一化并填充到 targetW x targetH, 输出 CHW 排列
func normalizeAndPad(src image.Image, targetW, targetH int) []float32 {
	bounds := src.Bounds()
	w, h := min(bounds.Dx(), targetW), min(bounds.Dy(), targetH)
	plane := targetW * targetH
	data := make([]float32, 3*plane)

	rgba, isRGBA := src.(*image.RGBA)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var rf, gf, bf float32
			if isRGBA {
				off := rgba.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				rf = float32(rgba.Pix[off]) / 255.0
				gf = float32(rgba.Pix[off+1]) / 255.0
				bf = float32(rgba.Pix[off+2]) / 255.0
			} else {
				// RGBA returns 0-65535
				r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				rf = float32(r) / 65535.0
				gf = float32(g) / 65535.0
				bf = float32(b) / 65535.0
			}

			idx := y*targetW + x
			data[idx] = (rf - MeanR) / StdR
			data[plane+idx] = (gf - MeanG) / StdG
			data[2*plane+idx] = (bf - MeanB) / StdB
		}
	}
	return data
}

// upscaleMaskLogits 最近邻放大到原图尺寸并二值化
//
// # Params:
//
//	logits: 低分辨率 Mask logits, logitsDim x logitsDim
//	validW, validH: logits 中对应有效图像 (非填充) 的区域
//	dstW, dstH: 原图尺寸
func upscaleMaskLogits(logits []float32, logitsDim, validW, validH, dstW, dstH int) []uint8 {
	output := make([]uint8, dstW*dstH)
	xRatio := float32(validW) / float32(dstW)
	yRatio := float32(validH) / float32(dstH)

	for y := 0; y < dstH; y++ {
		srcY := min(int(float32(y)*yRatio), validH-1)
		for x := 0; x < dstW; x++ {
			srcX := min(int(float32(x)*xRatio), validW-1)
			if logits[srcY*logitsDim+srcX] > maskThreshold {
				output[y*dstW+x] = 255
			}
		}
	}
	return output
}
