package sam2

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestNormalizeAndPad(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	data := normalizeAndPad(img, 4, 4)
	if len(data) != 3*16 {
		t.Fatalf("长度错误: %d", len(data))
	}

	want := float32((1.0 - MeanR) / StdR)
	if math.Abs(float64(data[0]-want)) > 1e-5 {
		t.Fatalf("R 通道归一化错误: %f != %f", data[0], want)
	}
	// 填充区域保持为 0
	if data[3] != 0 || data[16+15] != 0 {
		t.Fatal("填充区域应为 0")
	}
}

func TestUpscaleMaskLogits(t *testing.T) {
	// 4x4 logits, 左上 2x2 为正
	logits := make([]float32, 16)
	for _, i := range []int{0, 1, 4, 5} {
		logits[i] = 1
	}
	for i := range logits {
		if logits[i] == 0 {
			logits[i] = -1
		}
	}

	mask := upscaleMaskLogits(logits, 4, 4, 4, 8, 8)
	if len(mask) != 64 {
		t.Fatalf("长度错误: %d", len(mask))
	}
	if mask[0] != 255 || mask[3*8+3] != 255 {
		t.Fatal("左上区域应为前景")
	}
	if mask[4*8+4] != 0 || mask[7*8+7] != 0 {
		t.Fatal("右下区域应为背景")
	}
}
