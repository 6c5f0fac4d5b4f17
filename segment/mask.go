package segment

// Mask 二值分割结果, 行优先存储
type Mask struct {
	Width, Height int
	Pix           []bool
}

// NewMask 创建全为背景的 Mask
func NewMask(w, h int) Mask {
	return Mask{Width: w, Height: h, Pix: make([]bool, w*h)}
}

// MaskFromBytes 由 0/255 字节数组创建 Mask, 非 0 即前景
func MaskFromBytes(data []uint8, w, h int) Mask {
	m := NewMask(w, h)
	for i := 0; i < len(m.Pix) && i < len(data); i++ {
		m.Pix[i] = data[i] != 0
	}
	return m
}

// At 像素是否属于目标, 越界返回 false
func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Set 设置像素
func (m Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Pix[y*m.Width+x] = v
}

// Count 前景像素数量
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}
