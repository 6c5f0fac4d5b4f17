// Package coords 在以图片中心为原点、y 轴向上的相对坐标与像素坐标之间转换
package coords

import (
	"image"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidInput 输入不是合法的整数坐标
var ErrInvalidInput = errors.New("输入无效")

// Center 图片中心, 整数除法
func Center(w, h int) image.Point {
	return image.Pt(w/2, h/2)
}

// ToAbsolute 相对坐标转像素坐标并限制在图片范围内
//
// # Params:
//
//	w, h: 图片宽高
//	relX: 相对中心的水平偏移, 向右为正
//	relY: 相对中心的垂直偏移, 向上为正
func ToAbsolute(w, h, relX, relY int) image.Point {
	c := Center(w, h)
	return image.Pt(
		clamp(c.X+relX, 0, w-1),
		clamp(c.Y-relY, 0, h-1),
	)
}

// ParseInt 解析单个整数
func ParseInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidInput, "%q 不是整数", strings.TrimSpace(s))
	}
	return v, nil
}

// ParsePair 解析 "x y" 形式的两个整数
func ParsePair(line string) (int, int, error) {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return 0, 0, errors.Wrap(ErrInvalidInput, "请输入两个整数 x 和 y")
	}
	x, err := ParseInt(parts[0])
	if err != nil {
		return 0, 0, err
	}
	y, err := ParseInt(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
