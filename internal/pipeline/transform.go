package pipeline

import "math"

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func (p *Pipeline) applyResize(width, height int) bool {
	width = clamp(width, 1, MaxSize)
	height = clamp(height, 1, MaxSize)
	if p.resize == (Size{width, height}) {
		return false
	}

	if p.crop == (Rect{0, 0, p.resize.Width, p.resize.Height}) {
		// Uncropped: follow the new size exactly instead of accumulating
		// rounding error through cropScale.
		p.crop.Width = width
		p.crop.Height = height
		p.cropScale = unitScale
	} else {
		p.cropScale.X *= float64(width) / float64(p.resize.Width)
		p.cropScale.Y *= float64(height) / float64(p.resize.Height)
	}
	p.resize = Size{width, height}
	return true
}

func (p *Pipeline) applyCrop(width, height, x, y int, clipOffsetsFirst bool) bool {
	bw, bh := p.resize.Width, p.resize.Height

	if x < 0 {
		width += x
		x = 0
	} else if x >= bw {
		x = bw - 1
	}
	if y < 0 {
		height += y
		y = 0
	} else if y >= bh {
		y = bh - 1
	}

	width = clamp(width, 1, bw)
	height = clamp(height, 1, bh)

	if clipOffsetsFirst {
		if x+width > bw {
			x = bw - width
		}
		if y+height > bh {
			y = bh - height
		}
	} else {
		if x+width > bw {
			width = bw - x
		}
		if y+height > bh {
			height = bh - y
		}
	}

	r := Rect{x, y, width, height}
	if r == p.crop {
		return false
	}
	p.crop = r
	p.cropScale = unitScale
	return true
}

// settleCrop applies pending scale debt and re-clips the rectangle to the
// current resize bounds.
func (p *Pipeline) settleCrop() {
	if p.cropScale != unitScale {
		sx, sy := p.cropScale.X, p.cropScale.Y
		p.crop = Rect{
			X:      int(math.Round(float64(p.crop.X) * sx)),
			Y:      int(math.Round(float64(p.crop.Y) * sy)),
			Width:  int(math.Round(float64(p.crop.Width) * sx)),
			Height: int(math.Round(float64(p.crop.Height) * sy)),
		}
		p.cropScale = unitScale
	}

	bw, bh := p.resize.Width, p.resize.Height
	c := &p.crop
	c.X = clamp(c.X, 0, bw-1)
	c.Y = clamp(c.Y, 0, bh-1)
	c.Width = clamp(c.Width, 1, bw)
	c.Height = clamp(c.Height, 1, bh)
	if c.X+c.Width > bw {
		c.Width = bw - c.X
	}
	if c.Y+c.Height > bh {
		c.Height = bh - c.Y
	}
}
