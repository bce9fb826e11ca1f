package photoproc

// KnockOutBackground returns a 4-channel copy of raw in which every pixel at
// or above threshold brightness becomes transparent white and every darker
// pixel keeps its RGB. Foreground alpha is taken from the source when it has
// an alpha channel and is 255 otherwise. raw is not modified.
func KnockOutBackground(raw *RawImage, threshold int) *RawImage {
	n := raw.Width * raw.Height
	out := &RawImage{
		Width:    raw.Width,
		Height:   raw.Height,
		Channels: 4,
		Pix:      make([]uint8, n*4),
	}
	c := raw.Channels
	for p := 0; p < n; p++ {
		si, di := p*c, p*4
		r, g, b := raw.Pix[si], raw.Pix[si+1], raw.Pix[si+2]
		if !isForeground(r, g, b, threshold) {
			out.Pix[di] = 255
			out.Pix[di+1] = 255
			out.Pix[di+2] = 255
			out.Pix[di+3] = 0
			continue
		}
		out.Pix[di] = r
		out.Pix[di+1] = g
		out.Pix[di+2] = b
		if c == 4 {
			out.Pix[di+3] = raw.Pix[si+3]
		} else {
			out.Pix[di+3] = 255
		}
	}
	return out
}

// OpaqueCount returns the number of pixels with non-zero alpha in a
// 4-channel buffer.
func OpaqueCount(raw *RawImage) int {
	if raw.Channels != 4 {
		return raw.Width * raw.Height
	}
	n := 0
	for i := 3; i < len(raw.Pix); i += 4 {
		if raw.Pix[i] != 0 {
			n++
		}
	}
	return n
}
