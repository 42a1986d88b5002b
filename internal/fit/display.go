package fit

// Pack encodes img as one uint32 per pixel, 0x00RRGGBB, row-major. dst is
// reused when it has the right length.
func Pack(img *Image, dst []uint32) []uint32 {
	n := img.Width * img.Height
	if len(dst) != n {
		dst = make([]uint32, n)
	}
	for i, j := 0, 0; i < n; i, j = i+1, j+3 {
		dst[i] = uint32(img.Pix[j])<<16 | uint32(img.Pix[j+1])<<8 | uint32(img.Pix[j+2])
	}
	return dst
}

// Unpack writes a packed 0x00RRGGBB frame to an RGBA byte buffer with opaque
// alpha, the layout most display surfaces upload directly.
func Unpack(frame []uint32, rgba []uint8) []uint8 {
	if len(rgba) != len(frame)*4 {
		rgba = make([]uint8, len(frame)*4)
	}
	for i, v := range frame {
		o := i * 4
		rgba[o+0] = uint8(v >> 16)
		rgba[o+1] = uint8(v >> 8)
		rgba[o+2] = uint8(v)
		rgba[o+3] = 0xff
	}
	return rgba
}
