package fit

import (
	"log/slog"

	"golang.org/x/sys/cpu"
)

// Full-image sum of squared differences. The search never calls this per
// candidate; it is used for progress reporting and convergence checks.
//
// Three scalar kernels share the same contract over packed RGB buffers:
//   - ssdNaive:     reference loop
//   - ssdUnrolled4: 4 pixels per iteration
//   - ssdUnrolled8: 8 pixels per iteration, picked on wide-issue CPUs

// SSDKernel identifies one of the full-image loss kernels
type SSDKernel int

const (
	SSDKernelNaive SSDKernel = iota
	SSDKernelUnrolled4
	SSDKernelUnrolled8
)

func (k SSDKernel) String() string {
	switch k {
	case SSDKernelNaive:
		return "naive"
	case SSDKernelUnrolled4:
		return "unrolled4"
	case SSDKernelUnrolled8:
		return "unrolled8"
	default:
		return "unknown"
	}
}

// ActiveSSDKernel reports which kernel was selected at initialization
var ActiveSSDKernel SSDKernel

var ssdKernel func(a, b []uint8) float64

func init() {
	// AVX2 / ASIMD machines have enough registers and ALUs to profit from the
	// wider unroll; everything else takes the 4-way loop.
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		SetSSDKernel(SSDKernelUnrolled8)
	} else {
		SetSSDKernel(SSDKernelUnrolled4)
	}
	slog.Debug("SSD kernel initialized", "kernel", ActiveSSDKernel.String(),
		"avx2", cpu.X86.HasAVX2, "asimd", cpu.ARM64.HasASIMD)
}

// SetSSDKernel switches the kernel used by TotalLoss (for benchmarking)
func SetSSDKernel(k SSDKernel) {
	ActiveSSDKernel = k
	switch k {
	case SSDKernelNaive:
		ssdKernel = ssdNaive
	case SSDKernelUnrolled8:
		ssdKernel = ssdUnrolled8
	default:
		ActiveSSDKernel = SSDKernelUnrolled4
		ssdKernel = ssdUnrolled4
	}
}

// TotalLoss is the sum of PixelLoss over every pixel of img against the target
func TotalLoss(target *Target, img *Image) float64 {
	if !target.img.SameSize(img) {
		panic("TotalLoss: image dimensions must match")
	}
	return ssdKernel(img.Pix, target.img.Pix)
}

func ssdNaive(a, b []uint8) float64 {
	var sum float64
	for i := 0; i < len(a); i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// int32 accumulators are safe: 8 pixels * 3 channels * 255^2 = 1,560,600
func ssdUnrolled4(a, b []uint8) float64 {
	var sum float64
	n := len(a)
	unroll := (n / 12) * 12

	i := 0
	for ; i < unroll; i += 12 {
		var acc int32
		for j := i; j < i+12; j++ {
			d := int32(a[j]) - int32(b[j])
			acc += d * d
		}
		sum += float64(acc)
	}
	for ; i < n; i++ {
		d := int32(a[i]) - int32(b[i])
		sum += float64(d * d)
	}
	return sum
}

func ssdUnrolled8(a, b []uint8) float64 {
	var sum float64
	n := len(a)
	unroll := (n / 24) * 24

	i := 0
	for ; i < unroll; i += 24 {
		a8 := a[i : i+24 : i+24]
		b8 := b[i : i+24 : i+24]

		d0 := int32(a8[0]) - int32(b8[0])
		d1 := int32(a8[1]) - int32(b8[1])
		d2 := int32(a8[2]) - int32(b8[2])
		d3 := int32(a8[3]) - int32(b8[3])
		d4 := int32(a8[4]) - int32(b8[4])
		d5 := int32(a8[5]) - int32(b8[5])
		d6 := int32(a8[6]) - int32(b8[6])
		d7 := int32(a8[7]) - int32(b8[7])
		acc := d0*d0 + d1*d1 + d2*d2 + d3*d3 + d4*d4 + d5*d5 + d6*d6 + d7*d7

		d0 = int32(a8[8]) - int32(b8[8])
		d1 = int32(a8[9]) - int32(b8[9])
		d2 = int32(a8[10]) - int32(b8[10])
		d3 = int32(a8[11]) - int32(b8[11])
		d4 = int32(a8[12]) - int32(b8[12])
		d5 = int32(a8[13]) - int32(b8[13])
		d6 = int32(a8[14]) - int32(b8[14])
		d7 = int32(a8[15]) - int32(b8[15])
		acc += d0*d0 + d1*d1 + d2*d2 + d3*d3 + d4*d4 + d5*d5 + d6*d6 + d7*d7

		d0 = int32(a8[16]) - int32(b8[16])
		d1 = int32(a8[17]) - int32(b8[17])
		d2 = int32(a8[18]) - int32(b8[18])
		d3 = int32(a8[19]) - int32(b8[19])
		d4 = int32(a8[20]) - int32(b8[20])
		d5 = int32(a8[21]) - int32(b8[21])
		d6 = int32(a8[22]) - int32(b8[22])
		d7 = int32(a8[23]) - int32(b8[23])
		acc += d0*d0 + d1*d1 + d2*d2 + d3*d3 + d4*d4 + d5*d5 + d6*d6 + d7*d7

		sum += float64(acc)
	}
	for ; i < n; i++ {
		d := int32(a[i]) - int32(b[i])
		sum += float64(d * d)
	}
	return sum
}
