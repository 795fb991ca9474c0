package levmarq

import (
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// CPUFeatures tracks the instruction set extensions of the host. The solver
// kernels are portable Go; the report is logged with every device so that
// throughput numbers can be compared across machines.
type CPUFeatures struct {
	Arch       string
	HasSSE4    bool
	HasAVX     bool
	HasAVX2    bool
	HasFMA     bool
	HasAVX512F bool
	HasASIMD   bool // ARM64 NEON
	HasSVE     bool // ARM64 scalable vectors
}

// HostFeatures detects the features of the running CPU
func HostFeatures() CPUFeatures {
	return CPUFeatures{
		Arch:       runtime.GOARCH,
		HasSSE4:    cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:     cpu.X86.HasAVX,
		HasAVX2:    cpu.X86.HasAVX2,
		HasFMA:     cpu.X86.HasFMA,
		HasAVX512F: cpu.X86.HasAVX512F,
		HasASIMD:   cpu.ARM64.HasASIMD,
		HasSVE:     cpu.ARM64.HasSVE,
	}
}

// String lists the detected extensions, e.g. "amd64 sse4 avx avx2 fma".
func (f CPUFeatures) String() string {
	parts := []string{f.Arch}
	add := func(ok bool, name string) {
		if ok {
			parts = append(parts, name)
		}
	}
	add(f.HasSSE4, "sse4")
	add(f.HasAVX, "avx")
	add(f.HasAVX2, "avx2")
	add(f.HasFMA, "fma")
	add(f.HasAVX512F, "avx512f")
	add(f.HasASIMD, "asimd")
	add(f.HasSVE, "sve")
	return strings.Join(parts, " ")
}
