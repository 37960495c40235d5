// Package cpuspec sizes inference thread pools from the host CPU.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	LogicalCores     int
	PerformanceCores int // 0 when the CPU is not a known hybrid design
	HasAVX2          bool
	HasNEON          bool
}

var (
	intelCoreRegex  = regexp.MustCompile(`intel.*(?:core.*i[3579]-(\d{5})|core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3}))`)
	appleChipRegex  = regexp.MustCompile(`apple\s+(m[1-4]\s*(?:pro|max|ultra)?)`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// intelPCores maps 12th-14th gen Core i model numbers to performance core counts.
var intelPCores = map[string]int{
	"12900": 8, "12700": 8, "12600": 6, "12400": 6, "12100": 4,
	"13900": 8, "13700": 8, "13600": 6, "13500": 6, "13400": 6, "13100": 4,
	"14900": 8, "14700": 8, "14600": 6, "14400": 6, "14100": 4,
}

// intelUltraPCores maps Core Ultra "<series> <model>" to performance core counts.
var intelUltraPCores = map[string]int{
	"9 285": 8,
	"7 265": 8, "7 255": 8,
	"5 235": 6, "5 225": 4,
}

// applePCores maps Apple Silicon chips to performance core counts, taking the larger binning.
var applePCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
	"m4": 6, "m4 pro": 8, "m4 max": 12,
}

// GetCPUSpec returns CPU specifications of the running host
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:        cpuid.CPU.BrandName,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PerformanceCores: determinePerformanceCores(cpuid.CPU.BrandName),
		HasAVX2:          cpuid.CPU.Supports(cpuid.AVX2),
		HasNEON:          cpuid.CPU.Supports(cpuid.ASIMD),
	}
}

// GetOptimalThreadCount returns the recommended number of threads for a single inference call
func (c CPUSpec) GetOptimalThreadCount() int {
	// runtime.NumCPU honours cgroup and affinity limits, cpuid does not
	availableCPUs := runtime.NumCPU()

	if c.PerformanceCores > 0 {
		return min(c.PerformanceCores, availableCPUs)
	}

	if c.LogicalCores > 0 {
		return min(c.LogicalCores, availableCPUs)
	}
	return availableCPUs
}

// InferenceThreads resolves the configured thread count. A positive requested value wins;
// otherwise the optimal count is split across concurrent inference slots, never below one.
func (c CPUSpec) InferenceThreads(requested, concurrent int) int {
	if requested > 0 {
		return requested
	}
	concurrent = max(concurrent, 1)
	return max(c.GetOptimalThreadCount()/concurrent, 1)
}

func determinePerformanceCores(brandName string) int {
	brandName = whitespaceRegex.ReplaceAllString(strings.ToLower(brandName), " ")

	if m := intelCoreRegex.FindStringSubmatch(brandName); m != nil {
		if m[1] != "" {
			return intelPCores[m[1]]
		}
		return intelUltraPCores[m[2]+" "+m[3]]
	}

	if m := appleChipRegex.FindStringSubmatch(brandName); m != nil {
		return applePCores[strings.TrimSpace(m[1])]
	}

	return 0
}
