package util

import (
	"runtime"
)

// MemoryUsage is the process footprint reported by the health endpoint.
type MemoryUsage struct {
	HeapMB     uint64 `json:"heap_mb"`
	SysMB      uint64 `json:"sys_mb"`
	Goroutines int    `json:"goroutines"`
}

func ReadMemoryUsage() MemoryUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryUsage{
		HeapMB:     m.HeapAlloc >> 20,
		SysMB:      m.Sys >> 20,
		Goroutines: runtime.NumGoroutine(),
	}
}
