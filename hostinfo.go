package main

import (
	"log"

	"github.com/shirou/gopsutil/v3/cpu"
)

// detectWorkerCount returns the number of cores gopsutil reports,
// summed across all physical CPUs the way the teacher's own
// getCPUInfo helper does, for use when the config requests autodetect
// (workers: 0).
func detectWorkerCount() int {
	info, err := cpu.Info()
	if err != nil {
		log.Printf("hostinfo: failed to get CPU info, defaulting to 1 worker: %v", err)
		return 1
	}

	total := 0
	for _, c := range info {
		total += int(c.Cores)
	}
	if total <= 0 {
		return 1
	}
	return total
}
