// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSample is a point-in-time reading logged by StartHostStatsReporter,
// the same role it plays in the teacher's agent health reporting.
type HostSample struct {
	CPUPercent float64
	MemFreeMB  uint64
	DiskFreeMB uint64
}

// SampleHost reads current CPU/mem/disk usage for path. Any individual
// metric that fails to sample is left at zero rather than failing the
// whole sample — this is best-effort diagnostics, not a control path.
func SampleHost(path string) HostSample {
	var s HostSample

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemFreeMB = vm.Available / (1024 * 1024)
	}
	if du, err := disk.Usage(path); err == nil {
		s.DiskFreeMB = du.Free / (1024 * 1024)
	}
	return s
}

// StartHostStatsReporter logs a HostSample for path every interval until ctx
// is cancelled. It runs on its own ticker independent of any other stats
// cadence, since host sampling (gopsutil syscalls) is its own cost separate
// from the protocol counters logged elsewhere.
func StartHostStatsReporter(ctx context.Context, logger *slog.Logger, logPrefix, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := SampleHost(path)
				logger.Info(logPrefix,
					"cpu_percent", s.CPUPercent,
					"mem_free_mb", s.MemFreeMB,
					"disk_free_mb", s.DiskFreeMB,
				)
			}
		}
	}()
}
