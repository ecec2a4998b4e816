package agent

import (
	"context"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/fleetbay/drydock/internal/logger"
	"github.com/fleetbay/drydock/internal/version"
)

// collectMetrics gathers the host metrics reported alongside every poll.
// Collection is best effort: a failing collector is logged and its keys are
// simply absent from the bag, since a device must keep polling even when one
// probe misbehaves on its hardware.
func collectMetrics(ctx context.Context, installRoot string) map[string]any {
	metrics := map[string]any{
		"agentVersion": version.Short(),
	}

	if info, err := host.InfoWithContext(ctx); err != nil {
		logger.WarnKV(ctx, "Host info collection failed", "error", err)
	} else {
		metrics["hostname"] = info.Hostname
		metrics["uptimeSeconds"] = info.Uptime
		metrics["platform"] = info.Platform
		metrics["platformVersion"] = info.PlatformVersion
		metrics["kernelVersion"] = info.KernelVersion
	}

	// Interval zero samples since the last call, which for a one-shot process
	// means usage since boot.
	if percentages, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		logger.WarnKV(ctx, "CPU usage collection failed", "error", err)
	} else if len(percentages) > 0 {
		metrics["cpuPercent"] = percentages[0]
	}

	if vmStats, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		logger.WarnKV(ctx, "Memory collection failed", "error", err)
	} else {
		metrics["memoryPercent"] = vmStats.UsedPercent
		metrics["memoryTotalBytes"] = vmStats.Total
	}

	// Before the first install the root does not exist yet, so fall back to
	// the volume it will be created on.
	usagePath := installRoot
	if _, err := os.Stat(usagePath); err != nil {
		usagePath = filepath.Dir(usagePath)
	}

	if usage, err := disk.UsageWithContext(ctx, usagePath); err != nil {
		logger.WarnKV(ctx, "Disk usage collection failed", "path", usagePath, "error", err)
	} else {
		metrics["diskTotalBytes"] = usage.Total
		metrics["diskFreeBytes"] = usage.Free
	}

	return metrics
}
