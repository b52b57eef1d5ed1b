// internal/api/v2/system.go
package api

import (
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/sonoscan/sonoscan/internal/logger"
)

// SystemInfo represents basic system information
type SystemInfo struct {
	OS               string    `json:"os"`
	Architecture     string    `json:"architecture"`
	Hostname         string    `json:"hostname"`
	Platform         string    `json:"platform"`
	PlatformVer      string    `json:"platform_version"`
	KernelVersion    string    `json:"kernel_version"`
	UpTime           uint64    `json:"uptime_seconds"`
	BootTime         time.Time `json:"boot_time"`
	AppStart         time.Time `json:"app_start_time"`
	AppUptime        int64     `json:"app_uptime_seconds"`
	NumCPU           int       `json:"num_cpu"`
	CPUBrand         string    `json:"cpu_brand"`
	PhysicalCores    int       `json:"physical_cores"`
	InferenceThreads int       `json:"inference_threads"`
	GoVersion        string    `json:"go_version"`
}

// ResourceInfo represents system resource usage data
type ResourceInfo struct {
	CPUUsage    float64 `json:"cpu_usage_percent"`
	MemoryTotal uint64  `json:"memory_total"`
	MemoryUsed  uint64  `json:"memory_used"`
	MemoryFree  uint64  `json:"memory_free"`
	MemoryUsage float64 `json:"memory_usage_percent"`
	SwapTotal   uint64  `json:"swap_total"`
	SwapUsed    uint64  `json:"swap_used"`
	SwapUsage   float64 `json:"swap_usage_percent"`
	ProcessMem  float64 `json:"process_memory_mb"`
	ProcessCPU  float64 `json:"process_cpu_percent"`
}

// DiskInfo represents information about a disk
type DiskInfo struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	Fstype     string  `json:"fstype"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Free       uint64  `json:"free"`
	UsagePerc  float64 `json:"usage_percent"`
}

// cpuSampleWindow is how long CPU usage is sampled for.
const cpuSampleWindow = 500 * time.Millisecond

// Initialize system routes
func (c *Controller) initSystemRoutes() {
	g := c.Group.Group("/system", c.requireAuth(), c.requireAdmin())
	g.GET("/info", c.GetSystemInfo)
	g.GET("/resources", c.GetResourceInfo)
	g.GET("/disks", c.GetDiskInfo)
}

// GetSystemInfo handles GET /api/v2/system/info
func (c *Controller) GetSystemInfo(ctx echo.Context) error {
	hostInfo, err := host.InfoWithContext(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get host information", http.StatusInternalServerError)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	threads := c.Settings.Inference.Threads
	if threads <= 0 {
		threads = cpuid.CPU.PhysicalCores
	}

	return ctx.JSON(http.StatusOK, SystemInfo{
		OS:               runtime.GOOS,
		Architecture:     runtime.GOARCH,
		Hostname:         hostname,
		Platform:         hostInfo.Platform,
		PlatformVer:      hostInfo.PlatformVersion,
		KernelVersion:    hostInfo.KernelVersion,
		UpTime:           hostInfo.Uptime,
		BootTime:         time.Unix(int64(hostInfo.BootTime), 0),
		AppStart:         c.startTime,
		AppUptime:        int64(time.Since(c.startTime).Seconds()),
		NumCPU:           runtime.NumCPU(),
		CPUBrand:         cpuid.CPU.BrandName,
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		InferenceThreads: threads,
		GoVersion:        runtime.Version(),
	})
}

// GetResourceInfo handles GET /api/v2/system/resources
func (c *Controller) GetResourceInfo(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	memInfo, err := mem.VirtualMemoryWithContext(reqCtx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get memory information", http.StatusInternalServerError)
	}
	swapInfo, err := mem.SwapMemoryWithContext(reqCtx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get swap information", http.StatusInternalServerError)
	}
	cpuPercent, err := cpu.PercentWithContext(reqCtx, cpuSampleWindow, false)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get CPU information", http.StatusInternalServerError)
	}

	info := ResourceInfo{
		MemoryTotal: memInfo.Total,
		MemoryUsed:  memInfo.Used,
		MemoryFree:  memInfo.Free,
		MemoryUsage: memInfo.UsedPercent,
		SwapTotal:   swapInfo.Total,
		SwapUsed:    swapInfo.Used,
		SwapUsage:   swapInfo.UsedPercent,
	}
	if len(cpuPercent) > 0 {
		info.CPUUsage = cpuPercent[0]
	}

	if proc, err := process.NewProcessWithContext(reqCtx, int32(os.Getpid())); err == nil {
		if procMem, err := proc.MemoryInfoWithContext(reqCtx); err == nil && procMem != nil {
			info.ProcessMem = float64(procMem.RSS) / 1024 / 1024
		}
		info.ProcessCPU, _ = proc.CPUPercentWithContext(reqCtx)
	}

	return ctx.JSON(http.StatusOK, info)
}

// GetDiskInfo handles GET /api/v2/system/disks
func (c *Controller) GetDiskInfo(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	partitions, err := disk.PartitionsWithContext(reqCtx, false)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get disk partitions", http.StatusInternalServerError)
	}

	disks := []DiskInfo{}
	for _, partition := range partitions {
		if skipFilesystem(partition.Fstype) {
			continue
		}
		usage, err := disk.UsageWithContext(reqCtx, partition.Mountpoint)
		if err != nil {
			c.logger.Debug("disk usage unavailable",
				logger.String("mountpoint", partition.Mountpoint),
				logger.Error(err))
			continue
		}
		disks = append(disks, DiskInfo{
			Device:     partition.Device,
			Mountpoint: partition.Mountpoint,
			Fstype:     partition.Fstype,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
			UsagePerc:  usage.UsedPercent,
		})
	}

	return ctx.JSON(http.StatusOK, disks)
}

// pseudoFilesystems do not represent persistent storage.
var pseudoFilesystems = map[string]bool{
	"sysfs": true, "proc": true, "procfs": true, "devfs": true, "devtmpfs": true,
	"debugfs": true, "securityfs": true, "kernfs": true, "overlay": true, "overlayfs": true,
	"tmpfs": true, "ramfs": true, "devpts": true, "hugetlbfs": true, "mqueue": true,
	"pstore": true, "binfmt_misc": true, "bpf": true, "tracefs": true, "configfs": true,
	"autofs": true, "efivarfs": true, "rpc_pipefs": true, "nsfs": true, "squashfs": true,
}

// skipFilesystem returns true if the filesystem type should be skipped
func skipFilesystem(fstype string) bool {
	if pseudoFilesystems[fstype] {
		return true
	}
	for _, prefix := range []string{"fuse", "cgroup", "proc", "sys", "dev"} {
		if strings.HasPrefix(fstype, prefix) {
			return true
		}
	}
	return false
}
