//go:build nvml

package devicehealth

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
#include <string.h>

typedef int nvmlReturn_t;
typedef void* nvmlDevice_t;

typedef struct {
    unsigned long long total;
    unsigned long long free;
    unsigned long long used;
} nvmlMemory_t;

typedef struct {
    unsigned int gpu;
    unsigned int memory;
} nvmlUtilization_t;

static void* nvml_lib = NULL;

typedef nvmlReturn_t (*nvmlInit_t)(void);
typedef nvmlReturn_t (*nvmlShutdown_t)(void);
typedef nvmlReturn_t (*nvmlDeviceGetCount_t)(unsigned int*);
typedef nvmlReturn_t (*nvmlDeviceGetHandleByIndex_t)(unsigned int, nvmlDevice_t*);
typedef nvmlReturn_t (*nvmlDeviceGetMemoryInfo_t)(nvmlDevice_t, nvmlMemory_t*);
typedef nvmlReturn_t (*nvmlDeviceGetUtilizationRates_t)(nvmlDevice_t, nvmlUtilization_t*);
typedef nvmlReturn_t (*nvmlDeviceGetTemperature_t)(nvmlDevice_t, int, unsigned int*);
typedef nvmlReturn_t (*nvmlDeviceGetName_t)(nvmlDevice_t, char*, unsigned int);

static nvmlInit_t f_nvmlInit = NULL;
static nvmlShutdown_t f_nvmlShutdown = NULL;
static nvmlDeviceGetCount_t f_nvmlDeviceGetCount = NULL;
static nvmlDeviceGetHandleByIndex_t f_nvmlDeviceGetHandleByIndex = NULL;
static nvmlDeviceGetMemoryInfo_t f_nvmlDeviceGetMemoryInfo = NULL;
static nvmlDeviceGetUtilizationRates_t f_nvmlDeviceGetUtilizationRates = NULL;
static nvmlDeviceGetTemperature_t f_nvmlDeviceGetTemperature = NULL;
static nvmlDeviceGetName_t f_nvmlDeviceGetName = NULL;

static int nvml_load() {
    nvml_lib = dlopen("libnvidia-ml.so.1", RTLD_LAZY);
    if (!nvml_lib) {
        nvml_lib = dlopen("libnvidia-ml.so", RTLD_LAZY);
    }
    if (!nvml_lib) return -1;

    f_nvmlInit = (nvmlInit_t)dlsym(nvml_lib, "nvmlInit_v2");
    if (!f_nvmlInit) f_nvmlInit = (nvmlInit_t)dlsym(nvml_lib, "nvmlInit");
    f_nvmlShutdown = (nvmlShutdown_t)dlsym(nvml_lib, "nvmlShutdown");
    f_nvmlDeviceGetCount = (nvmlDeviceGetCount_t)dlsym(nvml_lib, "nvmlDeviceGetCount_v2");
    if (!f_nvmlDeviceGetCount) f_nvmlDeviceGetCount = (nvmlDeviceGetCount_t)dlsym(nvml_lib, "nvmlDeviceGetCount");
    f_nvmlDeviceGetHandleByIndex = (nvmlDeviceGetHandleByIndex_t)dlsym(nvml_lib, "nvmlDeviceGetHandleByIndex_v2");
    if (!f_nvmlDeviceGetHandleByIndex) f_nvmlDeviceGetHandleByIndex = (nvmlDeviceGetHandleByIndex_t)dlsym(nvml_lib, "nvmlDeviceGetHandleByIndex");
    f_nvmlDeviceGetMemoryInfo = (nvmlDeviceGetMemoryInfo_t)dlsym(nvml_lib, "nvmlDeviceGetMemoryInfo");
    f_nvmlDeviceGetUtilizationRates = (nvmlDeviceGetUtilizationRates_t)dlsym(nvml_lib, "nvmlDeviceGetUtilizationRates");
    f_nvmlDeviceGetTemperature = (nvmlDeviceGetTemperature_t)dlsym(nvml_lib, "nvmlDeviceGetTemperature");
    f_nvmlDeviceGetName = (nvmlDeviceGetName_t)dlsym(nvml_lib, "nvmlDeviceGetName");

    if (!f_nvmlInit || !f_nvmlDeviceGetCount || !f_nvmlDeviceGetHandleByIndex) return -2;

    return f_nvmlInit();
}

static int nvml_device_count() {
    unsigned int count = 0;
    if (f_nvmlDeviceGetCount) f_nvmlDeviceGetCount(&count);
    return (int)count;
}

static int nvml_get_memory(int idx, unsigned long long* total, unsigned long long* free, unsigned long long* used) {
    nvmlDevice_t dev;
    if (f_nvmlDeviceGetHandleByIndex(idx, &dev) != 0) return -1;
    nvmlMemory_t mem;
    if (f_nvmlDeviceGetMemoryInfo(dev, &mem) != 0) return -2;
    *total = mem.total;
    *free = mem.free;
    *used = mem.used;
    return 0;
}

static int nvml_get_utilization(int idx, unsigned int* gpu, unsigned int* mem) {
    nvmlDevice_t dev;
    if (f_nvmlDeviceGetHandleByIndex(idx, &dev) != 0) return -1;
    nvmlUtilization_t util;
    if (!f_nvmlDeviceGetUtilizationRates) return -2;
    if (f_nvmlDeviceGetUtilizationRates(dev, &util) != 0) return -3;
    *gpu = util.gpu;
    *mem = util.memory;
    return 0;
}

static int nvml_get_temperature(int idx, unsigned int* temp) {
    nvmlDevice_t dev;
    if (f_nvmlDeviceGetHandleByIndex(idx, &dev) != 0) return -1;
    if (!f_nvmlDeviceGetTemperature) return -2;
    if (f_nvmlDeviceGetTemperature(dev, 0, temp) != 0) return -3;
    return 0;
}

static int nvml_get_name(int idx, char* name, int len) {
    nvmlDevice_t dev;
    if (f_nvmlDeviceGetHandleByIndex(idx, &dev) != 0) return -1;
    if (!f_nvmlDeviceGetName) return -2;
    if (f_nvmlDeviceGetName(dev, name, len) != 0) return -3;
    return 0;
}

static void nvml_shutdown() {
    if (f_nvmlShutdown) f_nvmlShutdown();
    if (nvml_lib) dlclose(nvml_lib);
}
*/
import "C"

import (
	"log"
)

// nvmlMonitor wraps NVIDIA Management Library via dlopen (no compile-time
// dependency on libnvidia-ml), adapted from the teacher's pkg/worker/nvml
// shim to speak the Monitor interface instead of a package-local API.
type nvmlMonitor struct {
	gpuCount int
}

// New attempts to load libnvidia-ml.so and initialize NVML, unless mode is
// "false" (USE_NVML=false), in which case it returns the no-op monitor
// without touching the library. A missing library or GPU-less host under
// "auto"/"true" is not fatal: callers fall back to ResolveDeviceCount's
// default of one device.
func New(mode string) (Monitor, error) {
	if mode == "false" {
		return noopMonitor{}, nil
	}
	if rc := C.nvml_load(); rc != 0 {
		return &nvmlMonitor{gpuCount: 0}, nil
	}
	count := int(C.nvml_device_count())
	if count == 0 {
		C.nvml_shutdown()
		return &nvmlMonitor{gpuCount: 0}, nil
	}
	log.Printf("🎮 NVML initialized: %d GPU(s) detected", count)
	return &nvmlMonitor{gpuCount: count}, nil
}

func (n *nvmlMonitor) DeviceCount() int { return n.gpuCount }

func (n *nvmlMonitor) Snapshot() []GPUInfo {
	out := make([]GPUInfo, 0, n.gpuCount)
	for i := 0; i < n.gpuCount; i++ {
		info := GPUInfo{Index: i}

		var name [256]C.char
		if C.nvml_get_name(C.int(i), &name[0], 256) == 0 {
			info.Name = C.GoString(&name[0])
		}

		var total, free, used C.ulonglong
		if C.nvml_get_memory(C.int(i), &total, &free, &used) == 0 {
			info.MemoryTotalGB = float64(total) / (1024 * 1024 * 1024)
			info.MemoryFreeGB = float64(free) / (1024 * 1024 * 1024)
			info.MemoryUsedGB = float64(used) / (1024 * 1024 * 1024)
		}

		var gpuUtil, memUtil C.uint
		if C.nvml_get_utilization(C.int(i), &gpuUtil, &memUtil) == 0 {
			info.GPUUtilization = float64(gpuUtil)
		}

		var temp C.uint
		if C.nvml_get_temperature(C.int(i), &temp) == 0 {
			info.TemperatureC = float64(temp)
		}

		out = append(out, info)
	}
	return out
}

func (n *nvmlMonitor) Close() {
	if n.gpuCount > 0 {
		C.nvml_shutdown()
	}
}
