package observe

import (
	"fmt"
	"net/http"

	"github.com/kunal/dualnet-batcher/pkg/devicehealth"
	"github.com/kunal/dualnet-batcher/pkg/dualnet"
)

// MetricsHandler serves Prometheus text exposition for a coordinator and
// its device pool, adapted from the teacher's hand-rolled
// ServePrometheus (kept as plain fmt.Fprintf text rather than pulling in
// client_golang, matching the teacher's own choice not to depend on the
// Prometheus client library).
type MetricsHandler struct {
	modelID string
	stats   func() dualnet.Stats
	mon     devicehealth.Monitor
}

func NewMetricsHandler(modelID string, stats func() dualnet.Stats, mon devicehealth.Monitor) *MetricsHandler {
	return &MetricsHandler{modelID: modelID, stats: stats, mon: mon}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := m.stats()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP dualnet_num_clients Registered counted clients\n")
	fmt.Fprintf(w, "# TYPE dualnet_num_clients gauge\n")
	fmt.Fprintf(w, "dualnet_num_clients{model=%q} %d\n", m.modelID, s.NumClients)

	fmt.Fprintf(w, "# HELP dualnet_queue_depth Requests currently queued\n")
	fmt.Fprintf(w, "# TYPE dualnet_queue_depth gauge\n")
	fmt.Fprintf(w, "dualnet_queue_depth{model=%q} %d\n", m.modelID, s.QueueDepth)

	fmt.Fprintf(w, "# HELP dualnet_queue_counter Positions ever enqueued\n")
	fmt.Fprintf(w, "# TYPE dualnet_queue_counter counter\n")
	fmt.Fprintf(w, "dualnet_queue_counter{model=%q} %d\n", m.modelID, s.QueueCounter)

	fmt.Fprintf(w, "# HELP dualnet_run_counter Positions ever dispatched\n")
	fmt.Fprintf(w, "# TYPE dualnet_run_counter counter\n")
	fmt.Fprintf(w, "dualnet_run_counter{model=%q} %d\n", m.modelID, s.RunCounter)

	fmt.Fprintf(w, "# HELP dualnet_num_runs Batches dispatched\n")
	fmt.Fprintf(w, "# TYPE dualnet_num_runs counter\n")
	fmt.Fprintf(w, "dualnet_num_runs{model=%q} %d\n", m.modelID, s.NumRuns)

	if s.NumRuns > 0 {
		avg := float64(s.RunCounter) / float64(s.NumRuns)
		fmt.Fprintf(w, "# HELP dualnet_avg_batch_size Mean positions per dispatched batch\n")
		fmt.Fprintf(w, "# TYPE dualnet_avg_batch_size gauge\n")
		fmt.Fprintf(w, "dualnet_avg_batch_size{model=%q} %.2f\n", m.modelID, avg)
	}

	for _, gpu := range m.mon.Snapshot() {
		fmt.Fprintf(w, "gpu_vram_free_gb{index=\"%d\",name=%q} %.2f\n", gpu.Index, gpu.Name, gpu.MemoryFreeGB)
		fmt.Fprintf(w, "gpu_vram_total_gb{index=\"%d\",name=%q} %.2f\n", gpu.Index, gpu.Name, gpu.MemoryTotalGB)
		fmt.Fprintf(w, "gpu_utilization{index=\"%d\",name=%q} %.2f\n", gpu.Index, gpu.Name, gpu.GPUUtilization)
		fmt.Fprintf(w, "gpu_temperature_celsius{index=\"%d\",name=%q} %.1f\n", gpu.Index, gpu.Name, gpu.TemperatureC)
	}
}
