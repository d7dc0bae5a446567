// Package observe carries the coordinator's health and batching state to
// operators: a WebSocket dashboard feed and a Prometheus text endpoint.
// Grounded on the teacher's pkg/router (cross-host worker registry
// dashboard), adapted here to a single process's coordinator/backend
// pool instead of a cluster of remote workers.
package observe

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kunal/dualnet-batcher/pkg/devicehealth"
	"github.com/kunal/dualnet-batcher/pkg/dualnet"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Broadcaster pushes coordinator state to connected dashboard clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*websocket.Conn]bool)}
}

// HandleWS is the WebSocket upgrade handler for /ws.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  websocket upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	n := len(b.clients)
	b.mu.Unlock()
	log.Printf("📊 dashboard client connected (%d total)", n)

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			n := len(b.clients)
			b.mu.Unlock()
			conn.Close()
			log.Printf("📊 dashboard client disconnected (%d remain)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// EngineState is the JSON payload pushed to the dashboard: the
// coordinator's batching statistics plus the device pool's health.
type EngineState struct {
	ModelID      string                 `json:"model_id"`
	NumClients   int                    `json:"num_clients"`
	NumRuns      uint64                 `json:"num_runs"`
	QueueDepth   int                    `json:"queue_depth"`
	QueueCounter uint64                 `json:"queue_counter"`
	RunCounter   uint64                 `json:"run_counter"`
	Devices      []devicehealth.GPUInfo `json:"devices"`
}

// Snapshot builds an EngineState from live coordinator stats and device
// health, ready to hand to Broadcast.
func Snapshot(modelID string, stats dualnet.Stats, mon devicehealth.Monitor) EngineState {
	return EngineState{
		ModelID:      modelID,
		NumClients:   stats.NumClients,
		NumRuns:      stats.NumRuns,
		QueueDepth:   stats.QueueDepth,
		QueueCounter: stats.QueueCounter,
		RunCounter:   stats.RunCounter,
		Devices:      mon.Snapshot(),
	}
}

// Broadcast sends state to every connected WebSocket client, dropping any
// that error (the client is assumed disconnected).
func (b *Broadcaster) Broadcast(state EngineState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}
