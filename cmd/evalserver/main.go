// Command evalserver wires the batching core together into a runnable
// process: it builds a backend from configuration, wraps it in the
// coordinator, drives it with synthetic search goroutines standing in for
// the excluded MCTS clients, and serves a metrics + dashboard surface
// modeled on the teacher's cmd/worker.
package main

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kunal/dualnet-batcher/pkg/backend"
	"github.com/kunal/dualnet-batcher/pkg/config"
	"github.com/kunal/dualnet-batcher/pkg/devicehealth"
	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"github.com/kunal/dualnet-batcher/pkg/features"
	"github.com/kunal/dualnet-batcher/pkg/observe"
)

// numSearchClients is the number of synthetic MCTS search goroutines
// this demo spins up to exercise the coordinator concurrently.
const numSearchClients = 16

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	cfg := config.Load()
	log.Printf("⚡ evalserver starting: engine=%s batch_size=%d board=%dx%d",
		cfg.Engine, cfg.BatchSize, cfg.BoardSide, cfg.BoardSide)

	mon, err := devicehealth.New(cfg.UseNVML)
	if err != nil {
		log.Fatalf("❌ device health init failed: %v", err)
	}
	defer mon.Close()

	be, err := backend.Build(backend.BuildOptions{
		Engine:      cfg.Engine,
		NumGPUs:     cfg.NumGPUs,
		BoardSide:   cfg.BoardSide,
		ModelPath:   cfg.ModelPath,
		RemoteAddrs: config.EndpointList(cfg.RemoteAddr),
		FakeValue:   cfg.FakeValue,
		FakePrior:   cfg.FakePrior,
	}, mon)
	if err != nil {
		log.Fatalf("❌ backend construction failed: %v", err)
	}
	log.Printf("✅ backend ready: %s", be.ModelID())

	factory := dualnet.NewFactory(be, cfg.BatchSize)
	defer factory.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < numSearchClients; i++ {
		wg.Add(1)
		go runSearchClient(i, factory, cfg.BoardSide, stop, &wg)
	}

	coordStats := factory.Stats

	broadcaster := observe.NewBroadcaster()
	go dashboardLoop(be.ModelID(), coordStats, mon, broadcaster, stop)

	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.NewMetricsHandler(be.ModelID(), coordStats, mon))
	mux.HandleFunc("/ws", broadcaster.HandleWS)

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("📊 metrics + dashboard on %s (/metrics, /ws)", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 shutting down evalserver...")
	close(stop)
	wg.Wait()
	_ = server.Close()
	log.Println("✅ evalserver stopped")
}

// runSearchClient stands in for one MCTS search thread: it repeatedly
// encodes a random board and blocks on Evaluate, exactly the access
// pattern the coordinator is built to batch.
func runSearchClient(id int, factory *dualnet.Factory, side int, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	client := factory.NewClient(dualnet.Counted)
	defer client.Close()

	rng := rand.New(rand.NewSource(int64(id) + 1))
	for {
		select {
		case <-stop:
			return
		default:
		}

		batch := 1 + rng.Intn(3)
		vecs := make([]dualnet.BoardFeatureVec, batch)
		for i := range vecs {
			vecs[i] = features.NewFeatureVec(side)
			features.Encode(nil, side, features.Black, vecs[i])
		}

		if _, err := client.Evaluate(vecs); err != nil {
			if err == dualnet.ErrShutdown {
				return
			}
			log.Printf("⚠️  client %d evaluate failed: %v", id, err)
			return
		}
	}
}

func dashboardLoop(modelID string, stats func() dualnet.Stats, mon devicehealth.Monitor, b *observe.Broadcaster, stop <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.Broadcast(observe.Snapshot(modelID, stats(), mon))
		}
	}
}
