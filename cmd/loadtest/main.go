// Command loadtest benchmarks the batching coordinator in-process.
// Unlike the teacher's scripts/loadtest.go, which drives a remote gRPC
// router over the network, this core exposes no wire protocol of its own
// (spec.md §6) — the coordinator is a library, so the load generator
// links against it directly and reports the same latency/throughput
// shape the teacher's tool does.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kunal/dualnet-batcher/pkg/backend"
	"github.com/kunal/dualnet-batcher/pkg/config"
	"github.com/kunal/dualnet-batcher/pkg/devicehealth"
	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"github.com/kunal/dualnet-batcher/pkg/features"
)

func main() {
	engine := flag.String("engine", "lite", "backend engine: fake, lite, trt, tf, remote")
	batchSize := flag.Int("batch-size", 32, "coordinator BATCH_SIZE")
	concurrency := flag.Int("concurrency", 50, "number of concurrent client goroutines")
	duration := flag.Duration("duration", 10*time.Second, "test duration")
	side := flag.Int("board-side", 9, "board side length")
	remoteAddr := flag.String("remote-addr", "localhost:50051", "comma-separated address list for -engine=remote")
	useNVML := flag.String("use-nvml", "auto", "auto, true, or false")
	flag.Parse()

	log.Printf("🚀 load test starting: engine=%s batch_size=%d concurrency=%d duration=%v",
		*engine, *batchSize, *concurrency, *duration)

	mon, err := devicehealth.New(*useNVML)
	if err != nil {
		log.Fatalf("❌ device health init failed: %v", err)
	}
	defer mon.Close()

	be, err := backend.Build(backend.BuildOptions{
		Engine:      *engine,
		BoardSide:   *side,
		RemoteAddrs: config.EndpointList(*remoteAddr),
	}, mon)
	if err != nil {
		log.Fatalf("❌ backend construction failed: %v", err)
	}

	factory := dualnet.NewFactory(be, *batchSize)
	defer factory.Close()

	var (
		totalRequests atomic.Int64
		totalErrors   atomic.Int64
		mu            sync.Mutex
		latencies     []time.Duration
	)

	stop := make(chan struct{})
	time.AfterFunc(*duration, func() { close(stop) })

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			client := factory.NewClient(dualnet.Counted)
			defer client.Close()

			rng := rand.New(rand.NewSource(int64(clientID) + 1))
			for {
				select {
				case <-stop:
					return
				default:
				}

				n := 1 + rng.Intn(4)
				vecs := make([]dualnet.BoardFeatureVec, n)
				for j := range vecs {
					vecs[j] = features.NewFeatureVec(*side)
					features.Encode(nil, *side, features.Black, vecs[j])
				}

				reqStart := time.Now()
				_, err := client.Evaluate(vecs)
				if err != nil {
					totalErrors.Add(1)
					if err == dualnet.ErrShutdown {
						return
					}
					continue
				}
				elapsed := time.Since(reqStart)
				totalRequests.Add(1)

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	mu.Lock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	mu.Unlock()

	total := totalRequests.Load()
	errs := totalErrors.Load()
	throughput := float64(total) / elapsed.Seconds()
	stats := factory.Stats()

	fmt.Println("\n═══════════════════════════════════════════════════")
	fmt.Println("   🏁 LOAD TEST RESULTS")
	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Printf("   Duration:      %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Concurrency:   %d\n", *concurrency)
	fmt.Printf("   Total Reqs:    %d\n", total)
	fmt.Printf("   Errors:        %d\n", errs)
	fmt.Printf("   Throughput:    %.1f req/sec\n", throughput)
	fmt.Printf("   Batches Run:   %d\n", stats.NumRuns)
	if stats.NumRuns > 0 {
		fmt.Printf("   Avg Batch:     %.2f\n", float64(stats.RunCounter)/float64(stats.NumRuns))
	}
	if len(latencies) > 0 {
		fmt.Println()
		fmt.Println("   📊 Latency Percentiles:")
		fmt.Printf("      p50:  %v\n", latencies[len(latencies)*50/100])
		fmt.Printf("      p95:  %v\n", latencies[len(latencies)*95/100])
		fmt.Printf("      p99:  %v\n", latencies[len(latencies)*99/100])
		fmt.Printf("      max:  %v\n", latencies[len(latencies)-1])
	}
	fmt.Println("═══════════════════════════════════════════════════")
}
