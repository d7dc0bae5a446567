// Command remoteworker serves a local backend engine over gRPC, so that
// other processes can point ENGINE=remote/REMOTE_ADDR at it. It is the
// server side of pkg/backend.Remote: same JSON-over-grpc wire format
// (no protobuf codegen available), same transport.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kunal/dualnet-batcher/pkg/backend"
	"github.com/kunal/dualnet-batcher/pkg/devicehealth"
	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

type runRequest struct {
	Batch [][]float32 `json:"batch"`
}

type runResponse struct {
	Policies [][]float32 `json:"policies"`
	Values   []float32   `json:"values"`
	ModelID  string      `json:"model_id"`
	Error    string      `json:"error,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// backendServer adapts a dualnet.Backend to the single hand-rolled RPC
// method the Remote client (pkg/backend/remote.go) calls.
type backendServer struct {
	be dualnet.Backend
}

func (s *backendServer) run(ctx context.Context, req *runRequest) (*runResponse, error) {
	batch := make([]dualnet.BoardFeatureVec, len(req.Batch))
	for i, v := range req.Batch {
		batch[i] = v
	}
	result, err := s.be.Run(batch)
	if err != nil {
		return &runResponse{Error: err.Error()}, nil
	}
	policies := make([][]float32, len(result.Policies))
	for i, p := range result.Policies {
		policies[i] = p
	}
	return &runResponse{Policies: policies, Values: result.Values, ModelID: result.ModelID}, nil
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(runRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*backendServer).run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/dualnet.Backend/Run"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*backendServer).run(ctx, req.(*runRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "dualnet.Backend",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dualnet/backend",
}

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	addr := flag.String("addr", ":50051", "listen address")
	engine := flag.String("engine", "lite", "local engine to serve: fake, lite, trt, tf")
	side := flag.Int("board-side", 9, "board side length")
	numGPUs := flag.Int("num-gpus", 0, "0 => auto-detect")
	modelPath := flag.String("model-path", "", "model path for engine=tf")
	useNVML := flag.String("use-nvml", "auto", "auto, true, or false")
	flag.Parse()

	mon, err := devicehealth.New(*useNVML)
	if err != nil {
		log.Fatalf("❌ device health init failed: %v", err)
	}
	defer mon.Close()

	be, err := backend.Build(backend.BuildOptions{
		Engine:    *engine,
		NumGPUs:   *numGPUs,
		BoardSide: *side,
		ModelPath: *modelPath,
	}, mon)
	if err != nil {
		log.Fatalf("❌ backend construction failed: %v", err)
	}
	defer be.Close()

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("❌ failed to listen on %s: %v", *addr, err)
	}

	server := grpc.NewServer()
	server.RegisterService(&serviceDesc, &backendServer{be: be})

	go func() {
		log.Printf("🚀 remoteworker serving %s on %s", be.ModelID(), *addr)
		if err := server.Serve(lis); err != nil {
			log.Fatalf("❌ grpc server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println()
	log.Println("🛑 shutting down remoteworker...")
	server.GracefulStop()
	log.Println("✅ remoteworker stopped")
}
