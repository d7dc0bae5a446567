package backend

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kunal/dualnet-batcher/pkg/dualnet"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// runRequest/runResponse are the wire messages for the Remote backend's
// single RPC method, carried as JSON via jsonCodec (see jsoncodec.go)
// instead of protoc-generated types.
type runRequest struct {
	Batch [][]float32 `json:"batch"`
}

type runResponse struct {
	Policies [][]float32 `json:"policies"`
	Values   []float32   `json:"values"`
	ModelID  string      `json:"model_id"`
	Error    string      `json:"error,omitempty"`
}

// Remote is a Backend that forwards batches to an out-of-process
// inference server over gRPC, grounded on the connection-setup pattern
// in the teacher's Registry.Connect but collapsed to a single endpoint
// since the coordinator already does the fan-in the teacher's router
// does across many workers.
type Remote struct {
	addr string
	conn *grpc.ClientConn
}

const remoteRunMethod = "/dualnet.Backend/Run"

// NewRemote dials addr. The connection is lazy (grpc.NewClient does not
// block on the handshake), matching the teacher's registry setup.
func NewRemote(addr string) (*Remote, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dualnet: dial remote backend %s: %w", addr, err)
	}
	log.Printf("🔌 remote backend dialed %s", addr)
	return &Remote{addr: addr, conn: conn}, nil
}

func (r *Remote) ModelID() string { return "remote:" + r.addr }

func (r *Remote) Run(batch []dualnet.BoardFeatureVec) (dualnet.Result, error) {
	req := &runRequest{Batch: make([][]float32, len(batch))}
	for i, v := range batch {
		req.Batch[i] = v
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp := &runResponse{}
	if err := r.conn.Invoke(ctx, remoteRunMethod, req, resp); err != nil {
		return dualnet.Result{}, fmt.Errorf("dualnet: remote backend %s: %w", r.addr, err)
	}
	if resp.Error != "" {
		return dualnet.Result{}, fmt.Errorf("dualnet: remote backend %s reported: %s", r.addr, resp.Error)
	}

	policies := make([]dualnet.Policy, len(resp.Policies))
	for i, p := range resp.Policies {
		policies[i] = p
	}
	return dualnet.Result{Policies: policies, Values: resp.Values, ModelID: resp.ModelID}, nil
}

func (r *Remote) Close() error {
	return r.conn.Close()
}
