package rpc

import (
	"context"
	"time"
)

// staleBlockThreshold is how many blocks an endpoint may lag behind the best
// one before it is reported unhealthy.
const staleBlockThreshold = 3

const probeTimeout = 5 * time.Second

// ProbeResult is the outcome of probing one endpoint.
type ProbeResult struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Healthy     bool
	Err         error
}

// Probe measures eth_blockNumber latency on ep. The call goes through the
// endpoint's limiter like any other request.
func Probe(ctx context.Context, ep *Endpoint) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	block, err := ep.BlockNumber(ctx)
	return ProbeResult{
		URL:         ep.URL(),
		Latency:     time.Since(start),
		BlockNumber: block,
		Healthy:     err == nil,
		Err:         err,
	}
}
