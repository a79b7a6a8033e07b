package provider

import (
	"crypto/tls"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCProvider holds a gRPC connection to the node. Scans go over
// Tendermint JSON-RPC; the connection state is reported by the health
// endpoint so operators see a node whose gRPC side went away.
type GRPCProvider struct {
	*BaseProvider
	endpoint string
	conn     *grpc.ClientConn
}

var _ Provider = (*GRPCProvider)(nil)

// NewGRPCProvider creates a new gRPC provider. The connection is
// established lazily in the background.
func NewGRPCProvider(name, endpoint string) (*GRPCProvider, error) {
	target := endpoint
	var opts []grpc.DialOption

	// Check scheme
	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	conn.Connect()

	return &GRPCProvider{
		BaseProvider: NewBaseProvider(name),
		endpoint:     endpoint,
		conn:         conn,
	}, nil
}

// Conn returns the underlying gRPC connection.
func (p *GRPCProvider) Conn() *grpc.ClientConn {
	return p.conn
}

// State returns the current connectivity state.
func (p *GRPCProvider) State() connectivity.State {
	return p.conn.GetState()
}

// IsAvailable reports whether the connection is usable. An idle connection
// counts as available; it reconnects on the next call.
func (p *GRPCProvider) IsAvailable() bool {
	switch p.conn.GetState() {
	case connectivity.Ready, connectivity.Idle, connectivity.Connecting:
		return true
	}
	return false
}

// Close cleans up resources.
func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}
