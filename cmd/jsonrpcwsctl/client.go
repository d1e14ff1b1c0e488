package main

import (
	"fmt"

	"github.com/kuuji/jsonrpcws/rpc"
	"github.com/kuuji/jsonrpcws/rpcconfig"
	"github.com/kuuji/jsonrpcws/transport"
)

// buildClient loads the config file (if any), applies --server/--config
// flag overrides, and constructs a Client wired to a transport.Transport.
// It does not call Connect; callers decide when to dial.
func buildClient(opts ...rpc.Option) (*rpc.Client, error) {
	path := globalConfigPath
	if path == "" {
		path = rpcconfig.DefaultConfigPath
	}

	file, err := rpcconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	serverURL := file.ServerURL
	if globalServerURL != "" {
		serverURL = globalServerURL
	}
	if serverURL == "" {
		return nil, fmt.Errorf("no server URL: pass --server or set server_url in %s", path)
	}

	cfg, err := file.RPCConfig()
	if err != nil {
		return nil, fmt.Errorf("applying config: %w", err)
	}

	t := transport.New(transport.Config{
		ServerURL: serverURL,
		Logger:    globalLogger,
	})

	allOpts := append([]rpc.Option{
		rpc.WithConfig(cfg),
		rpc.WithLogger(globalLogger),
	}, opts...)

	return rpc.New(t, allOpts...), nil
}
