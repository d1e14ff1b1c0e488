package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kuuji/jsonrpcws/rpc"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect and print connection lifecycle events until interrupted",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	listener := &rpc.ConnectionListener{
		OnConnected: func() {
			fmt.Fprintln(os.Stdout, "connected")
		},
		OnDisconnected: func(reason string) {
			fmt.Fprintf(os.Stdout, "disconnected: %s\n", reason)
		},
		OnConnectionFailed: func(reason string) {
			fmt.Fprintf(os.Stdout, "connection failed: %s\n", reason)
		},
		OnReconnecting: func() {
			fmt.Fprintln(os.Stdout, "reconnecting")
		},
		OnReconnected: func(sameServer bool) {
			fmt.Fprintf(os.Stdout, "reconnected (same session: %v)\n", sameServer)
		},
	}

	client, err := buildClient(rpc.WithListener(listener))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer client.Close()

	<-ctx.Done()
	fmt.Fprintln(os.Stdout, "shutting down")
	return nil
}
