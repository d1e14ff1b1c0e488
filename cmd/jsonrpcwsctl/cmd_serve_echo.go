package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kuuji/jsonrpcws/jsonrpc"
)

var serveEchoListenAddr string

var serveEchoCmd = &cobra.Command{
	Use:   "serve-echo",
	Short: "Run a trivial connect/ping-aware JSON-RPC server for local testing",
	RunE:  runServeEcho,
}

func init() {
	serveEchoCmd.Flags().StringVar(&serveEchoListenAddr, "addr", "127.0.0.1:8765", "address to listen on")
}

// echoHandler implements http.Handler. It accepts a WebSocket connection,
// answers "connect" with the sessionId it carries (or a fresh one if it
// carries none) and "ping" with an empty
// result, and echoes any other request's params back as the result —
// enough surface to exercise a jsonrpcws client's lifecycle end to end
// without standing up a production server.
type echoHandler struct{}

func (echoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		globalLogger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	var sessionID string

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		req, err := jsonrpc.UnmarshalRequest(data)
		if err != nil {
			globalLogger.Warn("dropping malformed frame", "error", err)
			continue
		}

		if req.IsNotification() {
			continue
		}

		resp := &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: *req.ID}

		switch req.Method {
		case jsonrpc.MethodConnect:
			if req.SessionID == "" {
				sessionID = uuid.NewString()
			} else {
				sessionID = req.SessionID
			}
			resp.SessionID = sessionID
		case jsonrpc.MethodPing:
			resp.SessionID = sessionID
		default:
			resp.SessionID = sessionID
			if len(req.Params) > 0 {
				resp.Result = req.Params
			}
		}

		out, err := jsonrpc.MarshalResponse(resp)
		if err != nil {
			globalLogger.Error("marshaling response", "error", err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			return
		}
	}
}

func runServeEcho(cmd *cobra.Command, args []string) error {
	srv := &http.Server{
		Addr:    serveEchoListenAddr,
		Handler: echoHandler{},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	fmt.Fprintf(os.Stdout, "listening on %s\n", serveEchoListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
