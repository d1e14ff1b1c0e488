package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	callParamsJSON string
	callTimeout    time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <method>",
	Short: "Send one JSON-RPC request and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().StringVar(&callParamsJSON, "params", "", "JSON-encoded params object")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "overall timeout for connect + call")
}

func runCall(cmd *cobra.Command, args []string) error {
	method := args[0]

	var params any
	if callParamsJSON != "" {
		if err := json.Unmarshal([]byte(callParamsJSON), &params); err != nil {
			return fmt.Errorf("parsing --params: %w", err)
		}
	}

	client, err := buildClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer client.Close()

	resp, err := client.SendRequest(ctx, method, params)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("server error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	if len(resp.Result) == 0 {
		fmt.Fprintln(os.Stdout, "null")
		return nil
	}

	var pretty json.RawMessage
	if err := json.Unmarshal(resp.Result, &pretty); err == nil {
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err == nil {
			fmt.Fprintln(os.Stdout, string(out))
			return nil
		}
	}
	fmt.Fprintln(os.Stdout, string(resp.Result))
	return nil
}
