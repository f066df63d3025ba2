package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/daniela2708/ganaderia/pkg/mcpquic"
)

// cmdCall is a small MCP-over-QUIC client, handy to smoke-test a TLS server:
//
//	ganaderia call -addr localhost:8420 -insecure department_ranking '{"year":2024,"top":5}'
func cmdCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	addr := fs.String("addr", "localhost:8420", "server host:port")
	insecure := fs.Bool("insecure", false, "accept self-signed certificates")
	timeout := fs.Duration("timeout", 30*time.Second, "overall timeout")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := mcpquic.NewClient(*addr, mcpquic.ClientTLSConfig(*insecure))
	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if fs.NArg() == 0 {
		res, err := c.ListTools(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list tools: %v\n", err)
			os.Exit(1)
		}
		for _, t := range res.Tools {
			fmt.Printf("%-22s %s\n", t.Name, t.Description)
		}
		return
	}

	toolArgs := map[string]any{}
	if fs.NArg() > 1 {
		if err := json.Unmarshal([]byte(fs.Arg(1)), &toolArgs); err != nil {
			fmt.Fprintf(os.Stderr, "arguments must be a JSON object: %v\n", err)
			os.Exit(2)
		}
	}
	res, err := c.CallTool(ctx, fs.Arg(0), toolArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call %s: %v\n", fs.Arg(0), err)
		os.Exit(1)
	}
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			fmt.Println(tc.Text)
		}
	}
	if res.IsError {
		os.Exit(1)
	}
}
