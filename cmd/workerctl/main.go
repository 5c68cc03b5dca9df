// Command workerctl reports extraction outcomes over the worker gRPC API.
//
//	workerctl [-a addr] [-t token] processing <processId>
//	workerctl [-a addr] [-t token] completed  <processId> <data.json>
//	workerctl [-a addr] [-t token] failed     <processId> [message]
//	workerctl [-a addr] [-t token] not-a-cv   <processId>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/ingestkeeper/internal/workerapi"
	"github.com/dmitrijs2005/ingestkeeper/internal/workerclient"
	"github.com/joho/godotenv"
)

type options struct {
	Addr    string        `env:"GRPC_ADDR" envDefault:"localhost:50051"`
	Token   string        `env:"WORKER_TOKEN"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type command struct {
	status    string
	processID string
	arg       string
}

func parseArgs(args []string, opts *options) (*command, error) {
	fs := flag.NewFlagSet("workerctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Addr, "a", opts.Addr, "worker API address")
	fs.StringVar(&opts.Token, "t", opts.Token, "worker token")
	fs.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "request timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) < 2 {
		return nil, errors.New("usage: workerctl [-a addr] [-t token] <processing|completed|failed|not-a-cv> <processId> [arg]")
	}

	cmd := &command{status: rest[0], processID: rest[1]}
	if len(rest) > 2 {
		cmd.arg = strings.Join(rest[2:], " ")
	}

	switch cmd.status {
	case "processing", "not-a-cv", "failed":
	case "completed":
		if cmd.arg == "" {
			return nil, errors.New("completed needs a JSON data file")
		}
	default:
		return nil, fmt.Errorf("unknown status %q", cmd.status)
	}
	return cmd, nil
}

func send(ctx context.Context, c *workerclient.Client, cmd *command) (*workerapi.ReportOutcomeResponse, error) {
	switch cmd.status {
	case "processing":
		return c.Processing(ctx, cmd.processID)
	case "not-a-cv":
		return c.NotACV(ctx, cmd.processID)
	case "failed":
		return c.Failed(ctx, cmd.processID, cmd.arg)
	default:
		data, err := os.ReadFile(cmd.arg)
		if err != nil {
			return nil, err
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s is not valid JSON", cmd.arg)
		}
		return c.Completed(ctx, cmd.processID, data)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var opts options
	if err := env.ParseWithOptions(&opts, env.Options{Prefix: "INGESTKEEPER_"}); err != nil {
		return err
	}

	cmd, err := parseArgs(args, &opts)
	if err != nil {
		return err
	}

	c, err := workerclient.New(opts.Addr, opts.Token)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	resp, err := send(ctx, c, cmd)
	if err != nil {
		return err
	}

	suffix := ""
	if resp.Duplicate {
		suffix = " (duplicate)"
	}
	fmt.Fprintf(out, "%s %s%s\n", resp.ProcessID, resp.Status, suffix)
	return nil
}

func main() {
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}
