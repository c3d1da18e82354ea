package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph"
	"github.com/agentgraph/agentgraph/config"
	"github.com/agentgraph/agentgraph/engine"
	"github.com/agentgraph/agentgraph/graph"
)

// Injected at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("agentgraph %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// inputFlags collects repeated --input key=value pairs.
type inputFlags map[string]any

func (f inputFlags) String() string { return fmt.Sprintf("%v", map[string]any(f)) }

func (f inputFlags) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("input %q is not key=value", value)
	}
	f[key] = val
	return nil
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	graphPath := fs.String("graph", "", "path to graph definition (json or yaml)")
	sessionID := fs.String("session", "", "session id for session-scoped memory")
	userID := fs.String("user", "", "user id for user-scoped memory and ACL checks")
	timeout := fs.Duration("timeout", 10*time.Minute, "abort the run after this long")
	inputs := inputFlags{}
	fs.Var(inputs, "input", "seed context entry, key=value (repeatable)")
	fs.Parse(args)

	if *graphPath == "" {
		fatal("run requires --graph")
	}

	g, err := loadGraph(*graphPath)
	if err != nil {
		fatal("load graph: %v", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	rt, err := agentgraph.New(agentgraph.WithConfig(cfg))
	if err != nil {
		fatal("assemble runtime: %v", err)
	}
	logger := rt.Logger
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(ctx); err != nil {
			logger.Warn("runtime shutdown", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	run, err := rt.Engine.StartRun(ctx, g, engine.StartOptions{
		Input:     inputs,
		SessionID: *sessionID,
		UserID:    *userID,
	})
	if err != nil {
		fatal("start run: %v", err)
	}
	logger.Info("run started",
		zap.String("run_id", run.ID),
		zap.String("graph", g.Name))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-run.Done():
			printSnapshot(rt.Engine, run.ID)
			return
		case <-ctx.Done():
			logger.Warn("deadline reached, cancelling run", zap.String("run_id", run.ID))
			_ = rt.Engine.CancelRun(run.ID)
			<-run.Done()
			printSnapshot(rt.Engine, run.ID)
			os.Exit(1)
		case sig := <-sigCh:
			logger.Warn("signal received, cancelling run", zap.String("signal", sig.String()))
			_ = rt.Engine.CancelRun(run.ID)
			<-run.Done()
			printSnapshot(rt.Engine, run.ID)
			os.Exit(1)
		}
	}
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	graphPath := fs.String("graph", "", "path to graph definition (json or yaml)")
	fs.Parse(args)

	if *graphPath == "" {
		fatal("validate requires --graph")
	}
	g, err := loadGraph(*graphPath)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("%s: %d nodes, valid\n", g.Name, g.Len())
}

func loadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return graph.ParseYAML(data)
	default:
		return graph.ParseJSON(data)
	}
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

func printSnapshot(eng *engine.Engine, runID string) {
	snapshot, err := eng.GetRunStatus(runID)
	if err != nil {
		fatal("read run status: %v", err)
	}
	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		fatal("encode run status: %v", err)
	}
	fmt.Println(string(out))
	if snapshot.Status != engine.StatusCompleted {
		os.Exit(1)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`agentgraph - multi-agent workflow orchestration

Usage:
  agentgraph run --graph workflow.yaml [--config config.yaml] [--input k=v ...]
  agentgraph validate --graph workflow.yaml
  agentgraph version`)
}
