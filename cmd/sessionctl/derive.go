package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/wesm/sessionctl/internal/analysis"
	"github.com/wesm/sessionctl/internal/config"
	"github.com/wesm/sessionctl/internal/derive"
)

func runTrim(args []string) int {
	var (
		tools      stringSlice
		threshold  int
		policy     string
		assistantN int
	)
	fs, err := parseFlags("trim", args, func(fs *flag.FlagSet) {
		fs.Var(&tools, "tool", "Tool name to target (repeatable; default all)")
		fs.IntVar(&threshold, "threshold", 4000, "Character threshold for truncation")
		fs.StringVar(&policy, "assistant-policy", "none", "none|first_n|all_except_last_n")
		fs.IntVar(&assistantN, "assistant-n", 0, "N for the chosen assistant policy")
	})
	if err != nil {
		return exitCodeFor(err)
	}
	if fs.NArg() < 1 {
		fmt.Println("usage: sessionctl trim <session> [flags]")
		return 1
	}

	app, err := newAppContext()
	if err != nil {
		return exitCodeFor(err)
	}
	sess, err := resolveArg(app, fs.Arg(0))
	if err != nil {
		return exitCodeFor(err)
	}

	result, err := derive.Trim(sess, derive.TrimOptions{
		ToolNames:       tools,
		Threshold:       threshold,
		AssistantPolicy: derive.AssistantPolicy(policy),
		AssistantN:      assistantN,
	})
	if err != nil {
		return exitCodeFor(err)
	}

	fmt.Printf("%s %s\n", color.GreenString("trimmed:"), result.OutputPath)
	fmt.Printf("  tools trimmed:      %d\n", result.Stats.ToolsTrimmed)
	fmt.Printf("  assistants trimmed: %d\n", result.Stats.AssistantsTrimmed)
	fmt.Printf("  chars saved:        %d (~%d tokens)\n", result.Stats.CharsSaved, result.Stats.EstTokensSaved)
	return 0
}

func runSmartTrim(args []string) int {
	var (
		instructions string
		chunkTimeout int
	)
	fs, err := parseFlags("smart-trim", args, func(fs *flag.FlagSet) {
		config.RegisterTrimFlags(fs)
		fs.StringVar(&instructions, "instructions", "", "Extra instructions appended to the analysis prompt")
		fs.IntVar(&chunkTimeout, "chunk-timeout", 60, "Per-chunk analysis timeout, in seconds")
	})
	if err != nil {
		return exitCodeFor(err)
	}
	if fs.NArg() < 1 {
		fmt.Println("usage: sessionctl smart-trim <session> [flags]")
		return 1
	}

	app, err := newAppContext()
	if err != nil {
		return exitCodeFor(err)
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return exitCodeFor(err)
	}
	sess, err := resolveArg(app, fs.Arg(0))
	if err != nil {
		return exitCodeFor(err)
	}

	worker, analyzedBy := buildWorker(&cfg)
	stop := onInterrupt()
	defer stop()

	result, err := derive.SmartTrim(context.Background(), sess, derive.SmartTrimOptions{
		Worker:       worker,
		ChunkSize:    cfg.ChunkSize,
		Threshold:    cfg.Threshold,
		Instructions: instructions,
		ChunkTimeout: time.Duration(chunkTimeout) * time.Second,
		AnalyzedBy:   analyzedBy,
	})
	if err != nil {
		return exitCodeFor(err)
	}
	if result.AlreadyOptimal {
		fmt.Println("Already optimal: no lines crossed the trim threshold.")
		return 0
	}

	fmt.Printf("%s %s\n", color.GreenString("smart-trimmed:"), result.OutputPath)
	fmt.Printf("  lines trimmed: %d\n", result.Stats.ToolsTrimmed)
	fmt.Printf("  chars saved:   %d (~%d tokens)\n", result.Stats.CharsSaved, result.Stats.EstTokensSaved)
	return 0
}

// buildWorker selects the Analysis Pipeline's execution mode per
// §4.5: the in-process SDK client by default, or a subprocess CLI
// worker when cfg.WorkerMode requests it.
func buildWorker(cfg *config.Config) (analysis.Worker, string) {
	if cfg.WorkerMode == config.WorkerModeCLI && cfg.AnalysisCLITemplate != "" {
		return analysis.NewCLIWorker(cfg.AnalysisCLITemplate), cfg.AnalysisCLITemplate
	}
	return analysis.NewSDKWorker(cfg.SubagentModel, cfg.AnthropicAPIKey, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), cfg.SubagentModel
}

func runClone(args []string) int {
	fs, err := parseFlags("clone", args, nil)
	if err != nil {
		return exitCodeFor(err)
	}
	if fs.NArg() < 1 {
		fmt.Println("usage: sessionctl clone <session>")
		return 1
	}

	app, err := newAppContext()
	if err != nil {
		return exitCodeFor(err)
	}
	sess, err := resolveArg(app, fs.Arg(0))
	if err != nil {
		return exitCodeFor(err)
	}

	result, err := derive.Clone(sess)
	if err != nil {
		return exitCodeFor(err)
	}
	fmt.Printf("%s %s\n", color.GreenString("cloned:"), result.OutputPath)
	return 0
}

func runRepair(args []string) int {
	fs, err := parseFlags("repair", args, nil)
	if err != nil {
		return exitCodeFor(err)
	}
	if fs.NArg() < 1 {
		fmt.Println("usage: sessionctl repair <path>")
		return 1
	}

	result, err := derive.Repair(fs.Arg(0))
	if err != nil {
		return exitCodeFor(err)
	}
	if result.AlreadyClean {
		fmt.Println("Already clean: filename and embedded identifiers agree.")
		return 0
	}
	fmt.Printf("%s %s (canonical id %s, %d lines fixed)\n",
		color.GreenString("repaired:"), result.Path, result.CanonicalID, result.LinesFixed)
	return 0
}
