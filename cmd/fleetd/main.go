// Fleetd is a chat agent that answers with A2UI: declarative UI
// messages a client renders as native components.
//
// It talks to OpenAI, Anthropic, Gemini, DeepSeek, OpenRouter or
// Ollama, regenerates responses that fail schema validation, and
// keeps sessions in memory or SQLite. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]); without one, defaults and environment
// API keys are used.
//
// Usage:
//
//	fleetd ask <message>        One A2UI turn
//	fleetd chat                 Interactive session on stdin
//	fleetd render [file]        Validate and apply A2UI JSON offline
//	fleetd generate <prompt>    Plain completion
//	fleetd init [dir]           Write an example config
//	fleetd -o json version      Version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fleetchat/fleetd/internal/buildinfo"
	"github.com/fleetchat/fleetd/internal/config"
)

// Output formats accepted by -o.
const (
	outputText = "text"
	outputJSON = "json"
	outputSSE  = "sse"
)

// main only builds the OS environment and hands off to run, so the
// whole command can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// globals are the flags accepted before the command name.
type globals struct {
	configPath string
	output     string
}

// run is the real entry point. Command output goes to stdout; logs go
// to stderr so output stays pipeable. Global flags are parsed by hand
// so that each subcommand owns its own flag set.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var g globals
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		if command != "" {
			cmdArgs = append(cmdArgs, args[i:]...)
			break
		}
		switch {
		case args[i] == "-config" || args[i] == "--config":
			if i+1 >= len(args) {
				return fmt.Errorf("%s needs a value", args[i])
			}
			g.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			g.configPath = strings.TrimPrefix(args[i], "-config=")
		case strings.HasPrefix(args[i], "--config="):
			g.configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "-o" || args[i] == "--output":
			if i+1 >= len(args) {
				return fmt.Errorf("%s needs a value", args[i])
			}
			g.output = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			g.output = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			g.output = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			command = args[i]
		}
	}

	if g.output == "" {
		g.output = outputText
	}
	switch g.output {
	case outputText, outputJSON, outputSSE:
	default:
		return fmt.Errorf("unknown output format: %q (expected text, json or sse)", g.output)
	}
	if g.output == outputSSE && command != "ask" {
		return fmt.Errorf("-o sse is only supported by ask")
	}

	switch command {
	case "ask":
		return runAsk(ctx, stdout, stderr, g, cmdArgs)
	case "chat":
		return runChat(ctx, stdin, stdout, stderr, g, cmdArgs)
	case "render":
		return runRender(stdin, stdout, stderr, g, cmdArgs)
	case "generate":
		return runGenerate(ctx, stdout, stderr, g, cmdArgs)
	case "models":
		return runModels(ctx, stdout, stderr, g, cmdArgs)
	case "tokens":
		return runTokens(ctx, stdout, stderr, g, cmdArgs)
	case "embed":
		return runEmbed(ctx, stdout, stderr, g, cmdArgs)
	case "moderate":
		return runModerate(ctx, stdout, stderr, g, cmdArgs)
	case "image":
		return runImage(ctx, stdout, stderr, g, cmdArgs)
	case "analyze":
		return runAnalyze(ctx, stdout, stderr, g, cmdArgs)
	case "sessions":
		return runSessions(ctx, stdout, stderr, g, cmdArgs)
	case "contacts":
		return runContacts(ctx, stdout, stderr, g, cmdArgs)
	case "usage":
		return runUsage(ctx, stdout, stderr, g, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, g.output)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	d := buildinfo.Current()
	if outputFmt == outputJSON {
		return writeJSON(w, d)
	}
	fmt.Fprintln(w, buildinfo.String())
	fmt.Fprintf(w, "  %-12s %s\n", "go:", d.GoVersion)
	fmt.Fprintf(w, "  %-12s %s/%s\n", "platform:", d.OS, d.Arch)
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "fleetd - A2UI chat agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: fleetd [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  ask <message>             Send one message and print the A2UI response")
	fmt.Fprintln(w, "  chat                      Interactive session on stdin")
	fmt.Fprintln(w, "  render [file]             Validate and apply A2UI JSON offline (default: stdin)")
	fmt.Fprintln(w, "  generate <prompt>         Plain completion")
	fmt.Fprintln(w, "  models                    List models")
	fmt.Fprintln(w, "  tokens <text>             Count tokens")
	fmt.Fprintln(w, "  embed <text>...           Embed texts; two or more print pairwise similarity")
	fmt.Fprintln(w, "  moderate <text>           Classify content")
	fmt.Fprintln(w, "  image <prompt>            Generate images")
	fmt.Fprintln(w, "  analyze <url> <prompt>    Ask a vision model about an image")
	fmt.Fprintln(w, "  sessions list|show|delete Manage stored sessions")
	fmt.Fprintln(w, "  contacts [name]           Search or export the contact directory")
	fmt.Fprintln(w, "  usage                     Token usage and cost")
	fmt.Fprintln(w, "  init [dir]                Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  version                   Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>      Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt    Output format: text (default), json, or sse (ask only)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// loadConfig loads explicit, or the first config on the search path.
// With no explicit path and nothing found, defaults plus environment
// keys are used.
func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	var cfg *config.Config
	switch {
	case errors.Is(err, config.ErrNoConfig):
		cfg = config.Default()
		cfg.ResolveAPIKeys(os.Getenv)
	case err != nil:
		return nil, err
	default:
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
