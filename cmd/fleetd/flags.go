package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// newFlagSet returns a flag set for a subcommand whose usage and
// parse errors go to stderr.
func newFlagSet(name, synopsis string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: fleetd %s %s\n", name, synopsis)
		if fs.HasFlags() {
			fmt.Fprintf(stderr, "\nFlags:\n%s", fs.FlagUsages())
		}
	}
	return fs
}

// parseFlags parses args and reports whether help was requested, in
// which case the caller returns without error.
func parseFlags(fs *pflag.FlagSet, args []string) (help bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// providerFlags registers the --provider and --model pair most model
// commands accept.
func providerFlags(fs *pflag.FlagSet) (provider, model *string) {
	provider = fs.StringP("provider", "p", "", "provider (openai, anthropic, gemini, ollama, deepseek, openrouter)")
	model = fs.StringP("model", "m", "", "model id; the provider is inferred when --provider is unset")
	return provider, model
}
