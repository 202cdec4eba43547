package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fleetchat/fleetd/internal/embeddings"
	"github.com/fleetchat/fleetd/internal/llm"
)

// runGenerate completes a prompt without the agent pipeline.
func runGenerate(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("generate", "[flags] <prompt>", stderr)
	system := fs.String("system", "", "system prompt")
	temperature := fs.Float64P("temperature", "t", -1, "sampling temperature (default from config)")
	maxTokens := fs.Int("max-tokens", 0, "completion token limit (default from config)")
	stream := fs.Bool("stream", false, "print tokens as they arrive")
	provider, model := providerFlags(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	prompt := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(prompt) == "" {
		fs.Usage()
		return errors.New("generate: prompt required")
	}

	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	opts := options(*provider, *model)
	opts.System = *system
	opts.MaxTokens = *maxTokens
	if *temperature >= 0 {
		opts.Temperature = llm.Float(*temperature)
	}

	var c *llm.Completion
	if *stream && g.output == outputText {
		c, err = a.gateway.Stream(ctx, prompt, opts, func(tok string) {
			fmt.Fprint(stdout, tok)
		})
		if err == nil {
			fmt.Fprintln(stdout)
		}
	} else {
		c, err = a.gateway.Generate(ctx, prompt, opts)
	}
	if err != nil {
		return err
	}

	if g.output == outputJSON {
		return writeJSON(stdout, c)
	}
	if !*stream {
		fmt.Fprintln(stdout, c.Content)
	}
	fmt.Fprintf(stderr, "[%s/%s, %d in / %d out tokens]\n",
		c.Provider, c.Model, c.Usage.PromptTokens, c.Usage.CompletionTokens)
	return nil
}

// runModels lists known or live models.
func runModels(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("models", "[flags]", stderr)
	provider := fs.StringP("provider", "p", "", "only this provider (default: every configured provider)")
	live := fs.Bool("live", false, "ask the provider instead of using the built-in list")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}

	var p llm.Provider
	if *provider != "" {
		var err error
		if p, err = llm.ParseProvider(*provider); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	models, err := a.gateway.Models(ctx, p, *live)
	if err != nil {
		return err
	}
	if g.output == outputJSON {
		return writeJSON(stdout, models)
	}
	for _, m := range models {
		line := fmt.Sprintf("%-11s %-40s", m.Provider, m.ID)
		if m.ContextLength > 0 {
			line += fmt.Sprintf(" %7d ctx", m.ContextLength)
		}
		if m.Description != "" {
			line += "  " + m.Description
		}
		fmt.Fprintln(stdout, strings.TrimRight(line, " "))
	}
	return nil
}

// runTokens counts the tokens of its arguments.
func runTokens(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("tokens", "[flags] <text>", stderr)
	approx := fs.Bool("approx", false, "use the local tokenizer only")
	provider, model := providerFlags(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")

	var n int
	if *approx {
		n = llm.EstimateTokens(text)
	} else {
		a, err := newApp(ctx, stderr, g.configPath)
		if err != nil {
			return err
		}
		defer a.close()
		n = a.gateway.CountTokens(ctx, text, options(*provider, *model))
	}

	if g.output == outputJSON {
		return writeJSON(stdout, map[string]any{"tokens": n, "characters": len(text)})
	}
	fmt.Fprintln(stdout, n)
	return nil
}

// runEmbed embeds each argument. With two or more texts the pairwise
// cosine similarities are printed instead of the vectors.
func runEmbed(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("embed", "[flags] <text>...", stderr)
	provider, model := providerFlags(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	texts := fs.Args()
	if len(texts) == 0 {
		fs.Usage()
		return errors.New("embed: at least one text required")
	}

	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	vecs, err := a.gateway.EmbedBatch(ctx, texts, options(*provider, *model))
	if err != nil {
		return err
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(texts))
	}

	pairs := similarities(texts, vecs)
	if g.output == outputJSON {
		return writeJSON(stdout, map[string]any{"embeddings": vecs, "similarities": pairs})
	}
	if len(texts) == 1 {
		fmt.Fprintf(stdout, "%d dimensions: %s\n", len(vecs[0]), previewVector(vecs[0], 8))
		return nil
	}
	for _, p := range pairs {
		fmt.Fprintf(stdout, "%.4f  %q ~ %q\n", p.Score, p.A, p.B)
	}
	return nil
}

// similarity is the cosine similarity between two embedded texts.
type similarity struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float32 `json:"score"`
}

// similarities scores every pair, most similar first.
func similarities(texts []string, vecs [][]float32) []similarity {
	var out []similarity
	for i := range texts {
		for j := i + 1; j < len(texts); j++ {
			out = append(out, similarity{A: texts[i], B: texts[j], Score: embeddings.CosineSimilarity(vecs[i], vecs[j])})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

func previewVector(v []float32, n int) string {
	if len(v) < n {
		n = len(v)
	}
	parts := make([]string, n)
	for i := range n {
		parts[i] = fmt.Sprintf("%.4f", v[i])
	}
	s := "[" + strings.Join(parts, " ")
	if len(v) > n {
		s += " ..."
	}
	return s + "]"
}

// runModerate classifies its argument.
func runModerate(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("moderate", "[flags] <text>", stderr)
	provider := fs.StringP("provider", "p", "", "provider to ask")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")
	if text == "" {
		fs.Usage()
		return errors.New("moderate: text required")
	}

	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.gateway.Moderate(ctx, text, options(*provider, ""))
	if err != nil {
		return err
	}
	if g.output == outputJSON {
		return writeJSON(stdout, res)
	}
	if !res.Flagged {
		fmt.Fprintln(stdout, "not flagged")
		return nil
	}
	var flagged []string
	for cat, on := range res.Categories {
		if on {
			flagged = append(flagged, cat)
		}
	}
	sort.Strings(flagged)
	fmt.Fprintf(stdout, "flagged: %s\n", strings.Join(flagged, ", "))
	return nil
}

// runImage generates images and prints their URLs.
func runImage(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("image", "[flags] <prompt>", stderr)
	size := fs.String("size", "1024x1024", "image size")
	n := fs.IntP("count", "n", 1, "number of images")
	provider, model := providerFlags(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	prompt := strings.Join(fs.Args(), " ")
	if prompt == "" {
		fs.Usage()
		return errors.New("image: prompt required")
	}
	if *n < 1 {
		return fmt.Errorf("image: count must be at least 1, got %d", *n)
	}

	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	urls, err := a.gateway.GenerateImage(ctx, prompt, *size, *n, options(*provider, *model))
	if err != nil {
		return err
	}
	if g.output == outputJSON {
		return writeJSON(stdout, map[string]any{"urls": urls})
	}
	for _, u := range urls {
		fmt.Fprintln(stdout, u)
	}
	return nil
}

// runAnalyze asks a vision model about an image URL.
func runAnalyze(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("analyze", "[flags] <image-url> [prompt]", stderr)
	provider, model := providerFlags(fs)
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("analyze: image url required")
	}
	url := fs.Arg(0)
	prompt := strings.Join(fs.Args()[1:], " ")
	if prompt == "" {
		prompt = "Describe this image."
	}

	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	c, err := a.gateway.AnalyzeImage(ctx, url, prompt, options(*provider, *model))
	if err != nil {
		return err
	}
	if g.output == outputJSON {
		return writeJSON(stdout, c)
	}
	fmt.Fprintln(stdout, c.Content)
	return nil
}
