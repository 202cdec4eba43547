package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fleetchat/fleetd/internal/contacts"
	"github.com/fleetchat/fleetd/internal/embeddings"
	"github.com/fleetchat/fleetd/internal/llm"
	"github.com/fleetchat/fleetd/internal/usage"
)

// runContacts searches the contact directory, or exports it as vCard.
// --similar ranks contacts by embedding similarity, which needs a
// provider with embeddings.
func runContacts(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("contacts", "[flags] [name]", stderr)
	dept := fs.StringP("department", "d", "", "filter by department")
	export := fs.Bool("vcard", false, "write the directory as vCard")
	similar := fs.Int("similar", 0, "rank the top N contacts by semantic similarity to the query")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")

	if *similar > 0 {
		return similarContacts(ctx, stdout, stderr, g, query, *similar)
	}

	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(stderr, slog.LevelWarn)
	if err != nil {
		return err
	}
	dir, err := contacts.Open(cfg.Resolver().Resolve(cfg.Contacts.VCard), logger)
	if err != nil {
		return err
	}

	if *export {
		return dir.ExportVCard(stdout)
	}

	found := dir.Lookup(query, *dept)
	if g.output == outputJSON {
		return writeJSON(stdout, found)
	}
	if len(found) == 0 {
		fmt.Fprintln(stdout, "no matching contacts")
		return nil
	}
	for _, c := range found {
		printContact(stdout, c)
	}
	return nil
}

func similarContacts(ctx context.Context, stdout, stderr io.Writer, g globals, query string, k int) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("contacts: --similar needs a query")
	}
	a, err := newApp(ctx, stderr, g.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	dir, err := contacts.Open(a.resolve(a.cfg.Contacts.VCard), a.logger)
	if err != nil {
		return err
	}
	embedder := embeddings.EmbedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return a.gateway.EmbedBatch(ctx, texts, llm.Options{})
	})
	found, scores, err := dir.Similar(ctx, embedder, query, k)
	if err != nil {
		return err
	}
	if g.output == outputJSON {
		type scored struct {
			contacts.Contact
			Score float32 `json:"score"`
		}
		out := make([]scored, len(found))
		for i, c := range found {
			out[i] = scored{Contact: c, Score: scores[i]}
		}
		return writeJSON(stdout, out)
	}
	for i, c := range found {
		fmt.Fprintf(stdout, "%.3f  ", scores[i])
		printContact(stdout, c)
	}
	return nil
}

func printContact(w io.Writer, c contacts.Contact) {
	fmt.Fprintf(w, "%-20s %-28s %-12s %-28s %s\n", c.Name, c.Title, c.Department, c.Email, c.Phone)
}

// usageReport is the JSON form of runUsage's output.
type usageReport struct {
	Start       time.Time                 `json:"start"`
	End         time.Time                 `json:"end"`
	Total       *usage.Summary            `json:"total"`
	ByModel     map[string]*usage.Summary `json:"by_model"`
	ByProvider  map[string]*usage.Summary `json:"by_provider"`
	ByOperation map[string]*usage.Summary `json:"by_operation"`
	BySession   map[string]*usage.Summary `json:"by_session,omitempty"`
	Daily       []usage.DaySummary        `json:"daily,omitempty"`
	Recent      []usage.Record            `json:"recent,omitempty"`
}

// runUsage summarizes recorded token usage and cost.
func runUsage(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlagSet("usage", "[flags]", stderr)
	days := fs.Int("days", 7, "report the last N days")
	bySession := fs.Bool("sessions", false, "include a per-session breakdown")
	daily := fs.Bool("daily", false, "include a per-day breakdown")
	recent := fs.Int("recent", 0, "also list the last N calls")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	if *days < 1 {
		return fmt.Errorf("usage: --days must be at least 1, got %d", *days)
	}
	if *recent < 0 {
		return fmt.Errorf("usage: --recent must not be negative, got %d", *recent)
	}

	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	path := cfg.Resolver().Resolve(cfg.Usage.Path)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no usage recorded yet (%s does not exist)", path)
	}
	store, err := usage.NewStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	end := time.Now()
	start := end.AddDate(0, 0, -*days)
	rep := usageReport{Start: start, End: end}
	if rep.Total, err = store.Summary(start, end); err != nil {
		return err
	}
	if rep.ByModel, err = store.SummaryByModel(start, end); err != nil {
		return err
	}
	if rep.ByProvider, err = store.SummaryByProvider(start, end); err != nil {
		return err
	}
	if rep.ByOperation, err = store.SummaryByOperation(start, end); err != nil {
		return err
	}
	if *bySession {
		if rep.BySession, err = store.SummaryBySession(start, end); err != nil {
			return err
		}
	}
	if *daily {
		if rep.Daily, err = store.Daily(start, end); err != nil {
			return err
		}
	}
	if *recent > 0 {
		if rep.Recent, err = store.Recent(ctx, *recent); err != nil {
			return err
		}
	}

	if g.output == outputJSON {
		return writeJSON(stdout, rep)
	}
	fmt.Fprintf(stdout, "Last %d day(s): %d calls, %d in / %d out tokens, $%.4f\n",
		*days, rep.Total.TotalRecords, rep.Total.TotalInputTokens, rep.Total.TotalOutputTokens, rep.Total.TotalCostUSD)
	printSummaries(stdout, "By model", rep.ByModel)
	printSummaries(stdout, "By provider", rep.ByProvider)
	printSummaries(stdout, "By operation", rep.ByOperation)
	if *bySession {
		printSummaries(stdout, "By session", rep.BySession)
	}
	if len(rep.Daily) > 0 {
		fmt.Fprintln(stdout, "\nBy day (UTC):")
		for _, d := range rep.Daily {
			fmt.Fprintf(stdout, "  %-36s %6d calls %10d in %10d out  $%.4f\n",
				d.Date, d.TotalRecords, d.TotalInputTokens, d.TotalOutputTokens, d.TotalCostUSD)
		}
	}
	if len(rep.Recent) > 0 {
		fmt.Fprintln(stdout, "\nRecent calls:")
		for _, r := range rep.Recent {
			fmt.Fprintf(stdout, "  %s  %-8s %-28s %6d in %6d out  $%.4f\n",
				r.Timestamp.Local().Format("01-02 15:04:05"), r.Operation, r.Model,
				r.InputTokens, r.OutputTokens, r.CostUSD)
		}
	}
	return nil
}

func printSummaries(w io.Writer, title string, m map[string]*usage.Summary) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys {
		s := m[k]
		name := k
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(w, "  %-36s %6d calls %10d in %10d out  $%.4f\n",
			name, s.TotalRecords, s.TotalInputTokens, s.TotalOutputTokens, s.TotalCostUSD)
	}
}
