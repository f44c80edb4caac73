package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"churn-model-service/internal/core/domain"
	"churn-model-service/internal/core/ports/output"
	"churn-model-service/internal/core/services"
)

// env is what every command operates on.
type env struct {
	registry ports.ArtifactRegistry
	training *services.TrainingService
	out      io.Writer
	errOut   io.Writer
}

func (e *env) printJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(e.errOut, "encode output: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (e *env) fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(e.errOut, format+"\n", args...)
	return subcommands.ExitFailure
}

// ============================================================================
// list
// ============================================================================

type listCmd struct {
	env    *env
	asJSON bool
}

var _ subcommands.Command = &listCmd{}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list every registry entry, oldest first" }
func (*listCmd) Usage() string    { return "list [-json]\n" }

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
}

func (c *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	entries, err := c.env.registry.List(ctx)
	if err != nil {
		return c.env.fail("list entries: %v", err)
	}
	if c.asJSON {
		return c.env.printJSON(entries)
	}

	current := ""
	if cur, err := c.env.registry.LoadCurrent(ctx); err == nil {
		current = cur.Manifest.Entry
	}

	tw := tabwriter.NewWriter(c.env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tKIND\tROC_AUC\tCREATED\tCURRENT")
	for _, e := range entries {
		mark := ""
		if e.Name == current {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%s\t%s\n", e.Name, e.Kind, e.Metrics[domain.MetricROCAUC], e.CreatedAt.Format("2006-01-02 15:04:05"), mark)
	}
	if err := tw.Flush(); err != nil {
		return c.env.fail("write output: %v", err)
	}
	return subcommands.ExitSuccess
}

// ============================================================================
// current
// ============================================================================

type currentCmd struct {
	env *env
}

var _ subcommands.Command = &currentCmd{}

func (*currentCmd) Name() string             { return "current" }
func (*currentCmd) Synopsis() string         { return "show the manifest and metrics of the promoted model" }
func (*currentCmd) Usage() string            { return "current\n" }
func (*currentCmd) SetFlags(f *flag.FlagSet) {}

func (c *currentCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cur, err := c.env.registry.LoadCurrent(ctx)
	if errors.Is(err, domain.ErrCurrentNotFound) {
		return c.env.fail("no model has been promoted yet")
	}
	if err != nil {
		return c.env.fail("load current model: %v", err)
	}
	return c.env.printJSON(map[string]any{
		"manifest": cur.Manifest,
		"metrics":  cur.Metrics,
		"schema":   cur.Schema.Columns(),
		"path":     cur.Path,
	})
}

// ============================================================================
// promote
// ============================================================================

type promoteCmd struct {
	env   *env
	entry string
}

var _ subcommands.Command = &promoteCmd{}

func (*promoteCmd) Name() string     { return "promote" }
func (*promoteCmd) Synopsis() string { return "make an existing entry the current model (rollback)" }
func (*promoteCmd) Usage() string    { return "promote -entry <kind>_<run id>\n" }

func (c *promoteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.entry, "entry", "", "registry entry to promote")
}

func (c *promoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.entry == "" {
		fmt.Fprint(c.env.errOut, c.Usage())
		return subcommands.ExitUsageError
	}
	entry, err := c.env.training.Promote(ctx, c.entry)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return c.env.fail("entry %q not found", c.entry)
	}
	if err != nil {
		return c.env.fail("promote %s: %v", c.entry, err)
	}
	fmt.Fprintf(c.env.out, "promoted %s\n", entry.Name)
	return subcommands.ExitSuccess
}

// ============================================================================
// runs
// ============================================================================

type runsCmd struct {
	env    *env
	limit  int
	asJSON bool
}

var _ subcommands.Command = &runsCmd{}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "show recent training runs, newest first" }
func (*runsCmd) Usage() string    { return "runs [-limit n] [-json]\n" }

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 20, "maximum number of runs")
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
}

func (c *runsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	runs, err := c.env.training.History(ctx, c.limit)
	if err != nil {
		return c.env.fail("list runs: %v", err)
	}
	if c.asJSON {
		if runs == nil {
			runs = []*domain.TrainingRun{}
		}
		return c.env.printJSON(runs)
	}

	tw := tabwriter.NewWriter(c.env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tBEST\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.Status, r.BestEntry, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Error)
	}
	if err := tw.Flush(); err != nil {
		return c.env.fail("write output: %v", err)
	}
	return subcommands.ExitSuccess
}
