package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/devplan/internal/cli"
	"github.com/orizon-lang/devplan/internal/diagnostic"
	"github.com/orizon-lang/devplan/internal/planfile"
	"github.com/orizon-lang/devplan/internal/planner"
	"github.com/orizon-lang/devplan/internal/position"
)

// runner plans plan files and reports the outcome.
type runner struct {
	config *cli.Config
	logger *cli.Logger
	out    io.Writer
}

// report is the rendered outcome of planning one file.
type report struct {
	path   string
	text   string
	failed bool
}

func (r *runner) resolve(path string) string {
	if filepath.IsAbs(path) || r.config.WorkDir == "" {
		return path
	}

	return filepath.Join(r.config.WorkDir, path)
}

// planAll plans every file concurrently, each with its own planner, and
// prints the reports in argument order. It reports whether every file
// planned cleanly.
func (r *runner) planAll(ctx context.Context, paths []string) (bool, error) {
	reports := make([]report, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Jobs)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			reports[i] = r.planFile(r.resolve(path))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return false, err
	}

	ok := true

	for _, rep := range reports {
		fmt.Fprint(r.out, rep.text)

		if rep.failed {
			ok = false
		}
	}

	return ok, nil
}

func (r *runner) planFile(path string) report {
	r.logger.Info("planning %s", path)

	f, err := planfile.Load(path)
	if err != nil {
		return r.failure(path, err)
	}

	p := planner.New(f.Config)
	p.SetLogger(r.logger.Trace(filepath.Base(path) + ": "))

	plan, err := p.Plan(f.Program)
	if err != nil {
		return r.failure(path, err)
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "%s (plan %s, host %s, default %s)\n",
		path, f.Version, f.Config.HostScope(), f.Config.DefaultPrimaryScope())

	width := 0
	for _, b := range f.Bindings {
		if len(b.Name) > width {
			width = len(b.Name)
		}
	}

	for _, b := range f.Bindings {
		s, _ := plan.ScopeOf(b.Expr)
		fmt.Fprintf(&sb, "  %-*s  %s\n", width, b.Name, s)
	}

	if r.config.Dump {
		sb.WriteString(plan.Dump())
	}

	r.logger.Debug("%s: %d expressions planned", path, len(plan.Exprs()))

	return report{path: path, text: sb.String()}
}

func (r *runner) failure(path string, err error) report {
	r.logger.Debug("%s: %v", path, err)

	config := diagnostic.DefaultDiagnosticConfig()
	config.MaxErrors = r.config.MaxErrors

	engine := diagnostic.NewDiagnosticEngine(config)
	engine.AddDiagnostic(diagnostic.Common.FromError(err, position.At(position.Position{Filename: path, Line: 1, Column: 1})))

	return report{
		path:   path,
		text:   fmt.Sprintf("%s\n%s\n", path, engine.FormatDiagnostics()),
		failed: true,
	}
}
