package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/iasync/internal/formatter"
	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/shared"
	"github.com/desertthunder/iasync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// readRequests decodes a batch file holding one request object or a list of them.
func readRequests(path string, stdin io.Reader) ([]models.UpdateRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty batch file", shared.ErrMalformedRequest)
	}

	if data[0] == '[' {
		var reqs []models.UpdateRequest
		if err := json.Unmarshal(data, &reqs); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrMalformedRequest, err)
		}
		if len(reqs) == 0 {
			return nil, fmt.Errorf("%w: no requests in batch file", shared.ErrMalformedRequest)
		}
		return reqs, nil
	}

	var req models.UpdateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedRequest, err)
	}
	return []models.UpdateRequest{req}, nil
}

// exportPath numbers the output file when a batch file holds several requests.
func exportPath(path string, i, n int) string {
	if path == "" || n == 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), i+1, ext)
}

// MetadataApply runs every request in the batch file in order and prints or writes each summary.
func (r *Runner) MetadataApply(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	reqs, err := readRequests(cmd.String("file"), os.Stdin)
	if err != nil {
		return err
	}

	if err := r.init(ctx); err != nil {
		return err
	}

	output := cmd.String("output")
	for i, req := range reqs {
		var summary *tasks.Summary
		if cmd.Bool("stream") {
			summary, err = r.streamBatch(ctx, req)
		} else {
			summary, err = r.engine.Apply(ctx, req)
		}
		if err != nil {
			return err
		}

		if output != "" {
			path, err := formatter.WriteExport(summary, format, exportPath(output, i, len(reqs)))
			if err != nil {
				return err
			}
			r.writePlain("✓ Summary written to %s\n", path)
			continue
		}

		data, err := formatter.Export(summary, format)
		if err != nil {
			return err
		}
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// streamBatch prints one line per event and returns the summary from the complete event.
func (r *Runner) streamBatch(ctx context.Context, req models.UpdateRequest) (*tasks.Summary, error) {
	var (
		summary *tasks.Summary
		fatal   error
	)
	for ev := range r.engine.Stream(ctx, req) {
		switch {
		case ev.Type == tasks.EventStart:
			r.writePlain("→ batch %s: %d item(s)\n", ev.BatchID, ev.Total)
		case ev.Type == tasks.EventProcessing:
			r.writePlain("  [%d/%d] %s...\n", ev.Index+1, ev.Total, ev.Identifier)
		case ev.Fatal:
			fatal = fmt.Errorf("batch failed: %s", ev.Message)
		case ev.Type == tasks.EventSuccess, ev.Type == tasks.EventError:
			mark := "✓"
			if ev.Type == tasks.EventError {
				mark = "✗"
			}
			r.writePlain("  %s %s: %s\n", mark, ev.Identifier, ev.Message)
		case ev.Type == tasks.EventComplete:
			summary = ev.Summary
		}
	}

	if fatal != nil {
		return nil, fatal
	}
	if summary == nil {
		return nil, fmt.Errorf("batch ended without a summary")
	}
	return summary, nil
}

// MetadataGet prints an item's metadata.
func (r *Runner) MetadataGet(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	snap, err := r.engine.ReadMetadata(ctx, cmd.String("id"), cmd.Bool("force"))
	if err != nil {
		return err
	}
	return r.writeJSON(snap, true)
}

func (r *Runner) listItems(ctx context.Context, cmd *cli.Command) ([]models.Item, error) {
	email := cmd.String("email")
	if email == "" {
		email = r.config.Archive.Email
	}
	if email == "" {
		return nil, fmt.Errorf("%w: --email or archive.email is required", shared.ErrMissingArgument)
	}

	if err := r.init(ctx); err != nil {
		return nil, err
	}
	return r.engine.ListItems(ctx, email, cmd.Int("rows"), cmd.Bool("force"))
}

// MetadataList prints the items uploaded by an account.
func (r *Runner) MetadataList(ctx context.Context, cmd *cli.Command) error {
	items, err := r.listItems(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(items, true)
	}

	r.writePlainHeader(fmt.Sprintf("Items (%d)", len(items)))
	for _, item := range items {
		r.writePlain("%-40s %-12s %s\n", item.Identifier, item.Date, item.Title)
	}
	return nil
}

// MetadataAnalyze reports items with incomplete metadata and can write the fixes as a batch file.
func (r *Runner) MetadataAnalyze(ctx context.Context, cmd *cli.Command) error {
	items, err := r.listItems(ctx, cmd)
	if err != nil {
		return err
	}

	suggestions := tasks.Analyze(items)

	if path := cmd.String("apply-file"); path != "" {
		reqs := tasks.Requests(suggestions)
		data, err := json.MarshalIndent(reqs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write batch file: %w", err)
		}
		r.logger.Info("batch file written", "path", path, "requests", len(reqs))
	}

	if cmd.Bool("json") {
		return r.writeJSON(suggestions, true)
	}

	r.writePlainHeader(fmt.Sprintf("Analyzed %d item(s), %d need attention", len(items), len(suggestions)))
	for _, s := range suggestions {
		r.writePlain("%s\n", s)
		for _, u := range s.Updates {
			r.writePlain("    %s %s = %q\n", u.Op(), u.Field, u.Value)
		}
	}
	if path := cmd.String("apply-file"); path != "" {
		r.writePlainln("Apply with: iasync metadata apply --file %s", path)
	}
	return nil
}

// MetadataAudit reports identifier/title date mismatches.
func (r *Runner) MetadataAudit(ctx context.Context, cmd *cli.Command) error {
	items, err := r.listItems(ctx, cmd)
	if err != nil {
		return err
	}

	mismatches := tasks.Audit(items)
	if cmd.Bool("csv") {
		data, err := formatter.ExportAudit(mismatches)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	}

	r.writePlainHeader(fmt.Sprintf("%d date mismatch(es) in %d item(s)", len(mismatches), len(items)))
	for _, m := range mismatches {
		r.writePlain("%s\n    identifier %s, title %s, metadata %q → %s\n", m.Identifier, m.IdentifierDate, m.TitleDate, m.MetadataDate, m.Suggested)
	}
	return nil
}
