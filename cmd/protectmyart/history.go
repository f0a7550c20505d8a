package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/protectmyart/internal/config"
	"github.com/nao1215/protectmyart/internal/database"
	"github.com/nao1215/protectmyart/internal/report"
)

// DefaultHistoryLimit is the number of inspections listed per URL.
const DefaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show previously saved check results",
		Long: `History reads the results recorded by the check command.

Without an argument it lists every checked URL with its latest state.
With a URL it lists the inspections of that page, newest first. With
--session it lists the inspections of one check run; the session id is
part of every JSON report.

Examples:
  protectmyart history
  protectmyart history https://example.com/gallery --limit 5
  protectmyart history --session 6f1c9a0e-2b7d-4c55-9a43-1f0e8d7c2b61
  protectmyart history --prune 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().IntP("limit", "n", DefaultHistoryLimit, "Maximum number of inspections to show (0 for all)")
	cmd.Flags().BoolP("json", "j", false, "Output history as JSON")
	cmd.Flags().StringP("session", "s", "", "List the inspections of one check session")
	cmd.Flags().Duration("prune", 0, "Delete inspections older than this duration before listing")
	cmd.Flags().String("db-dir", "", "History database directory (default: XDG data directory)")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	prune, err := flags.GetDuration("prune")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	sessionID, err := flags.GetString("session")
	if err != nil {
		return err
	}
	if sessionID != "" && len(args) > 0 {
		return errors.New("--session cannot be combined with a URL")
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return fmt.Errorf("no history available: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if prune > 0 {
		n, err := db.Prune(ctx, time.Now().Add(-prune))
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d inspection(s)\n", n)
	}

	if sessionID != "" {
		entries, err := db.SessionEntries(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		if asJSON {
			return writeJSON(out, entries)
		}
		return writeEntries(out, "session "+sessionID, entries, true)
	}

	if len(args) == 0 {
		urls, err := db.ListURLs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
		if asJSON {
			return writeJSON(out, urls)
		}
		return writeURLSummaries(out, urls)
	}

	target := config.NormalizeTarget(args[0])
	entries, err := db.History(ctx, target, limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if asJSON {
		return writeJSON(out, entries)
	}
	return writeEntries(out, target, entries, false)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeURLSummaries(w io.Writer, urls []database.URLSummary) error {
	if len(urls) == 0 {
		_, err := fmt.Fprintln(w, "No inspections recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tCHECKS\tLAST CHECKED\tLAST STATE")
	for _, u := range urls {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			u.URL, u.Inspections, u.LastChecked.Local().Format(time.DateTime), report.StateLabel(u.LastState))
	}
	return tw.Flush()
}

// writeEntries prints entries as a table. showURL adds a URL column for
// listings that span several pages.
func writeEntries(w io.Writer, target string, entries []database.Entry, showURL bool) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintf(w, "No inspections recorded for %s.\n", target)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if showURL {
		fmt.Fprint(tw, "URL\t")
	}
	fmt.Fprintln(tw, "ID\tCHECKED AT\tSTATE\tNOAI\tNOIMAGEAI\tELAPSED\tERROR")
	for _, e := range entries {
		if showURL {
			fmt.Fprintf(tw, "%s\t", e.URL)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.CheckedAt.Local().Format(time.DateTime),
			report.StateLabel(e.State),
			yesNo(e.GeneralOptOut),
			yesNo(e.ImageOptOut),
			e.Elapsed.Round(time.Millisecond),
			e.Error,
		)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
