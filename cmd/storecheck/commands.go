package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkoval/storecheck/internal/compare"
	"github.com/mkoval/storecheck/internal/inspect"
	"github.com/mkoval/storecheck/internal/store"
)

var jsonOutput bool

func init() {
	for _, cmd := range []*cobra.Command{inspectCmd, diffCmd, batchCmd, healthCmd, repairPlanCmd} {
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of formatted output")
	}
	batchCmd.Flags().String("file", "", "file with one record id per line")
}

// --- inspect ---

var inspectCmd = &cobra.Command{
	Use:   "inspect <id>",
	Short: "Inspect one record across all configured stores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/inspect/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var res inspect.Result
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(res)
		}
		printSnapshots(res.Snapshots)
		printReport(res.Report)
		return nil
	},
}

// --- diff ---

var diffCmd = &cobra.Command{
	Use:   "diff <id>",
	Short: "Show only the consistency report for a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/diff/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var rep compare.Report
		if err := decodeJSON(resp, &rep); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(rep)
		}
		printReport(rep)
		return nil
	},
}

// --- batch ---

var batchCmd = &cobra.Command{
	Use:   "batch [id...]",
	Short: "Inspect several records, isolating failures per id",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := args

		if file, _ := cmd.Flags().GetString("file"); file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading id file: %w", err)
			}
			for _, line := range strings.Split(string(data), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					ids = append(ids, line)
				}
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("no record ids given (arguments or --file)")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/batch", map[string]any{"ids": ids})
		if err != nil {
			return err
		}

		var out struct {
			Results []inspect.BatchResult `json:"results"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(out)
		}
		for _, br := range out.Results {
			printStatusLine(br.RecordID, br.Result.Report)
		}
		return nil
	},
}

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every configured store provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/health")
		if err != nil {
			return err
		}

		var out struct {
			Providers map[string]store.Health `json:"providers"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(out)
		}

		names := make([]string, 0, len(out.Providers))
		for n := range out.Providers {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			h := out.Providers[n]
			if h.OK {
				printSuccess("%s: ok", n)
			} else {
				printError("%s: %s", n, h.Detail)
			}
		}
		return nil
	},
}

// --- repair plan ---

var repairPlanCmd = &cobra.Command{
	Use:   "repair-plan <id>",
	Short: "Compute a dry-run sync-to-majority plan for a record",
	Long: `Compute a dry-run sync-to-majority plan for a record.

The plan describes what a repair would do; nothing is written. Applying a
plan requires a deployment that explicitly enables repair and supplies store
writers — the default build is read-only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/repair/plan", map[string]any{"id": args[0]})
		if err != nil {
			return err
		}

		var plan map[string]any
		if err := decodeJSON(resp, &plan); err != nil {
			return err
		}
		return printJSON(plan)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
