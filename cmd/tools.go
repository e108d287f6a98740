package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deadloked8999/exeltest/internal/appmanager"
	"github.com/deadloked8999/exeltest/internal/blocks"
	"github.com/deadloked8999/exeltest/internal/classifier"
	"github.com/deadloked8999/exeltest/internal/directory"
	"github.com/deadloked8999/exeltest/internal/grid"
	"github.com/deadloked8999/exeltest/internal/ingest"
	"github.com/deadloked8999/exeltest/internal/query"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ingestCmd() *cobra.Command {
	var user, name string
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Store one shift report and print the ingestion result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withComponents(cmd.Context(), func(c *appmanager.Components) error {
				res, err := c.Coordinator.Ingest(cmd.Context(), data,
					ingest.Owner{ID: user, DisplayName: name}, filepath.Base(args[0]))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "owner id recorded with the file")
	cmd.Flags().StringVar(&name, "name", "", "owner display name")
	return cmd
}

type classifyOutput struct {
	Meta     classifier.Meta            `json:"meta"`
	Blocks   []classifier.Block         `json:"blocks"`
	Verdicts []blocks.Verdict           `json:"per_block_verdicts"`
	Warnings []blocks.ValidationWarning `json:"warnings,omitempty"`
}

// classifyCmd parses a report without a database, for checking new layouts.
func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file>",
		Short: "Parse a report offline and print its blocks and verdicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			g, err := grid.Read(data, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			res, err := classifier.Classify(g)
			if err != nil {
				return err
			}
			parsed, warns, err := blocks.ParseAll(g, res, blocks.DefaultOptions())
			if err != nil {
				return err
			}
			out := classifyOutput{Meta: res.Meta, Blocks: res.Blocks, Warnings: warns}
			for _, p := range parsed {
				out.Verdicts = append(out.Verdicts, p.Verdict)
				out.Warnings = append(out.Warnings, p.Verdict.Warnings...)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func askCmd() *cobra.Command {
	var (
		user    string
		asJSON  bool
		history int
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question over the stored reports",
		Args: func(cmd *cobra.Command, args []string) error {
			if history > 0 {
				return nil
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(c *appmanager.Components) error {
				if history > 0 {
					entries, err := c.Audit.Recent(cmd.Context(), user, history)
					if err != nil {
						return err
					}
					if asJSON {
						return printJSON(cmd.OutOrStdout(), entries)
					}
					res := &query.Result{Columns: []string{"created_at", "question", "rows", "sql"}}
					for _, e := range entries {
						sql := ""
						if e.SQL != nil {
							sql = *e.SQL
						}
						res.Rows = append(res.Rows, []any{e.CreatedAt.Format("02.01.2006 15:04"), e.Question, e.ResultCount, sql})
					}
					fmt.Fprintln(cmd.OutOrStdout(), query.FormatPlain(res, len(entries)))
					return nil
				}
				ans, err := c.Engine.Ask(cmd.Context(), user, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), ans)
				}
				fmt.Fprintln(cmd.OutOrStdout(), ans.SQL)
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "requester recorded in the audit log")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full answer as JSON")
	cmd.Flags().IntVar(&history, "history", 0, "print the requester's last N questions instead of asking")
	return cmd
}

func employeesCmd() *cobra.Command {
	root := &cobra.Command{Use: "employees", Short: "Employee directory"}

	importCmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a pasted list of codes and names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			list := directory.ParseEmployees(string(data))
			if len(list) == 0 {
				return fmt.Errorf("no employees found in input")
			}
			return withComponents(cmd.Context(), func(c *appmanager.Components) error {
				stats, err := c.Employees.Import(cmd.Context(), list)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %d, updated %d\n", stats.Added, stats.Updated)
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd.Context(), func(c *appmanager.Components) error {
				list, err := c.Employees.List(cmd.Context(), 1000, 0)
				if err != nil {
					return err
				}
				res := &query.Result{Columns: []string{"employee_code", "full_name"}}
				for _, e := range list {
					res.Rows = append(res.Rows, []any{e.Code, e.FullName})
				}
				fmt.Fprintln(cmd.OutOrStdout(), query.FormatPlain(res, len(list)))
				return nil
			})
		},
	}

	root.AddCommand(importCmd, listCmd)
	return root
}
