package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/txn2/mcp-query-builder/pkg/auth"
	"github.com/txn2/mcp-query-builder/pkg/querymodel"
	"github.com/txn2/mcp-query-builder/pkg/sqlgen"
	"github.com/txn2/mcp-query-builder/pkg/sqlguard"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
)

// readInput returns the contents of path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// printValidation writes warnings and errors of res to w and reports whether
// the statement passed.
func printValidation(w io.Writer, res sqlguard.Result) bool {
	for _, warning := range res.Warnings {
		_, _ = warningColor.Fprint(w, "warning: ")
		_, _ = fmt.Fprintln(w, warning)
	}
	for _, e := range res.Errors {
		_, _ = errorColor.Fprint(w, "error: ")
		_, _ = fmt.Fprintln(w, e)
	}
	return res.Valid
}

func newCompileCmd() *cobra.Command {
	var (
		pretty  bool
		maxRows int
	)

	cmd := &cobra.Command{
		Use:   "compile <query.json|->",
		Short: "Compile a JSON query model into SQL and validate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			var cfg querymodel.Config
			if err := json.Unmarshal(data, &cfg); err != nil {
				return fmt.Errorf("parsing query model: %w", err)
			}

			sql, err := sqlgen.Compile(cfg)
			if err != nil {
				return err
			}

			out := sql
			if pretty {
				out = sqlgen.FormatSQL(sql)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)

			if !printValidation(cmd.ErrOrStderr(), sqlguard.Validate(sql, maxRows)) {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Print one clause per line")
	cmd.Flags().IntVar(&maxRows, "max-rows", sqlguard.DefaultMaxRows, "Row cap used for validation")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var maxRows int

	cmd := &cobra.Command{
		Use:   "validate [sql|-]",
		Short: "Check that SQL is a single read-only SELECT and print the sanitized statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := strings.Join(args, " ")
			if sql == "-" {
				data, err := readInput(cmd, "-")
				if err != nil {
					return err
				}
				sql = string(data)
			}

			res := sqlguard.Validate(sql, maxRows)
			if !printValidation(cmd.ErrOrStderr(), res) {
				return errReported
			}
			_, _ = successColor.Fprint(cmd.ErrOrStderr(), "valid: ")
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "statement accepted")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.SanitizedSQL)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxRows, "max-rows", sqlguard.DefaultMaxRows, "Row cap enforced on the statement (1-1000)")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key|->",
		Short: "Print the bcrypt hash to use as auth.api_keys.keys[].key_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if key == "-" {
				data, err := readInput(cmd, "-")
				if err != nil {
					return err
				}
				key = strings.TrimSpace(string(data))
			}
			if key == "" {
				return fmt.Errorf("key must not be empty")
			}

			hash, err := auth.HashKey(key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
