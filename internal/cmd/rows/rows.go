package rows

import (
	"context"
	"errors"
	"strings"

	rowleasev1 "github.com/rzbill/rowlease/api/rowlease/v1"
	transports "github.com/rzbill/rowlease/internal/cmd/rows/transports"
	"github.com/spf13/cobra"
)

// OpenFunc returns the transport a command should use. The command closes
// it when done.
type OpenFunc func(ctx context.Context) (transports.RowsTransport, error)

// NewCommands constructs the row commands.
func NewCommands(open OpenFunc) []*cobra.Command {
	return []*cobra.Command{
		newInitCommand(open),
		newSchemaCommand(open),
		newAppendCommand(open),
		newClaimCommand(open),
		newShowCommand(open),
		newUpdateCommand(open),
		newReleaseCommand(open),
		newCompleteCommand(open),
		newFailCommand(open),
		newDeadLetterCommand(open),
	}
}

// withTransport opens a transport for the duration of fn.
func withTransport(cmd *cobra.Command, open OpenFunc, fn func(transports.RowsTransport) error) error {
	t, err := open(cmd.Context())
	if err != nil {
		return err
	}
	err = fn(t)
	if cerr := t.Close(); err == nil {
		err = cerr
	}
	return err
}

// newInitCommand constructs the `init` subcommand.
func newInitCommand(open OpenFunc) *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the header row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hdr, _ := cmd.Flags().GetString("header")
			headers := splitList(hdr)
			if len(headers) == 0 {
				return errors.New("--header is required")
			}
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				if err := t.InitHeader(cmd.Context(), headers); err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"headers": headers})
			})
		},
	}
	initCmd.Flags().String("header", "", "Comma separated field names; must include status, processing_lock and locked_by")
	return initCmd
}

// newSchemaCommand constructs the `schema` subcommand.
func newSchemaCommand(open OpenFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the field name to column mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				m, err := t.Schema(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, rowleasev1.SchemaResponse{Fields: m})
			})
		},
	}
}

// newAppendCommand constructs the `append` subcommand.
func newAppendCommand(open OpenFunc) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append a row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pairs, _ := cmd.Flags().GetStringArray("set")
			fields, err := parseSet(pairs)
			if err != nil {
				return err
			}
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				row, err := t.Append(cmd.Context(), fields)
				if err != nil {
					return err
				}
				return printJSON(cmd, rowleasev1.AppendResponse{Row: row})
			})
		},
	}
	appendCmd.Flags().StringArray("set", nil, "Field value as key=value (repeatable)")
	return appendCmd
}

// newClaimCommand constructs the `claim` subcommand.
func newClaimCommand(open OpenFunc) *cobra.Command {
	claimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the first eligible row",
		Long: `Claim the first row whose status equals --wanted and whose lease is
empty or older than --max-lease-age. The row is marked --claimed and leased
to the worker id. Prints the claimed row, or null when nothing is eligible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wanted, _ := cmd.Flags().GetString("wanted")
			claimed, _ := cmd.Flags().GetString("claimed")
			worker, _ := cmd.Flags().GetString("worker")
			age, _ := cmd.Flags().GetString("max-lease-age")
			filter, _ := cmd.Flags().GetString("filter")
			required, _ := cmd.Flags().GetString("required")
			failEmpty, _ := cmd.Flags().GetBool("fail-empty")

			req := rowleasev1.ClaimRequest{
				Wanted:      wanted,
				Claimed:     claimed,
				Worker:      worker,
				MaxLeaseAge: age,
				Filter:      filter,
				Required:    splitList(required),
			}
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				w, err := t.Claim(cmd.Context(), req)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, w); err != nil {
					return err
				}
				if w == nil && failEmpty {
					return ErrNothingToClaim
				}
				return nil
			})
		},
	}
	claimCmd.Flags().String("wanted", "", "Status a row must have to be claimed")
	claimCmd.Flags().String("claimed", "", "Status written on claim")
	claimCmd.Flags().String("worker", "", "Worker id (default from config)")
	claimCmd.Flags().String("max-lease-age", "", "Lease age after which a claimed row is stale, e.g. 30m (default from config)")
	claimCmd.Flags().String("filter", "", "CEL expression over row, row_number, status and now_ms")
	claimCmd.Flags().String("required", "", "Comma separated fields that must exist in the header")
	claimCmd.Flags().Bool("fail-empty", false, "Exit non-zero when nothing is eligible")
	_ = claimCmd.MarkFlagRequired("wanted")
	_ = claimCmd.MarkFlagRequired("claimed")
	return claimCmd
}

// ErrNothingToClaim is returned by `claim --fail-empty` when no row is
// eligible.
var ErrNothingToClaim = errors.New("nothing to claim")

// newShowCommand constructs the `show` subcommand.
func newShowCommand(open OpenFunc) *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show [row]",
		Short: "Print one row by number or by --find field=value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			find, _ := cmd.Flags().GetString("find")
			if find != "" {
				if len(args) > 0 {
					return errors.New("use either a row number or --find")
				}
				field, value, ok := strings.Cut(find, "=")
				if !ok || strings.TrimSpace(field) == "" {
					return errors.New("invalid --find; expected field=value")
				}
				return withTransport(cmd, open, func(t transports.RowsTransport) error {
					w, err := t.Find(cmd.Context(), strings.TrimSpace(field), value)
					if err != nil {
						return err
					}
					return printJSON(cmd, w)
				})
			}
			row, err := rowArg(args)
			if err != nil {
				return err
			}
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				w, err := t.Row(cmd.Context(), row)
				if err != nil {
					return err
				}
				return printJSON(cmd, w)
			})
		},
	}
	showCmd.Flags().String("find", "", "Find the first row where field=value")
	return showCmd
}

// newUpdateCommand constructs the `update` subcommand.
func newUpdateCommand(open OpenFunc) *cobra.Command {
	updateCmd := &cobra.Command{
		Use:   "update <row>",
		Short: "Write fields to a row in one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := rowArg(args)
			if err != nil {
				return err
			}
			pairs, _ := cmd.Flags().GetStringArray("set")
			fields, err := parseSet(pairs)
			if err != nil {
				return err
			}
			if len(fields) == 0 {
				return errors.New("at least one --set is required")
			}
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				w, err := t.Update(cmd.Context(), row, fields)
				if err != nil {
					return err
				}
				return printJSON(cmd, w)
			})
		},
	}
	updateCmd.Flags().StringArray("set", nil, "Field value as key=value (repeatable)")
	return updateCmd
}

// newReleaseCommand constructs the `release` subcommand.
func newReleaseCommand(open OpenFunc) *cobra.Command {
	releaseCmd := &cobra.Command{
		Use:   "release <row>",
		Short: "Hand a claimed row back and clear its lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := rowArg(args)
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				w, err := t.Release(cmd.Context(), row, status)
				if err != nil {
					return err
				}
				return printJSON(cmd, w)
			})
		},
	}
	releaseCmd.Flags().String("status", "READY", "Status to write")
	return releaseCmd
}

// newCompleteCommand constructs the `complete` subcommand.
func newCompleteCommand(open OpenFunc) *cobra.Command {
	completeCmd := &cobra.Command{
		Use:   "complete <row>",
		Short: "Write result fields and a terminal status, clearing the lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := rowArg(args)
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			pairs, _ := cmd.Flags().GetStringArray("set")
			fields, err := parseSet(pairs)
			if err != nil {
				return err
			}
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				w, err := t.Complete(cmd.Context(), row, status, fields)
				if err != nil {
					return err
				}
				return printJSON(cmd, w)
			})
		},
	}
	completeCmd.Flags().String("status", "", "Terminal status, e.g. SCORED or POSTED")
	completeCmd.Flags().StringArray("set", nil, "Result field as key=value (repeatable)")
	_ = completeCmd.MarkFlagRequired("status")
	return completeCmd
}

// newFailCommand constructs the `fail` subcommand.
func newFailCommand(open OpenFunc) *cobra.Command {
	failCmd := &cobra.Command{
		Use:   "fail <row>",
		Short: "Mark a row failed and append the error to its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := rowArg(args)
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			msg, _ := cmd.Flags().GetString("error")
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				w, err := t.Fail(cmd.Context(), row, status, msg)
				if err != nil {
					return err
				}
				return printJSON(cmd, w)
			})
		},
	}
	failCmd.Flags().String("status", "ERROR", "Status to write")
	failCmd.Flags().String("error", "", "Error message recorded in ai_notes or notes")
	return failCmd
}

// newDeadLetterCommand constructs the `deadletter` subcommand.
func newDeadLetterCommand(open OpenFunc) *cobra.Command {
	dlCmd := &cobra.Command{
		Use:   "deadletter",
		Short: "Count failures on rows in --input and move exhausted rows to the dead-letter status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, _ := cmd.Flags().GetString("input")
			dead, _ := cmd.Flags().GetString("dead")
			maxFails, _ := cmd.Flags().GetInt("max-fails")
			maxRows, _ := cmd.Flags().GetInt("max-rows")
			lastErr, _ := cmd.Flags().GetString("last-error")
			if strings.TrimSpace(input) == "" {
				return errors.New("--input is required")
			}
			req := rowleasev1.DeadLetterRequest{Input: input, Dead: dead, MaxFails: maxFails, MaxRows: maxRows, LastError: lastErr}
			return withTransport(cmd, open, func(t transports.RowsTransport) error {
				res, err := t.DeadLetter(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	dlCmd.Flags().String("input", "", "Status of rows to visit (case-insensitive)")
	dlCmd.Flags().String("dead", "", "Dead-letter status (default from config)")
	dlCmd.Flags().Int("max-fails", 0, "Failures before dead-lettering (default from config)")
	dlCmd.Flags().Int("max-rows", 0, "Rows touched per run (default from config)")
	dlCmd.Flags().String("last-error", "", "Error recorded in last_error")
	return dlCmd
}
