package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/usecase"
)

// newRootCmd devolve também o cleanup das conexões abertas pelo loader.
func newRootCmd(load loader) (*cobra.Command, func()) {
	var (
		a       *app
		closeFn func()
		asJSON  bool
	)

	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operator tool for the payment orchestrator",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, closeFn, err = load(cmd.Context())
			return err
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")

	getApp := func() *app { return a }
	out := func(cmd *cobra.Command) printer { return printer{w: cmd.OutOrStdout(), json: asJSON} }

	rootCmd.AddCommand(deadLettersCmd(getApp, out))
	rootCmd.AddCommand(auditCmd(getApp, out))
	rootCmd.AddCommand(accountsCmd(getApp, out))

	cleanup := func() {
		if closeFn != nil {
			closeFn()
		}
	}
	return rootCmd, cleanup
}

func deadLettersCmd(a func() *app, out func(*cobra.Command) printer) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dl"},
		Short:   "Inspect and resolve dead-lettered transactions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter envelopes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			envs, err := a().deadLetters.List(cmd.Context(), domain.DeadLetterStatus(status))
			if err != nil {
				return err
			}
			return out(cmd).envelopes(envs)
		},
	}
	listCmd.Flags().StringP("status", "s", "", "Filter by status (SCHEDULED, RETRYING, MANUAL_REVIEW, RESOLVED)")

	resolveCmd := &cobra.Command{
		Use:   "resolve [id]",
		Short: "Close an envelope waiting for manual review",
		Long: `Close an envelope waiting for manual review.

--release-key frees the idempotency key so the client can submit again.
--complete pins the recorded outcome as the answer for the key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			release, _ := cmd.Flags().GetBool("release-key")
			complete, _ := cmd.Flags().GetBool("complete")

			action := usecase.ResolveReleaseKey
			if complete {
				action = usecase.ResolveComplete
			}
			if release == complete {
				return fmt.Errorf("choose exactly one of --release-key or --complete")
			}

			env, err := a().deadLetters.Resolve(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			return out(cmd).envelopes([]*domain.DeadLetterEnvelope{env})
		},
	}
	resolveCmd.Flags().Bool("release-key", false, "Release the idempotency key")
	resolveCmd.Flags().Bool("complete", false, "Complete the idempotency key with the recorded outcome")

	requeueCmd := &cobra.Command{
		Use:   "requeue [id]",
		Short: "Schedule an envelope for immediate redispatch with attempts reset (commit failures need resolve)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a().deadLetters.Requeue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out(cmd).envelopes([]*domain.DeadLetterEnvelope{env})
		},
	}

	cmd.AddCommand(listCmd, resolveCmd, requeueCmd)
	return cmd
}

func auditCmd(a func() *app, out func(*cobra.Command) printer) *cobra.Command {
	return &cobra.Command{
		Use:   "audit [transaction-id]",
		Short: "Print the audit trail of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := a().payments.Audit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out(cmd).events(events)
		},
	}
}

func accountsCmd(a func() *app, out func(*cobra.Command) printer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage account limits used by the LIMIT validator",
	}

	putCmd := &cobra.Command{
		Use:   "put [id]",
		Short: "Create or update an account profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, _ := cmd.Flags().GetInt64("balance")
			limit, _ := cmd.Flags().GetInt64("limit")
			frozen, _ := cmd.Flags().GetBool("frozen")

			account, err := a().accounts.Register(cmd.Context(), usecase.RegisterAccountInput{
				ID:                  args[0],
				Balance:             balance,
				PerTransactionLimit: limit,
				Frozen:              frozen,
			})
			if err != nil {
				return err
			}
			return out(cmd).any(account)
		},
	}
	putCmd.Flags().Int64("balance", 0, "Available balance in minor units")
	putCmd.Flags().Int64("limit", 0, "Per-transaction limit in minor units (0 = none)")
	putCmd.Flags().Bool("frozen", false, "Freeze the account")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Show an account profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := a().accounts.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out(cmd).any(account)
		},
	}

	cmd.AddCommand(putCmd, getCmd)
	return cmd
}

type printer struct {
	w    io.Writer
	json bool
}

func (p printer) any(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) envelopes(envs []*domain.DeadLetterEnvelope) error {
	if p.json {
		return p.any(envs)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRANSACTION\tREASON\tATTEMPT\tSTATUS\tNEXT RETRY")
	for _, e := range envs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.TransactionID, e.FailureReason, e.Attempt, e.Status, formatTime(e.NextRetryAt))
	}
	return tw.Flush()
}

func (p printer) events(events []domain.AuditEvent) error {
	if p.json {
		return p.any(events)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tEVENT\tPAYLOAD")
	for _, e := range events {
		payload, _ := json.Marshal(e.Payload)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Sequence, formatTime(e.Timestamp), e.Type, payload)
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
