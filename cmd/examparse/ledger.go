package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edenschool/examparse/internal/ledger"
	"github.com/edenschool/examparse/internal/store"
	"github.com/edenschool/examparse/pkg/redis"
)

func newLedgerCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or clear the processed-file ledger",
	}
	open := func(ctx context.Context) (*ledger.Ledger, func() error, error) {
		cfg := root.cfg.Redis
		client, err := redis.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return ledger.New(client, cfg.KeyPrefix, cfg.LedgerTTL), client.Close, nil
	}

	var ref store.FileRef
	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether a file is marked processed",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			done, err := l.Done(cmd.Context(), ref)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", l.Key(ref), done)
			return nil
		},
	}
	forget := &cobra.Command{
		Use:   "forget",
		Short: "Unmark one file so the next run processes it again",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			return l.Forget(cmd.Context(), ref)
		},
	}
	for _, c := range []*cobra.Command{check, forget} {
		c.Flags().Int64Var(&ref.MetaID, "meta", 0, "meta id")
		c.Flags().Int64Var(&ref.FileID, "file-id", 0, "file id")
		c.MarkFlagRequired("meta")
		c.MarkFlagRequired("file-id")
	}
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Remove every mark under the configured prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := l.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d marks\n", n)
			return nil
		},
	}
	cmd.AddCommand(check, forget, reset)
	return cmd
}
