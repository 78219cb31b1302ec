package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tripkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/tripkeeper/internal/client/syncrpc"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

const (
	pingTimeout = 3 * time.Second
	tokenBytes  = 24
)

func newSyncCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "sync", Short: "Replay queued changes to the server"}

	var remote bool
	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay every pending change once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d := rt.app.Drainer
			if remote {
				c, err := rt.dialQueue(ctx)
				if err != nil {
					return err
				}
				defer c.Close()
				d = rt.app.DrainerFor(c)
			}

			res, err := d.Drain(ctx)
			if perr := rt.printJSON(res); perr != nil {
				return errors.Join(err, perr)
			}
			return err
		},
	}
	drainCmd.Flags().BoolVar(&remote, "remote", false, "drain the queue of a running serve process over --sync-rpc-addr")
	cmd.AddCommand(drainCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check that a serve process answers on --sync-rpc-addr",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := rt.dialQueue(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.GetPendingChangeCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "%s: %d pending changes\n", rt.cfg.SyncRPCAddr, n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "token",
		Short: "Print a random token for --sync-rpc-token",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			tok, err := common.MakeRandHexString(tokenBytes)
			if err != nil {
				return err
			}
			fmt.Fprintln(rt.out, tok)
			return nil
		},
	})

	return cmd
}

func (rt *runtime) dialQueue(ctx context.Context) (*syncrpc.Client, error) {
	c, err := syncrpc.NewClient(rt.cfg.SyncRPCAddr, rt.cfg.SyncRPCToken)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("sync rpc %s: %w", rt.cfg.SyncRPCAddr, err)
	}
	return c, nil
}

var _ syncer.Queue = (*syncrpc.Client)(nil)

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync queue endpoint, the synchronizer, metrics and auto-cleanup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.app.Serve(cmd.Context())
		},
	}
}
