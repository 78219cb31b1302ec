package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
)

func newQueueCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "queue", Short: "Changes waiting to be synced"}

	var trip string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pending changes in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				ops []models.SyncOperation
				err error
			)
			if trip != "" {
				ops, err = rt.app.Queue.GetPendingChangesForTrip(cmd.Context(), trip)
			} else {
				ops, err = rt.app.Queue.GetPendingChanges(cmd.Context())
			}
			if err != nil {
				return err
			}
			return rt.printJSON(ops)
		},
	}
	listCmd.Flags().StringVar(&trip, "trip", "", "only changes of this trip")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of pending changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := rt.app.Queue.GetPendingChangeCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(rt.out, n)
			return nil
		},
	})

	var (
		opType   string
		kind     string
		entityID string
		payload  string
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a change by hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			op := models.SyncOperation{
				Type:       models.OperationType(opType),
				EntityType: models.EntityKind(kind),
				EntityID:   entityID,
				TripID:     trip,
			}
			if !op.Type.Valid() {
				return fmt.Errorf("unknown change type %q", opType)
			}
			if !op.EntityType.Valid() {
				return fmt.Errorf("unknown entity kind %q", kind)
			}
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return errors.New("payload is not valid JSON")
				}
				op.Payload = json.RawMessage(payload)
			}
			id, err := rt.app.Queue.QueueChange(cmd.Context(), op)
			if err != nil {
				return err
			}
			fmt.Fprintln(rt.out, id)
			return nil
		},
	}
	fs := addCmd.Flags()
	fs.StringVar(&opType, "type", string(models.OpUpdate), "create, update or delete")
	fs.StringVar(&kind, "kind", "", "entity kind")
	fs.StringVar(&entityID, "id", "", "entity id")
	fs.StringVar(&trip, "trip", "", "trip the entity belongs to")
	fs.StringVar(&payload, "payload", "", "entity JSON")
	_ = addCmd.MarkFlagRequired("kind")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every pending change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := rt.app.Queue.GetPendingChangeCount(cmd.Context())
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			if err := rt.confirm(fmt.Sprintf("Drop %d unsynced changes?", n)); err != nil {
				return err
			}
			return rt.app.Queue.ClearSyncQueue(cmd.Context())
		},
	})

	return cmd
}

func newDraftsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "drafts", Short: "Local drafts, conflicts and rejected changes"}

	var trip string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				list []models.Draft
				err  error
			)
			if cmd.Flags().Changed("trip") {
				list, err = rt.app.Drafts.ListByTrip(cmd.Context(), trip)
			} else {
				list, err = rt.app.Drafts.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			return rt.printJSON(list)
		},
	}
	listCmd.Flags().StringVar(&trip, "trip", "", "only drafts of this trip")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "discard DRAFT_ID",
		Short: "Delete one draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.app.Drafts.Delete(cmd.Context(), args[0])
		},
	})

	return cmd
}
