package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tripkeeper/internal/client/services"
)

func newPhotosCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "photos", Short: "Offline photo images of cached trips"}

	var thumbnail bool
	variant := func() services.PhotoVariant {
		if thumbnail {
			return services.PhotoThumbnail
		}
		return services.PhotoFull
	}

	putCmd := &cobra.Command{
		Use:   "put PHOTO_ID FILE",
		Short: "Store an image for a cached photo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if err := rt.app.Photos.StorePhoto(cmd.Context(), args[0], variant(), raw); err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "stored %s %s (%d bytes)\n", variant(), args[0], len(raw))
			return nil
		},
	}

	var output string
	getCmd := &cobra.Command{
		Use:   "get PHOTO_ID",
		Short: "Write a stored photo image to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rt.app.Photos.GetPhoto(cmd.Context(), args[0], variant())
			if err != nil {
				return err
			}
			if data == nil {
				return fmt.Errorf("%s %s not cached", variant(), args[0])
			}
			return os.WriteFile(output, data, 0o600)
		},
	}
	getCmd.Flags().StringVarP(&output, "output", "o", "", "destination file")
	_ = getCmd.MarkFlagRequired("output")

	dropCmd := &cobra.Command{
		Use:   "drop PHOTO_ID",
		Short: "Remove a stored photo image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.app.Photos.DropPhoto(cmd.Context(), args[0], variant())
		},
	}

	for _, c := range []*cobra.Command{putCmd, getCmd, dropCmd} {
		c.Flags().BoolVar(&thumbnail, "thumbnail", false, "the thumbnail instead of the full image")
		cmd.AddCommand(c)
	}
	return cmd
}
