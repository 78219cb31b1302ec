package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/services"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

type sessionStatus struct {
	Active        bool                `json:"active"`
	User          *models.OfflineUser `json:"user,omitempty"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
	Remaining     string              `json:"remaining,omitempty"`
	ExpiringSoon  bool                `json:"expiring_soon"`
	TokenReadable bool                `json:"token_readable"`
}

func newSessionCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Offline login session"}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the offline session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := rt.app.Vault.GetOfflineSession(ctx)
			if err != nil {
				return err
			}
			if s == nil {
				return rt.printJSON(sessionStatus{})
			}

			token, err := rt.app.Vault.GetDecryptedSessionToken(ctx)
			if err != nil {
				return err
			}
			if token == "" {
				// the vault dropped a session it could not decrypt
				return rt.printJSON(sessionStatus{})
			}
			soon, err := rt.app.Vault.IsSessionExpiringSoon(ctx, services.ExpiryWarningDays)
			if err != nil {
				return err
			}
			remaining, err := rt.app.Vault.GetSessionTimeRemaining(ctx)
			if err != nil {
				return err
			}

			user := s.User()
			return rt.printJSON(sessionStatus{
				Active:        true,
				User:          &user,
				ExpiresAt:     &s.ExpiresAt,
				Remaining:     remaining.Round(time.Minute).String(),
				ExpiringSoon:  soon,
				TokenReadable: true,
			})
		},
	})

	var (
		user      models.OfflineUser
		readToken bool
	)
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Store an offline session for a user who signed in online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var token string
			if readToken {
				secret, err := GetSecret("Session token", rt.errOut)
				if err != nil {
					return err
				}
				token = strings.TrimSpace(string(secret))
				common.WipeByteArray(secret)
			}
			if err := rt.app.Vault.CreateOfflineSession(cmd.Context(), user, token); err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "offline session stored for %s\n", user.Username)
			return nil
		},
	}
	fs := loginCmd.Flags()
	fs.StringVar(&user.ID, "user-id", "", "user id")
	fs.StringVar(&user.Username, "username", "", "user name")
	fs.StringVar(&user.Email, "email", "", "email address")
	fs.StringVar(&user.Timezone, "timezone", "", "IANA time zone")
	fs.BoolVar(&readToken, "token", false, "prompt for the online session token; without it a local token is issued")
	_ = loginCmd.MarkFlagRequired("user-id")
	_ = loginCmd.MarkFlagRequired("username")
	cmd.AddCommand(loginCmd)

	var days int
	extendCmd := &cobra.Command{
		Use:   "extend",
		Short: "Move the session expiry forward from now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.app.Vault.ExtendSession(cmd.Context(), days)
		},
	}
	extendCmd.Flags().IntVar(&days, "days", services.SessionLifetimeDays, "days from now")
	cmd.AddCommand(extendCmd)

	var patch struct{ username, email, timezone string }
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Change the display fields of the session user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p models.UserPatch
			fs := cmd.Flags()
			if fs.Changed("username") {
				p.Username = &patch.username
			}
			if fs.Changed("email") {
				p.Email = &patch.email
			}
			if fs.Changed("timezone") {
				p.Timezone = &patch.timezone
			}
			return rt.app.Vault.UpdateSessionUser(cmd.Context(), p)
		},
	}
	updateCmd.Flags().StringVar(&patch.username, "username", "", "user name")
	updateCmd.Flags().StringVar(&patch.email, "email", "", "email address")
	updateCmd.Flags().StringVar(&patch.timezone, "timezone", "", "IANA time zone")
	cmd.AddCommand(updateCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the offline session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.app.Vault.ClearOfflineSession(cmd.Context())
		},
	})

	return cmd
}
