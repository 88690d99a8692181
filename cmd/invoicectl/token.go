package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"invoiceflow/internal/config"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/domain/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		user, tenant, email string
		roles, perms        []string
		admin               bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Example: `  invoicectl token --user alice --tenant acme --role manager
  invoicectl token --user bob --tenant acme --perm invoice:read --perm invoice:write`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			jwtCfg := auth.DefaultJWTConfig(cfg.JWT.Secret)
			jwtCfg.Issuer = cfg.JWT.Issuer

			permissions := append(auth.PermissionsForRoles(roles...), perms...)
			token, expires, err := auth.NewJWTService(jwtCfg).GenerateAccessToken(appctx.UserContext{
				UserID:      user,
				TenantID:    tenant,
				Email:       email,
				Roles:       roles,
				Permissions: permissions,
				IsAdmin:     admin,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id (required)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant id (required)")
	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role preset: viewer, clerk, manager")
	cmd.Flags().StringSliceVar(&perms, "perm", nil, "Extra permission")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant every permission")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
