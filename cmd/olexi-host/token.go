package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/konashevich/olexi-host/config"
	"github.com/konashevich/olexi-host/internal/runtime"
)

// adminTokenCMD mints a bearer token for the /admin endpoints.
func adminTokenCMD() *cobra.Command {
	var subject string
	var ttl time.Duration
	var cfgPath string

	var cmd = &cobra.Command{
		Use:   "admin-token",
		Short: "Sign an admin-scoped JWT for the operator endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			secret, err := runtime.LoadAdminSecret(cfg)
			if err != nil {
				return err
			}
			tok, err := runtime.SignJWT(subject, secret, ttl, runtime.ScopeAdmin)
			if err != nil {
				return err
			}
			cmd.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")

	return cmd
}
