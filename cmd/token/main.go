// Package main mints operator API tokens signed with JWT_SECRET.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/internal/auth"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator API token",
		Long: `Mint a bearer token for the operator API and the events websocket.

The token is scoped to one tenant. Admin tokens may also trigger reprocessing.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runToken,
	}
	cmd.Flags().String("tenant", "", "tenant id the token is scoped to (required)")
	cmd.Flags().String("role", auth.RoleViewer, "operator role (admin, viewer)")
	cmd.Flags().String("subject", "operator", "who the token is issued to")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func runToken(cmd *cobra.Command, _ []string) error {
	tenant, _ := cmd.Flags().GetString("tenant")
	role, _ := cmd.Flags().GetString("role")
	subject, _ := cmd.Flags().GetString("subject")

	tenantID, err := uuid.Parse(tenant)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours).Generate(tenantID, subject, role)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
