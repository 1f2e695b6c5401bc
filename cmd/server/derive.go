package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/models"
)

// deriveCommand computes an identity offline, the same way a verifier
// holding the credentials would.
func deriveCommand() *cobra.Command {
	var f identity.Fields
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the identity for a set of certificate credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := models.ValidateFields(f); err != nil {
				return fmt.Errorf("invalid credentials: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), identity.Derive(f))
			return err
		},
	}
	cmd.Flags().StringVar(&f.FirstName, "first-name", "", "holder first name")
	cmd.Flags().StringVar(&f.LastName, "last-name", "", "holder last name")
	cmd.Flags().StringVar(&f.OrganizationName, "organization", "", "issuing organization")
	cmd.Flags().Int64Var(&f.IssueDate, "issue-date", 0, "issue date, unix seconds")
	cmd.Flags().Int64Var(&f.ExpirationDate, "expiration-date", 0, "expiration date, unix seconds")
	for _, name := range []string{"first-name", "last-name", "organization", "expiration-date"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
