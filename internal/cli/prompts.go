package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidatePromptsCommand(load func(*cobra.Command) (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-prompts",
		Short: "Check the prompt templates for their required placeholders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			set, err := a.cfg.ResolvePrompts()
			if err != nil {
				return err
			}
			if err := set.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All prompt templates contain their required placeholders.")
			return nil
		},
	}
}
