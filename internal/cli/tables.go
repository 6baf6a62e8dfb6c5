package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/pipeline"
)

func newTablesCommand(load func(*cobra.Command) (*app, error)) *cobra.Command {
	var showSchema bool

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables the SQL model can see",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if mode, _ := pipeline.ParseMode(a.cfg.Mode); mode != pipeline.ModeStandard {
				return errs.New(errs.ErrKindInvalidInput, "tables needs a database connection; schema mode has none")
			}

			store, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			db, err := a.openDB(cmd.Context(), store)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showSchema {
				text, err := db.TableInfo(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, text)
				return nil
			}

			tables, err := db.UsableTableNames(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(out, t)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSchema, "schema", false, "print the schema text given to the SQL model")
	return cmd
}
