package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/pipeline"
	"github.com/koustreak/datchat/internal/prompt"
	"github.com/koustreak/datchat/internal/stream"
)

func newAskCommand(load func(*cobra.Command) (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question, or read questions from stdin",
		Long: `Ask streams the generated SQL and then the answer to stdout.

Without an argument, questions are read one per line from stdin and earlier
questions and answers are kept as conversation context until EOF.`,
		Example: `  datchat ask "How many tracks are there?" --database-file chinook.db
  datchat ask --mode schema --schema-file shop.sql "Top 5 customers by revenue"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			session, err := p.NewSession(terminalSinks(out))
			if err != nil {
				return err
			}

			if len(args) > 0 {
				_, err := askOne(cmd, session, strings.Join(args, " "), nil)
				return err
			}
			return askLoop(cmd, session, cmd.InOrStdin())
		},
	}
}

func terminalSinks(out io.Writer) pipeline.Sinks {
	return pipeline.Sinks{
		SQL:       stream.NewSQLBuffer(stream.SQLMessage, stream.Writer(out)),
		SQLSchema: stream.NewSQLBuffer(stream.SQLMessageSchemaMode, stream.Writer(out)),
		Response:  stream.NewBuffer("", "", stream.Writer(out)),
	}
}

func askOne(cmd *cobra.Command, s *pipeline.Session, question string, history []prompt.Turn) (*pipeline.Answer, error) {
	ans, err := s.Ask(cmd.Context(), question, history)
	if err != nil {
		return ans, err
	}
	if ans.Mode == pipeline.ModeSchema && !ans.ReadOnly {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: this query contains write operations. Review it before running it anywhere.")
	}
	return ans, nil
}

// askLoop answers stdin line by line. A failed turn is reported and the loop
// continues; it is not added to the history.
func askLoop(cmd *cobra.Command, s *pipeline.Session, in io.Reader) error {
	var history []prompt.Turn
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(cmd.ErrOrStderr(), "> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		ans, err := askOne(cmd, s, question, history)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", errs.UserMessage(err))
			continue
		}

		reply := ans.Text
		if reply == "" {
			reply = ans.SQL
		}
		history = append(history,
			prompt.Turn{Role: prompt.RoleUser, Content: question},
			prompt.Turn{Role: prompt.RoleAssistant, Content: reply},
		)
	}
	fmt.Fprintln(cmd.ErrOrStderr())
	return scanner.Err()
}
