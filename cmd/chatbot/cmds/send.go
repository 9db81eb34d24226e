package cmds

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireEnabled(); err != nil {
				return err
			}

			ctx := cmd.Context()
			conversation := a.chat.StartConversation(ctx)
			defer a.chat.EndConversation(ctx, conversation.ID)

			reply, err := a.chat.Send(ctx, conversation.ID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
			return nil
		},
	}
}
