package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	chatmodel "github.com/zhouzirui/z-tavern/chatbot/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/chat"
)

func newReplCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat interactively; an empty line is ignored, /quit exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireEnabled(); err != nil {
				return err
			}
			return runRepl(cmd.Context(), a.chat, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runRepl(ctx context.Context, svc *chat.Service, in io.Reader, out io.Writer) error {
	conversation := svc.StartConversation(ctx)
	defer svc.EndConversation(ctx, conversation.ID)

	for _, m := range conversation.Messages {
		printMessage(out, m)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "/quit" {
			return nil
		}

		reply, err := svc.Send(ctx, conversation.ID, line)
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			continue
		case err != nil:
			return err
		}
		printMessage(out, reply)
	}
}

func printMessage(out io.Writer, m chatmodel.Message) {
	who := "bot"
	if m.IsUser {
		who = "you"
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp, who, m.Text)
}
