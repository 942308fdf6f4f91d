package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/castaldi/frank/internal/domain"
)

func newChatCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with Frank from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rt, err := buildRuntime(cfg, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if conversationID == "" {
				conversationID = uuid.NewString()
			}

			fmt.Println("Frank è pronto. Scrivi un messaggio, /quit per uscire.")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}

				convCtx, err := rt.trans.Context(conversationID, 20)
				if err != nil {
					log.Error().Err(err).Msg("failed to load conversation context")
					convCtx = &domain.Context{ConversationID: conversationID}
				}
				if err := rt.trans.Append(conversationID, domain.RoleUser, line); err != nil {
					log.Error().Err(err).Msg("failed to record turn")
				}

				reply := rt.router.Handle(cmd.Context(), conversationID, line, convCtx)
				fmt.Println(reply.Text)

				if err := rt.trans.Append(conversationID, domain.RoleAssistant, reply.Text); err != nil {
					log.Error().Err(err).Msg("failed to record turn")
				}
			}
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (default: random)")
	return cmd
}
