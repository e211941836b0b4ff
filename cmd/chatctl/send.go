package main

import (
	"fmt"
	"strings"

	"github.com/deskbase/chatd/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>...",
	Short: "Send a text message to a chat",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"content": strings.Join(args[1:], " ")}
		var msg model.Message
		if err := postJSON("/v1/chats/"+args[0]+"/messages", body, &msg); err != nil {
			return err
		}
		fmt.Printf("sent %s\n", msg.ID)
		return nil
	},
}
