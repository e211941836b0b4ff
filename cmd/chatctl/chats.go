package main

import (
	"fmt"
	"strings"

	"github.com/deskbase/chatd/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	chatsCmd.Flags().StringVar(&flagNewWith, "new-with", "", "create (or reuse) a private chat with the given user id")
	rootCmd.AddCommand(chatsCmd)
}

var flagNewWith string

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagNewWith != "" {
			var chat model.Chat
			body := map[string]any{"type": model.ChatPrivate, "participantId": flagNewWith}
			if err := postJSON("/v1/chats", body, &chat); err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", chat.ID, chat.Name)
			return nil
		}
		var chats []model.Chat
		if err := getJSON("/v1/chats", nil, &chats); err != nil {
			return err
		}
		if len(chats) == 0 {
			fmt.Println("no chats")
			return nil
		}
		for _, ch := range chats {
			unread := ""
			if ch.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d unread)", ch.UnreadCount)
			}
			preview := ""
			if ch.LastMessage != nil {
				preview = truncate(ch.LastMessage.Content, 50)
			}
			fmt.Printf("%s  %-20s%s  %s\n", ch.ID, ch.Name, unread, preview)
		}
		return nil
	},
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
