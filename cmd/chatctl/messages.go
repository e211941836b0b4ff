package main

import (
	"fmt"
	"net/url"

	"github.com/deskbase/chatd/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	messagesCmd.Flags().BoolVar(&flagOlder, "older", false, "load one more page of history before printing")
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(readCmd)
}

var flagOlder bool

var messagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "Print the loaded messages of a chat, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if flagOlder {
			q.Set("older", "1")
		}
		var msgs []model.Message
		if err := getJSON("/v1/chats/"+args[0]+"/messages", q, &msgs); err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Printf("%s  %-15s %s\n", m.Timestamp.Local().Format("2006-01-02 15:04"), m.SenderName, m.Content)
		}
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:   "open <chat-id>",
	Short: "Open a chat: mark it active, load history, clear unread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/chats/"+args[0]+"/open", nil, nil)
	},
}

var readCmd = &cobra.Command{
	Use:   "read <chat-id>",
	Short: "Mark all messages in a chat as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return postJSON("/v1/chats/"+args[0]+"/read", nil, nil)
	},
}
