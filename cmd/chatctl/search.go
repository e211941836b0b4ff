package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/deskbase/chatd/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	searchCmd.Flags().StringVar(&flagSearchChat, "chat", "", "restrict the search to one chat")
	rootCmd.AddCommand(searchCmd)
}

var flagSearchChat string

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over the local message cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		q.Set("q", args[0])
		if flagSearchChat != "" {
			q.Set("chat", flagSearchChat)
		}
		var results []store.SearchResult
		if err := getJSON("/v1/search", q, &results); err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, r := range results {
			ts := time.Unix(r.Message.Timestamp, 0).Local().Format("2006-01-02 15:04")
			fmt.Printf("%s  [%s] %s: %s\n", ts, r.Message.ChatID, r.Message.SenderName, r.Snippet)
		}
		return nil
	},
}
