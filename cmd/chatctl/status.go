package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reconnectCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon connection state and cache counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st struct {
			Profile        string `json:"profile"`
			State          string `json:"state"`
			ActiveChat     string `json:"activeChat"`
			CachedChats    int    `json:"cachedChats"`
			CachedMessages int    `json:"cachedMessages"`
		}
		if err := getJSON("/v1/status", nil, &st); err != nil {
			return err
		}
		fmt.Printf("Profile:         %s\n", st.Profile)
		fmt.Printf("Connection:      %s\n", st.State)
		if st.ActiveChat != "" {
			fmt.Printf("Active chat:     %s\n", st.ActiveChat)
		}
		fmt.Printf("Cached chats:    %d\n", st.CachedChats)
		fmt.Printf("Cached messages: %d\n", st.CachedMessages)
		return nil
	},
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Force the daemon to drop and re-establish its relay connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postJSON("/v1/reconnect", nil, nil); err != nil {
			return err
		}
		fmt.Println("reconnected")
		return nil
	},
}
