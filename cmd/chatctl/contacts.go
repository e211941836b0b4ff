package main

import (
	"fmt"

	"github.com/deskbase/chatd/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(contactsCmd)
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List the contact directory with live presence",
	RunE: func(cmd *cobra.Command, args []string) error {
		var contacts []model.Participant
		if err := getJSON("/v1/contacts", nil, &contacts); err != nil {
			return err
		}
		for _, ct := range contacts {
			mark := " "
			if ct.Online {
				mark = "*"
			}
			fmt.Printf("%s %s  %-20s %s\n", mark, ct.ID, ct.Name, ct.Email)
		}
		return nil
	},
}
