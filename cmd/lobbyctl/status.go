package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMeowgician/fitnease-lobby/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current lobby, if any",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		rec := a.sess.Current()
		if rec == nil {
			fmt.Println("not in a lobby")
			return nil
		}

		state, err := a.api.GetLobbySession(cmd.Context(), rec.SessionID)
		if err != nil {
			if errors.Is(err, api.ErrNotInLobby) || errors.Is(err, api.ErrSessionEnded) {
				fmt.Println("session", rec.SessionID, "has ended")
				return nil
			}
			return err
		}

		fmt.Printf("session %s  group %s  status %s\n", state.SessionID, state.GroupID, state.Status)
		for _, m := range state.Members {
			marker := " "
			if m.UserID == state.InitiatorID {
				marker = "*"
			}
			fmt.Printf("  %s %s [%s]\n", marker, m.UserName, m.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
