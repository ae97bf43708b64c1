package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMeowgician/fitnease-lobby/internal/session"
)

var createCmd = &cobra.Command{
	Use:   "create <group-id>",
	Short: "Create a group-workout lobby and join it as initiator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		state, err := a.api.CreateLobby(cmd.Context(), args[0], a.userID, a.userName, nil)
		if err != nil {
			return err
		}

		if err := a.sess.Save(session.Record{
			SessionID:   state.SessionID,
			GroupID:     state.GroupID,
			InitiatorID: state.InitiatorID,
			UserID:      a.userID,
		}); err != nil {
			return fmt.Errorf("persist session record: %w", err)
		}
		if err := a.sess.SetReconnectSession(state.SessionID); err != nil {
			return fmt.Errorf("persist reconnect record: %w", err)
		}

		fmt.Printf("lobby created: session %s (group %s)\n", state.SessionID, state.GroupID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
