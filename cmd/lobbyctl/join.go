package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMeowgician/fitnease-lobby/internal/session"
)

var joinCmd = &cobra.Command{
	Use:   "join <session-id>",
	Short: "Join an existing lobby",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		state, err := a.api.JoinLobby(cmd.Context(), args[0], a.userID, a.userName)
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

		fmt.Printf("joined %s (%d member(s)):\n", state.SessionID, state.MemberCount)
		for _, m := range state.Members {
			fmt.Printf("  %s [%s]\n", m.UserName, m.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
