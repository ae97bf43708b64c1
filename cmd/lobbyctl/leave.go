package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMeowgician/fitnease-lobby/internal/api"
)

var leaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Leave the current lobby",
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

		if err := a.api.LeaveLobby(cmd.Context(), rec.SessionID, a.userID); err != nil {
			if !errors.Is(err, api.ErrNotInLobby) {
				// Best effort; the local record is cleared either way so the
				// user can't get stuck pointing at a dead session.
				fmt.Println("warning:", err)
			}
		}

		if err := a.sess.Clear(); err != nil {
			return fmt.Errorf("clear session record: %w", err)
		}
		if err := a.sess.ClearReconnectSession(); err != nil {
			return fmt.Errorf("clear reconnect record: %w", err)
		}
		fmt.Println("left", rec.SessionID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(leaveCmd)
}
