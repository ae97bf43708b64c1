package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TheMeowgician/fitnease-lobby/internal/lobbystate"
	"github.com/TheMeowgician/fitnease-lobby/internal/readycheck"
	"github.com/TheMeowgician/fitnease-lobby/internal/realtime"
	"github.com/TheMeowgician/fitnease-lobby/internal/reconcile"
	"github.com/TheMeowgician/fitnease-lobby/pkg/types"
)

var watchAutoAccept bool

// printNotifier surfaces coordinator signals on stdout.
type printNotifier struct{}

func (printNotifier) WorkoutStarting(sessionID string, workout *types.WorkoutPlan) {
	if workout != nil {
		fmt.Printf(">> workout starting: %s (%d exercises)\n", workout.Name, len(workout.Exercises))
		return
	}
	fmt.Printf(">> workout starting (session %s)\n", sessionID)
}

func (printNotifier) ExercisesGenerated(sessionID string, count int) {
	fmt.Printf(">> %d exercises generated\n", count)
}

func (printNotifier) SessionInvalid(reason string) {
	fmt.Println(">>", reason)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Attach to the current lobby and print reconciled state live",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		rec := a.sess.Current()
		if rec == nil {
			return fmt.Errorf("not in a lobby; join one first")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ws, err := realtime.Dial(ctx, viper.GetString("ws-url"), a.log)
		if err != nil {
			return err
		}
		defer ws.Close()

		lobby := lobbystate.NewStore(a.log)
		ready := readycheck.NewStore(a.log)
		manager := realtime.NewManager(ws, a.log)

		coord := reconcile.NewCoordinator(ctx, reconcile.Config{
			API:      a.api,
			Channels: manager,
			Lobby:    lobby,
			Ready:    ready,
			Session:  a.sess,
			Notifier: printNotifier{},
			UserID:   a.userID,
			Log:      a.log,
		})
		defer coord.Shutdown()

		if err := coord.Resume(ctx); err != nil {
			return err
		}

		chat := reconcile.NewChatSender(a.api, lobby, a.userID, a.userName, a.log)
		go readInput(ctx, a, lobby, chat)

		lobbyWatch := lobby.Watch()
		readyWatch := ready.Watch()
		fmt.Println("watching session", rec.SessionID, "(ctrl-c to stop; type to chat, /ready, /check, /start)")
		printRoster(lobby)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-lobbyWatch:
				printRoster(lobby)
			case <-readyWatch:
				handleReadyCheck(ctx, a, ready)
			}
		}
	},
}

// readInput turns stdin lines into commands: "/ready" toggles ready status,
// "/check" starts a ready check, "/start" starts the workout, anything else
// is sent as chat.
func readInput(ctx context.Context, a *app, lobby *lobbystate.Store, chat *reconcile.ChatSender) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sessionID := lobby.SessionID()
		if sessionID == "" {
			fmt.Println("no active lobby")
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		var err error
		switch line {
		case "/ready":
			err = a.api.SetReady(cctx, sessionID, a.userID, !lobby.IsMemberReady(a.userID))
		case "/check":
			err = a.api.StartReadyCheck(cctx, sessionID, a.userID)
		case "/start":
			err = a.api.StartWorkout(cctx, sessionID, a.userID)
		default:
			err = chat.Send(cctx, line)
		}
		cancel()
		if err != nil {
			fmt.Println("warning:", err)
		}
	}
}

func printRoster(lobby *lobbystate.Store) {
	state := lobby.Lobby()
	if state == nil {
		fmt.Println("-- lobby closed --")
		return
	}
	fmt.Printf("-- %s [%s] --\n", state.SessionID, state.Status)
	for _, m := range state.Members {
		fmt.Printf("   %s [%s]\n", m.UserName, m.Status)
	}
	if n := lobby.UnreadCount(); n > 0 {
		fmt.Printf("   (%d unread message(s))\n", n)
	}
}

func handleReadyCheck(ctx context.Context, a *app, ready *readycheck.Store) {
	check := ready.Active()
	if check == nil {
		return
	}
	if check.Result != types.ResultPending {
		fmt.Println("?? ready check finished:", check.Result)
		return
	}
	fmt.Printf("?? ready check by %s (%ds): %d/%d accepted\n",
		check.InitiatorName, check.TimeoutSeconds, ready.AcceptedCount(), len(check.Responses))

	if watchAutoAccept {
		if r, ok := check.Responses[a.userID]; ok && r.Response == types.ResponsePending {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := a.api.RespondToReadyCheck(cctx, check.SessionID, a.userID, types.ResponseAccepted); err != nil {
				fmt.Println("warning: respond failed:", err)
			}
		}
	}
}

func init() {
	watchCmd.Flags().BoolVar(&watchAutoAccept, "auto-accept", false, "accept ready checks automatically")
	rootCmd.AddCommand(watchCmd)
}
