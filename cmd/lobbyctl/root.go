package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "lobbyctl",
	Short: "FitNEase group-workout lobby client",
	Long: `lobbyctl drives the group-workout lobby subsystem from the terminal:
create or join a lobby, toggle ready status, run ready checks, chat, and
watch the reconciled lobby state live.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("api-url", "http://localhost:8080", "lobby service base URL")
	pf.String("ws-url", "ws://localhost:8080/ws", "realtime websocket URL")
	pf.String("token", "", "bearer token")
	pf.String("user-id", "", "acting user id")
	pf.String("user-name", "", "acting user display name")
	pf.String("session-file", "", "path of the persisted session record")
	pf.Bool("verbose", false, "debug logging")

	for _, name := range []string{"api-url", "ws-url", "token", "user-id", "user-name", "session-file", "verbose"} {
		if err := viper.BindPFlag(name, pf.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	_ = godotenv.Load()

	viper.SetEnvPrefix("FITNEASE")
	viper.AutomaticEnv()

	viper.SetConfigName("lobbyctl")
	viper.SetConfigType("toml")
	if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(dir + "/fitnease")
	}
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "warning: could not read config:", err)
		}
	}
}

func newLogger() *zap.Logger {
	if viper.GetBool("verbose") {
		log, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return log
	}
	return zap.NewNop()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
