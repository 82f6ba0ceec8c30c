package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "usersapi",
	Short: "Users API notification channel registry",
	Long: `usersapi keeps the notification channels of users and organizations:
e-mail, SMS, Telegram and HTTP(S) webhooks, scoped by message type and
notification context.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./usersapi.yaml or /etc/usersapi/usersapi.yaml)")
}

func main() {
	Execute()
}
