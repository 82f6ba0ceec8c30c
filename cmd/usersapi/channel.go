package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vanaheimr/usersapi/internal/notification"
)

var embedded bool

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Work with notification channel documents",
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Parse a channel JSON document (or an array of them) and print the normalized form",
	Long: `Reads a channel document from the file, or from stdin when the file is
omitted or "-", and prints it with defaults resolved. Exits non-zero when the
document is malformed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		out, err := normalize(data, embedded)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

// normalize re-encodes a single channel or an array of channels.
func normalize(data []byte, embedded bool) ([]byte, error) {
	if firstNonSpace(data) == '[' {
		channels, err := notification.ParseList(data)
		if err != nil {
			return nil, err
		}
		s := notification.NewStore()
		for _, ch := range channels {
			s.Add(ch)
		}
		return s.MarshalJSON()
	}

	ch, err := notification.Parse(data)
	if err != nil {
		return nil, err
	}
	return ch.ToJSON(embedded)
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b
	}
	return 0
}

func init() {
	validateCmd.Flags().BoolVar(&embedded, "embedded", false, "omit the @context marker")
	channelCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(channelCmd)
}
