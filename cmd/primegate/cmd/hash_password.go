package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imovelprime/primegate/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password read from stdin for metrics.password_hash",
	Long: `Reads one line from standard input and prints its argon2id stored form,
suitable for the metrics.password_hash configuration key.

  echo -n 's3cret' | primegate hash-password`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password from stdin: %w", err)
		}
		stored, err := auth.NewArgon2idHasher().Hash(strings.TrimRight(line, "\r\n"))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), stored)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
