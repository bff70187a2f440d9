package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Intent-Gate/Intentgate/internal/domain/auth"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Generate an API key and its argon2id hash",
	Long: `Generate a fresh API key and the argon2id hash to configure it.

The raw key is printed once; hand it to the caller and keep only the
hash. Put the hash in the auth.api_keys entry of intent-gate.yaml:

  auth:
    api_keys:
      - name: ops
        role: admin
        hash: "$argon2id$..."`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := auth.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		hash, err := auth.HashKey(raw)
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Printf("key:  %s\n", raw)
		fmt.Printf("hash: %s\n", hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
