package main

import (
	"fmt"

	"github.com/glueops/tools-api/pkg/auth"
	"github.com/spf13/cobra"
)

func newHashKeyCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "hash-api-key",
		Short: "Generate an API key and the bcrypt hash to put in the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				generated, err := auth.GenerateKey()
				if err != nil {
					return err
				}

				key = generated
			}

			hash, err := auth.HashKey(key)
			if err != nil {
				return err
			}

			fmt.Printf("key:  %s\n", key)
			fmt.Printf("hash: %s\n", hash)

			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Hash this key instead of generating one")

	return cmd
}
