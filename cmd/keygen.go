package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"reactor/slackbridge/pkg/crypto"
)

var (
	keygenBits       int
	keygenPassphrase string
	keygenOut        string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an RSA key pair for PUBLIC_KEY_PEM and PRIVATE_KEY_PEM",
	RunE: func(cmd *cobra.Command, _ []string) error {
		passphrase := keygenPassphrase
		if passphrase == "" {
			passphrase = os.Getenv("PASSPHRASE")
		}
		if passphrase == "" {
			return errors.New("a passphrase is required: pass --passphrase or set PASSPHRASE")
		}

		kp, err := crypto.GenerateKeyPair(keygenBits, []byte(passphrase))
		if err != nil {
			return err
		}

		if keygenOut == "" {
			out := cmd.OutOrStdout()
			fmt.Fprint(out, string(kp.PublicPEM))
			fmt.Fprint(out, string(kp.PrivatePEM))
			return nil
		}

		if err := os.MkdirAll(keygenOut, 0o700); err != nil {
			return err
		}
		pubPath := filepath.Join(keygenOut, "public.pem")
		privPath := filepath.Join(keygenOut, "private.pem")
		if err := os.WriteFile(pubPath, kp.PublicPEM, 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(privPath, kp.PrivatePEM, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", pubPath, privPath)
		return nil
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keygenBits, "bits", 2048, "RSA key size")
	keygenCmd.Flags().StringVar(&keygenPassphrase, "passphrase", "", "passphrase protecting the private key (default $PASSPHRASE)")
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "", "directory for public.pem and private.pem (default stdout)")
}
