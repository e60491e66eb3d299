package main

import (
	"fmt"
	"io"
	"os"

	"dupsweep/internal/app"

	"github.com/spf13/cobra"
)

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage audit export encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the age key pair used to encrypt audit exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("Passphrase for the private key: ")
		if err != nil {
			return err
		}
		again, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != again {
			return fmt.Errorf("passphrases do not match")
		}

		if err := app.SetupKeys(cfg, passphrase); err != nil {
			return fmt.Errorf("creating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Export the cleanup audit log",
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the cleanup log as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		upload, _ := cmd.Flags().GetString("upload")
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		if out != "" && upload != "" {
			return fmt.Errorf("--out and --upload cannot be combined")
		}

		a, err := newApp(cmd, "ExportAudit")
		if err != nil {
			return err
		}
		defer a.Close()

		if upload != "" {
			loc, n, err := a.UploadAudit(cmd.Context(), upload, encrypt)
			if err != nil {
				return fmt.Errorf("uploading export: %w", err)
			}
			fmt.Printf("Uploaded %d entries to %s\n", n, loc)
			return nil
		}

		var w io.Writer = os.Stdout
		if out != "" {
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()
			w = f
		}

		n, err := a.ExportAudit(cmd.Context(), w, encrypt)
		if err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		if out != "" {
			fmt.Printf("Exported %d entries to %s\n", n, out)
		}
		return nil
	},
}

var auditDecryptCmd = &cobra.Command{
	Use:   "decrypt FILE",
	Short: "Decrypt an encrypted audit export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp(cmd, "DecryptAudit")
		if err != nil {
			return err
		}
		defer a.Close()

		in, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer in.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if out != "" {
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()
			w = f
		}

		if err := a.DecryptAudit(passphrase, in, w); err != nil {
			return fmt.Errorf("decrypting: %w", err)
		}
		return nil
	},
}
