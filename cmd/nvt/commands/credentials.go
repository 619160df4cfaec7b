// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/astahhu/nutzerverwaltungstool/cmd/nvt/cli"
	"github.com/astahhu/nutzerverwaltungstool/lib/sealed"
	"github.com/astahhu/nutzerverwaltungstool/lib/secret"
)

func credentialsCommand() *cli.Command {
	return &cli.Command{
		Name:    "credentials",
		Summary: "Generate identities and seal secrets for the config",
		Description: `Manage the age-encrypted credential files the configuration references
through *_file fields ending in .age. Keygen produces the identity the
tool decrypts with; seal encrypts one secret to one or more public
keys.`,
		Subcommands: []*cli.Command{
			keygenCommand(),
			sealCommand(),
		},
	}
}

func keygenCommand() *cli.Command {
	var output string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age identity for decrypting sealed credentials",
		Description: `Generate a fresh age keypair. The public key (the recipient, for
'credentials seal') goes to stdout. The private key goes to the
--output identity file, or to stderr when no output is given.`,
		Usage: "nvt credentials keygen [flags]",
		Examples: []cli.Example{
			{
				Description: "Create the identity the config's identity_file points at",
				Command:     "nvt credentials keygen --output /etc/nvt/identity.txt",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVar(&output, "output", "", "write the identity to this file (mode 0600)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return fmt.Errorf("generating keypair: %w", err)
			}
			defer keypair.Close()

			if output == "" {
				fmt.Fprintf(os.Stderr, "# Private key (keep this secret, store it safely):\n")
				fmt.Fprintf(os.Stderr, "%s\n", keypair.PrivateKey.String())
				fmt.Fprintf(os.Stdout, "%s\n", keypair.PublicKey)
				return nil
			}

			identity := []byte("# public key: " + keypair.PublicKey + "\n" + keypair.PrivateKey.String() + "\n")
			defer secret.Zero(identity)
			if err := os.WriteFile(output, identity, 0o600); err != nil {
				return fmt.Errorf("writing identity file: %w", err)
			}
			fmt.Fprintf(os.Stderr, "identity written to %s\n", output)
			fmt.Fprintf(os.Stdout, "%s\n", keypair.PublicKey)
			return nil
		},
	}
}

func sealCommand() *cli.Command {
	var (
		in         string
		out        string
		recipients []string
	)
	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt a secret to one or more age recipients",
		Description: `Encrypt a single secret into a .age file for a *_file config field.
The plaintext comes from --in, from a terminal prompt when stdin is a
TTY, or from one line on stdin otherwise. Sealing to several
recipients lets both the sync host and an operator escrow key open
the file.`,
		Usage: "nvt credentials seal --out FILE --recipient KEY... [flags]",
		Examples: []cli.Example{
			{
				Description: "Seal an admin password typed at the prompt",
				Command:     "nvt credentials seal --out /etc/nvt/keycloak.age --recipient age1...",
			},
			{
				Description: "Seal an existing token file to two recipients",
				Command:     "nvt credentials seal --in token.txt --out gitlab.age --recipient age1aaa... --recipient age1bbb...",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flagSet.StringVar(&in, "in", "", "read the plaintext from this file instead of prompting")
			flagSet.StringVar(&out, "out", "", "write the sealed secret to this file (mode 0600)")
			flagSet.StringArrayVar(&recipients, "recipient", nil, "age public key to seal to (repeatable)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			if len(recipients) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}
			for _, recipient := range recipients {
				if err := sealed.ValidateRecipient(recipient); err != nil {
					return fmt.Errorf("--recipient %q: %w", recipient, err)
				}
			}

			plaintext, err := readPlaintext(in)
			if err != nil {
				return err
			}
			defer plaintext.Close()

			ciphertext, err := sealed.Seal(plaintext.Bytes(), recipients)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, ciphertext, 0o600); err != nil {
				return fmt.Errorf("writing sealed secret: %w", err)
			}
			fmt.Fprintf(os.Stderr, "sealed to %s for %d recipient(s)\n", out, len(recipients))
			return nil
		},
	}
}

// readPlaintext obtains the secret to seal: from a file, from a
// terminal prompt with echo off, or from one line on piped stdin.
func readPlaintext(path string) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFromPath(path)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Secret: ")
		line, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading secret: %w", err)
		}
		return secret.NewFromBytes(line)
	}

	return secret.ReadFromPath("-")
}
