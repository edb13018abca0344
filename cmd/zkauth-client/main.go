// Command zkauth-client registers and logs in against a zkauth server
// without ever sending the password.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/84adam/zkauth/client"
	"github.com/84adam/zkauth/models"
)

var flagServerURL *cli.StringFlag = &cli.StringFlag{
	Name:    "server-url",
	Value:   "http://localhost:8080",
	Usage:   "zkauth server address",
	EnvVars: []string{"ZKAUTH_SERVER_URL"},
}
var flagName *cli.StringFlag = &cli.StringFlag{
	Name:     "name",
	Usage:    "Identity to register or log in as",
	Required: true,
}
var flagPassword *cli.StringFlag = &cli.StringFlag{
	Name:  "password",
	Usage: "Password (prompted for when omitted)",
}
var flagAlgorithm *cli.StringFlag = &cli.StringFlag{
	Name:  "algorithm",
	Value: models.AlgorithmInteractive,
	Usage: "interactive or non-interactive",
}
var flagAllowWeak *cli.BoolFlag = &cli.BoolFlag{
	Name:  "allow-weak-password",
	Usage: "Skip the password strength check on register",
}
var flagTimeout *cli.DurationFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
}
var flagToken *cli.StringFlag = &cli.StringFlag{
	Name:     "token",
	Usage:    "Access token returned by login",
	Required: true,
	EnvVars:  []string{"ZKAUTH_TOKEN"},
}

func main() {
	app := &cli.App{
		Name:  "zkauth-client",
		Usage: "Chaum-Pedersen password authentication client",
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Register the public keys derived from a password",
				Flags: []cli.Flag{flagServerURL, flagName, flagPassword, flagAlgorithm, flagAllowWeak, flagTimeout},
				Action: func(cCtx *cli.Context) error {
					c := client.NewClient(cCtx.String(flagServerURL.Name), nil)
					c.AllowWeakPasswords = cCtx.Bool(flagAllowWeak.Name)

					password, err := passwordFrom(cCtx)
					if err != nil {
						return err
					}
					ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
					defer cancel()

					name := cCtx.String(flagName.Name)
					if err := c.Register(ctx, name, password, cCtx.String(flagAlgorithm.Name)); err != nil {
						return fmt.Errorf("registration failed: %w", err)
					}
					fmt.Printf("Registered %s\n", name)
					return nil
				},
			},
			{
				Name:  "login",
				Usage: "Prove knowledge of the password and print the session",
				Flags: []cli.Flag{flagServerURL, flagName, flagPassword, flagAlgorithm, flagTimeout},
				Action: func(cCtx *cli.Context) error {
					c := client.NewClient(cCtx.String(flagServerURL.Name), nil)

					password, err := passwordFrom(cCtx)
					if err != nil {
						return err
					}
					ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
					defer cancel()

					session, err := c.Login(ctx, cCtx.String(flagName.Name), password, cCtx.String(flagAlgorithm.Name))
					if err != nil {
						return fmt.Errorf("login failed: %w", err)
					}
					fmt.Printf("Logged in as %s\n", session.Identity)
					fmt.Printf("Session ID: %s\n", session.ID)
					fmt.Printf("Expires:    %s\n", session.ExpiresAt.Format(time.RFC3339))
					fmt.Printf("Token:      %s\n", session.AccessToken)
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show the session behind a token",
				Flags: []cli.Flag{flagServerURL, flagToken},
				Action: func(cCtx *cli.Context) error {
					c := client.NewClient(cCtx.String(flagServerURL.Name), nil)
					info, err := c.Session(cCtx.Context, cCtx.String(flagToken.Name))
					if err != nil {
						return err
					}
					fmt.Printf("%s (%s, session %s)\n", info.Identity, info.Method, info.SessionID)
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Revoke a session",
				Flags: []cli.Flag{flagServerURL, flagToken},
				Action: func(cCtx *cli.Context) error {
					c := client.NewClient(cCtx.String(flagServerURL.Name), nil)
					if err := c.Logout(cCtx.Context, cCtx.String(flagToken.Name)); err != nil {
						return err
					}
					fmt.Println("Logged out")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func passwordFrom(cCtx *cli.Context) (string, error) {
	if cCtx.IsSet(flagPassword.Name) {
		return cCtx.String(flagPassword.Name), nil
	}
	password, err := readPassword(fmt.Sprintf("Enter password for %s: ", cCtx.String(flagName.Name)))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	defer func() {
		for i := range password {
			password[i] = 0
		}
	}()
	return string(password), nil
}

// readPassword reads without echo from a terminal, or reads all of stdin
// when it is a pipe. The caller clears the returned slice.
func readPassword(prompt string) ([]byte, error) {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat stdin: %w", err)
	}

	if (fi.Mode() & os.ModeCharDevice) != 0 {
		fmt.Fprint(os.Stderr, prompt)
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(os.Stderr)
		return bytePassword, nil
	}

	bytePassword, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return bytes.TrimRight(bytePassword, "\r\n"), nil
}
