package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/soyeahso/clinicbot/internal/notify"
)

func newMailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Manage confirmation email delivery",
	}

	cmd.AddCommand(newMailAuthCmd())
	return cmd
}

func newMailAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorise the Gmail transport and cache its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			credentials := cfg.Mail.Gmail.CredentialsFile
			if credentials == "" {
				credentials = filepath.Join(paths.Credentials, "gmail-credentials.json")
			}
			tokenFile := cfg.Mail.Gmail.TokenFile
			if tokenFile == "" {
				tokenFile = filepath.Join(paths.Credentials, "gmail-token.json")
			}

			oc, err := notify.OAuthConfig(credentials)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this link in your browser, then paste the authorization code:\n%s\n> ",
				oc.AuthCodeURL("clinicbot", oauth2.AccessTypeOffline))

			code, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no authorization code entered")
			}

			tok, err := oc.Exchange(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("exchanging authorization code: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(tokenFile), 0o700); err != nil {
				return err
			}
			if err := notify.SaveToken(tokenFile, tok); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", tokenFile)
			return nil
		},
	}
}
