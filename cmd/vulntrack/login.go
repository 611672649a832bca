package vulntrack

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vulntrack/vulntrack/internal/session"
)

var flagUser string

func init() {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the backend and save the session token",
		Long: "Prompts for the password (hidden on a terminal, read from stdin otherwise) and stores the token in ~/.vulntrack/session.json. " +
			"VULNTRACK_TOKEN, when set, overrides the saved token.",
		RunE: runLogin,
	}
	loginCmd.Flags().StringVarP(&flagUser, "user", "u", "", "username")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.ClearToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	user := strings.TrimSpace(flagUser)
	if user == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Username: ")
		if user, err = readLine(in); err != nil {
			return fmt.Errorf("read username: %w", err)
		}
	}
	if user == "" {
		return fmt.Errorf("username is required")
	}
	password, err := readPassword(cmd, in)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	c := newClient(s, store)
	c.SetToken("")
	token, err := c.Login(commandContext(cmd), user, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := store.SaveToken(session.Token{Value: token, APIURL: c.BaseURL(), User: user}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", c.BaseURL(), user)
	return nil
}

// readPassword hides input on a terminal and reads a plain line otherwise,
// so `echo $PW | vulntrack login -u me` works in scripts.
func readPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	return readLine(in)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
