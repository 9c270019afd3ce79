package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"corpora/api/internal/authpw"
	"corpora/api/internal/rbac"
	"corpora/api/internal/store"

	"github.com/spf13/cobra"
)

var (
	createRole    string
	passwdRole    string
	userPassword  string
	passwordStdin bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user",
	Long: `Create a user with a bcrypt-hashed password.

Roles: viewer (read only), annotator (cases, models, tone and comments),
editor (also editions and article content), admin (everything).

Example:
  corpora-admin user create avery --role annotator --password-stdin < pw.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runUserCreate,
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Reset the password (and optionally the role) of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserPasswd,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userPasswdCmd)

	userCreateCmd.Flags().StringVar(&createRole, "role", string(rbac.RoleAnnotator), "role of the new user")
	userPasswdCmd.Flags().StringVar(&passwdRole, "role", "", "new role (default: keep the current role)")
	for _, cmd := range []*cobra.Command{userCreateCmd, userPasswdCmd} {
		cmd.Flags().StringVar(&userPassword, "password", "", "password (prefer --password-stdin)")
		cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	}
}

// readPassword returns the --password flag or the first line of in.
func readPassword(in io.Reader) (string, error) {
	if !passwordStdin {
		if userPassword == "" {
			return "", errors.New("a password is required: use --password or --password-stdin")
		}
		return userPassword, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password on stdin")
	}
	return line, nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	db, err := openDatabase(ctx, loadConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := authpw.NewService(store.NewPostgresStore(db)).CreateUser(ctx, args[0], password, createRole)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with role %s\n", user.Username, user.ID, user.Role)
	return nil
}

func runUserPasswd(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	db, err := openDatabase(ctx, loadConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	users := store.NewPostgresStore(db)
	user, err := users.GetUserByUsername(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		return fmt.Errorf("lookup %s: %w", args[0], err)
	}
	if err := authpw.NewService(users).SetPassword(ctx, user.ID, password, passwdRole); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", user.Username)
	return nil
}
