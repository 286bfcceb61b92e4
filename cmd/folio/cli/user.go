package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foliodb/folio/internal/service"
	"github.com/foliodb/folio/internal/site"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "user",
		Aliases: []string{"users"},
		Short:   "Manage users",
		Long:    "Create and list the accounts that can sign in to the write API.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		Example: `  folio user create --email admin@example.com --role admin --password secret123
  folio user create --email editor@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(email, password, role)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&role, "role", site.RoleEditor, "Role: admin or editor")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runUserCreate(email, password, role string) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}

	// Prompt for password if not provided
	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if password != string(confirmBytes) {
			return fmt.Errorf("passwords do not match")
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	db, err := openDB(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	// Only the user store is needed; no tokens are issued here.
	authSvc := service.NewAuthService(db, "cli", 0)
	u, err := authSvc.CreateUser(ctx, email, password, role)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created %s user %q (id=%d)\n", u.Role, u.Email, u.ID)
	return nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	db, err := openDB(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	users, err := service.NewAuthService(db, "cli", 0).ListUsers(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Println("No users yet. Use 'folio user create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-32s %-8s %-24s\n", "ID", "EMAIL", "ROLE", "CREATED")
	fmt.Printf("%-6s %-32s %-8s %-24s\n", "--", "-----", "----", "-------")
	for _, u := range users {
		fmt.Printf("%-6d %-32s %-8s %-24s\n", u.ID, u.Email, u.Role, u.CreatedAt)
	}

	return nil
}
