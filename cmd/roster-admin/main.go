// ABOUTME: Operator CLI for the roster directory
// ABOUTME: Talks to the store directly for account and session maintenance

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/rosterhq/roster/internal/auth"
	"github.com/rosterhq/roster/internal/config"
	"github.com/rosterhq/roster/internal/store"
)

const banner = `roster-admin`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "create-user":
		err = cmdCreateUser(ctx, args)
	case "reset-password":
		err = cmdResetPassword(ctx, args)
	case "list-users":
		err = cmdListUsers(ctx, args)
	case "gc-sessions":
		err = cmdGCSessions(ctx)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Println(banner)
	fmt.Println()
	fmt.Println("Usage: roster-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  create-user --name NAME --username USER --email EMAIL [--password PW]")
	fmt.Println("                          Create an account (generates a password if omitted)")
	fmt.Println("  reset-password --email EMAIL [--password PW]")
	fmt.Println("                          Set a new password for an account")
	fmt.Println("  list-users [--search Q] [--page N] [--limit N]")
	fmt.Println("                          List accounts")
	fmt.Println("  gc-sessions             Delete expired sessions")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  ROSTER_CONFIG           Path to rosterd.yaml (default: ~/.config/roster/rosterd.yaml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  roster-admin create-user --name 'Ada Lovelace' --username ada --email ada@example.com")
	fmt.Println("  roster-admin list-users --search ada")
	fmt.Println()
}

// getConfigPath mirrors rosterd's config resolution.
func getConfigPath() string {
	if envPath := os.Getenv("ROSTER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "rosterd.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "roster", "rosterd.yaml")
}

// openStore loads the config and opens the configured backend.
func openStore(ctx context.Context) (store.Store, *config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	var st store.Store
	if cfg.Database.Driver == "postgres" {
		st, err = store.NewPostgresStore(ctx, cfg.Database.DSN)
	} else {
		st, err = store.NewSQLiteStore(cfg.Database.Path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return st, cfg, nil
}

// parseFlags reads "--key value" and "--key=value" pairs into a map.
func parseFlags(args []string) (map[string]string, error) {
	flags := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		key := strings.TrimPrefix(arg, "--")
		if eq := strings.Index(key, "="); eq >= 0 {
			flags[key[:eq]] = key[eq+1:]
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("--%s requires a value", key)
		}
		flags[key] = args[i+1]
		i++
	}
	return flags, nil
}

// generatePassword returns a random password that satisfies the
// registration policy (length, upper, lower, digit).
func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "Rr1" + base64.RawURLEncoding.EncodeToString(b), nil
}

func cmdCreateUser(ctx context.Context, args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(flags["name"])
	username := flags["username"]
	email := flags["email"]
	if name == "" || username == "" || email == "" {
		return fmt.Errorf("--name, --username, and --email are required")
	}

	password := flags["password"]
	generated := false
	if password == "" {
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generating password: %w", err)
		}
		generated = true
	}

	st, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	passwordHash, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().UTC()
	user := &store.User{
		ID:           uuid.New().String(),
		Name:         name,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := st.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created account %s\n", username)
	fmt.Printf("  ID:    %s\n", user.ID)
	fmt.Printf("  Email: %s\n", email)
	if generated {
		fmt.Printf("  Password: %s\n", password)
	}
	return nil
}

func cmdResetPassword(ctx context.Context, args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	email := flags["email"]
	if email == "" {
		return fmt.Errorf("--email is required")
	}

	password := flags["password"]
	generated := false
	if password == "" {
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generating password: %w", err)
		}
		generated = true
	}

	st, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := st.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("looking up account: %w", err)
	}

	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	passwordHash, err := hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := st.UpdateUserPassword(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Password reset for %s\n", user.Username)
	if generated {
		fmt.Printf("  Password: %s\n", password)
	}
	return nil
}

func cmdListUsers(ctx context.Context, args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	page := 1
	if raw := flags["page"]; raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return fmt.Errorf("--page must be a positive integer")
		}
	}
	limit := 50
	if raw := flags["limit"]; raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return fmt.Errorf("--limit must be a positive integer")
		}
	}

	st, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	filter := store.UserFilter{
		Search: flags["search"],
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	total, err := st.CountUsers(ctx, filter)
	if err != nil {
		return fmt.Errorf("counting accounts: %w", err)
	}

	users, err := st.ListUsers(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("Accounts (%d total)\n\n", total)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNAME\tEMAIL\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(u.ID, 12),
			u.Username,
			truncate(u.Name, 24),
			u.Email,
			u.CreatedAt.Format("2006-01-02"),
		)
	}
	return w.Flush()
}

func cmdGCSessions(ctx context.Context) error {
	st, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.DeleteExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("deleting expired sessions: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Removed %d expired session(s)\n", removed)
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
