package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"reelshelf/internal/accounts"
	"reelshelf/internal/auth"
	"reelshelf/internal/catalog"
	"reelshelf/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "reelctl",
	Short:         "Maintenance commands for a reelshelf library",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newScanCmd(), newHashPasswordCmd(), newTokenCmd(), newCheckCmd())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newScanCmd() *cobra.Command {
	var (
		dir   string
		adult bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the videos directory and print the catalog as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd.Context(), cmd.OutOrStdout(), dir, adult)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", envOr("VIDEOS_DIR", "./videos"), "videos directory")
	cmd.Flags().BoolVar(&adult, "adult", false, "include the Adult genre")
	return cmd
}

func runScan(ctx context.Context, out io.Writer, dir string, adult bool) error {
	// stdout carries the catalog, so diagnostics go to stderr
	lg := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(logger.ParseLevel(envOr("LOG_LEVEL", "warn"))).
		With().Timestamp().Logger()
	cat, err := catalog.Scanner{Root: dir, IncludeAdult: adult, Logger: lg}.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(cat)
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for the users file",
		Long:  "Print a bcrypt hash for the users file. The password is read from stdin when not given as an argument.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashPassword(cmd.InOrStdin(), cmd.OutOrStdout(), args)
		},
	}
}

func runHashPassword(in io.Reader, out io.Writer, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password is empty")
	}
	hash, err := accounts.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func newTokenCmd() *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with APP_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(cmd.OutOrStdout(), os.Getenv("APP_SECRET"), user, role, ttl)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "username to embed in the token")
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "role: user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runToken(out io.Writer, secret, user, role string, ttl time.Duration) error {
	if secret == "" {
		return errors.New("APP_SECRET is required")
	}
	if role != auth.RoleUser && role != auth.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}
	svc := auth.NewService(secret, ttl, auth.NewMemoryRevoker())
	token, expires, err := svc.IssueToken(user, user, role)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	fmt.Fprintf(out, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
