// ABOUTME: cobra subcommands: run, login, conversations, history and profile
// ABOUTME: Each command loads config, builds a session and drives the engine

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/2389/chat-sync/internal/api"
	"github.com/2389/chat-sync/internal/auth"
	"github.com/2389/chat-sync/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open an interactive session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Logging, os.Stderr)

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		ctx, wait, err := a.Start(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer wait()

		out := cmd.OutOrStdout()
		r := newRenderer(a.engine, out)
		go r.run(ctx)

		if err := printConversations(ctx, out, a.engine, ""); err != nil {
			return err
		}
		fmt.Fprintln(out, dim.Sprint("type /help for commands"))
		return newREPL(a.engine, cmd.InOrStdin(), out).run(ctx)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("CHAT_SYNC_PASSWORD")
		}
		if username == "" || password == "" {
			return fmt.Errorf("--username and --password (or CHAT_SYNC_PASSWORD) are required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Logging, os.Stderr)

		client := api.NewClient(cfg.Server.BaseURL, nil, nil, logger)
		sess, err := client.Login(cmd.Context(), username, password)
		if err != nil {
			return fmt.Errorf("signing in: %w", err)
		}

		path := cfg.Auth.TokenFile
		if path == "" {
			path = auth.DefaultTokenPath()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("creating token directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(sess.Token+"\n"), 0o600); err != nil {
			return fmt.Errorf("writing token: %w", err)
		}

		st, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening session cache: %w", err)
		}
		defer st.Close()
		// A different account must not inherit the previous cache.
		if err := st.ClearSession(cmd.Context()); err != nil {
			return fmt.Errorf("clearing session cache: %w", err)
		}
		if err := st.SaveSession(cmd.Context(), store.Session{Token: sess.Token, User: sess.User}); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}

		green.Print("✓ ")
		fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", sess.User.Name())
		return nil
	},
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations [query]",
	Aliases: []string{"ls"},
	Short:   "List conversations, newest activity first",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Logging, os.Stderr)

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		ctx, wait, err := a.Start(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer wait()

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		return printConversations(ctx, cmd.OutOrStdout(), a.engine, query)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Print the message history of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid conversation id %q", args[0])
		}
		pages, _ := cmd.Flags().GetInt("pages")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Logging, os.Stderr)

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		ctx, wait, err := a.Start(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer wait()

		if err := a.engine.Select(ctx, id); err != nil {
			return err
		}
		for range pages - 1 {
			n, err := a.engine.LoadOlder(ctx, id)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
		}

		viewer, err := a.engine.Viewer(ctx)
		if err != nil {
			return err
		}
		msgs, hasMore, err := a.engine.Messages(ctx, id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if hasMore {
			fmt.Fprintln(out, dim.Sprint("── older messages not shown ──"))
		}
		for _, m := range msgs {
			fmt.Fprintln(out, formatMessage(m, viewer.ID))
		}
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update your profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Logging, os.Stderr)

		st, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening session cache: %w", err)
		}
		defer st.Close()
		tokens := auth.NewSource(resolveToken(cmd.Context(), cfg, st))
		client := api.NewClient(cfg.Server.BaseURL, tokens, nil, logger)

		var update api.ProfileUpdate
		update.DisplayName, _ = cmd.Flags().GetString("display-name")
		update.StatusMessage, _ = cmd.Flags().GetString("status")
		update.AvatarColor, _ = cmd.Flags().GetString("color")

		out := cmd.OutOrStdout()
		if update == (api.ProfileUpdate{}) {
			snap, err := client.Profile(cmd.Context())
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			fmt.Fprintf(out, "%s (@%s)\n", bold.Sprint(snap.User.Name()), snap.User.Username)
			if snap.User.StatusMessage != "" {
				fmt.Fprintln(out, dim.Sprint(snap.User.StatusMessage))
			}
			fmt.Fprintf(out, "%d conversations\n", len(snap.Conversations))
			return nil
		}

		user, err := client.UpdateProfile(cmd.Context(), update)
		if err != nil {
			return fmt.Errorf("updating profile: %w", err)
		}
		if sess, err := st.LoadSession(cmd.Context()); err == nil && sess.User.ID == user.ID {
			sess.User = user
			if err := st.SaveSession(cmd.Context(), sess); err != nil {
				logger.Warn("failed to update cached session", "error", err)
			}
		}
		green.Print("✓ ")
		fmt.Fprintf(out, "profile updated for %s\n", user.Name())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringP("username", "u", "", "account username")
	loginCmd.Flags().StringP("password", "p", "", "account password (or CHAT_SYNC_PASSWORD)")

	historyCmd.Flags().Int("pages", 1, "number of history pages to load")

	profileCmd.Flags().String("display-name", "", "new display name")
	profileCmd.Flags().String("status", "", "new status message")
	profileCmd.Flags().String("color", "", "new avatar colour (#rrggbb)")
}
