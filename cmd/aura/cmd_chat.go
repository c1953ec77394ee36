package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aura/cmd/aura/ui"
	"aura/internal/api"
	"aura/internal/chat"
	"aura/internal/guest"
	"aura/internal/logging"
	"aura/internal/session"
)

// chatCmd launches the interactive chat screen
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat (default)",
	Long: `Opens the full-screen chat. Signed-in users see their stored history.

Guests get a one-time reminder to sign in after a short delay; press
Esc to close it or g to keep chatting as a guest.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

// askCmd sends one question and prints the reply
var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask the assistant a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

// historyCmd prints the stored conversation
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print your stored chat history",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	deps := ui.Deps{
		Chat:   newChat(),
		Store:  store,
		Logger: logger,
	}
	if !cfg.Guest.Disabled {
		deps.Guest = guest.New(store, cfg.GetGuestPromptDelay(),
			guest.WithLogger(categoryLogger(logging.CategoryGuest)))
	}
	if fs, ok := store.(*session.FileStore); ok {
		changes, err := fs.Watch(ctx)
		if err != nil {
			logger.Warn("session file watch unavailable", zap.Error(err))
		} else {
			deps.Changes = changes
		}
	}
	return ui.Run(deps)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	question := strings.Join(args, " ")

	c := newChat()
	defer c.Close()

	ex, ok := c.Send(ctx, question)
	if !ok {
		return errors.New("nothing to ask")
	}
	reply, err := ex.Wait(ctx)
	if reply.Content != "" {
		fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
	}
	if err != nil {
		return fmt.Errorf("assistant unavailable: %w", err)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	c := newChat()
	defer c.Close()

	if err := c.Hydrate(commandContext(cmd)); err != nil {
		if errors.Is(err, chat.ErrNoSession) {
			return errors.New("not signed in; run 'aura login' first")
		}
		if api.IsUnauthorized(err) {
			return errors.New("session expired; run 'aura login' again")
		}
		return err
	}

	out := cmd.OutOrStdout()
	for _, m := range c.Transcript() {
		speaker := "AURA"
		if m.Role == chat.RoleUser {
			speaker = "You"
		}
		fmt.Fprintf(out, "%s: %s\n", speaker, m.Content)
	}
	return nil
}
