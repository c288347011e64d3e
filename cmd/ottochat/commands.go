package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/ottochat/internal/domain"
)

func newAskCmd(f *flags) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask <text>",
		Short: "Send one query and print the reply",
		Long:  "Send one query and print the reply. With --session the query continues a saved conversation.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := wire(ctx, f, false)
			if err != nil {
				return err
			}
			defer d.Close()

			if sessionID != "" {
				if _, err := d.engine.ListSessions(ctx); err != nil {
					return err
				}
				if err := d.engine.SwitchSession(ctx, sessionID); err != nil {
					return err
				}
			}

			if err := d.engine.Send(ctx, strings.Join(args, " ")); err != nil {
				return err
			}
			last, ok := d.store.Last()
			if !ok || last.Author != domain.AuthorAssistant {
				return errors.New("no reply")
			}
			fmt.Fprintln(cmd.OutOrStdout(), last.Text)

			if cur := d.engine.Snapshot().CurrentSession; cur != nil && sessionID == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", cur.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue the saved conversation with this id")
	return cmd
}

func newSessionsCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversations",
	}
	cmd.AddCommand(newSessionsListCmd(f))
	cmd.AddCommand(newSessionsShowCmd(f))
	cmd.AddCommand(newSessionsDeleteCmd(f))
	cmd.AddCommand(newSessionsRenameCmd(f))
	return cmd
}

func newSessionsListCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := wire(ctx, f, false)
			if err != nil {
				return err
			}
			defer d.Close()

			if !d.sessions.Authenticated() {
				return domain.ErrAuthRequired
			}
			list, err := d.engine.ListSessions(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tUPDATED\tLAST MESSAGE")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Title, s.UpdatedAt.Local().Format(time.DateTime), truncateStr(s.LastMessagePreview, 50))
			}
			return w.Flush()
		},
	}
}

func newSessionsShowCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := wire(ctx, f, false)
			if err != nil {
				return err
			}
			defer d.Close()

			msgs, err := d.client.SessionMessages(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range msgs {
				fmt.Fprintf(out, "%s> %s\n\n", m.Author, m.Content)
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := wire(ctx, f, false)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.engine.DeleteSession(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newSessionsRenameCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := wire(ctx, f, false)
			if err != nil {
				return err
			}
			defer d.Close()

			title := strings.Join(args[1:], " ")
			if err := d.engine.RenameSession(ctx, args[0], title); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %q\n", args[0], title)
			return nil
		},
	}
}

func newTranscribeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a recorded audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := wire(ctx, f, false)
			if err != nil {
				return err
			}
			defer d.Close()

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			text, err := d.engine.Transcribe(ctx, file, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
