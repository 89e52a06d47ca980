package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/amical/internal/views"
)

func newPersonasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "personas",
		Short: "List or create AI friends",
	}
	cmd.AddCommand(newPersonasListCmd(), newPersonasCreateCmd())
	return cmd
}

func newPersonasListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List AI friends, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			built, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer built.Cleanup()

			personas, err := views.NewListing(built.Store).Load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, personas)
			}
			if len(personas) == 0 {
				fmt.Fprintln(out, "no friends yet")
				return nil
			}
			for _, p := range personas {
				fmt.Fprintf(out, "%s\t%s, %d ans\t%s\n", p.ID, p.Name, p.Age, p.Occupation)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newPersonasCreateCmd() *cobra.Command {
	var form views.CreateForm
	var age string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an AI friend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			form.Age = views.AgeText(age)
			np, err := form.Validate()
			if err != nil {
				var verr *views.ValidationError
				if errors.As(err, &verr) {
					for _, field := range sortedFields(verr.Fields) {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, verr.Fields[field])
					}
				}
				return err
			}

			built, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer built.Cleanup()

			p, err := built.Store.CreatePersona(cmd.Context(), np)
			if err != nil {
				return fmt.Errorf("%s: %w", views.NoticeCreateFailed, err)
			}
			return writeJSON(cmd.OutOrStdout(), p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.Name, "name", "", "First name")
	f.StringVar(&age, "age", "", "Age in years")
	f.StringVar(&form.Occupation, "occupation", "", "Occupation")
	f.StringVar(&form.Personality, "personality", "", "Personality traits")
	f.StringVar(&form.Tone, "tone", "", "Speaking tone")
	f.StringVar(&form.Background, "background", "", "Background")
	f.StringVar(&form.Dream, "dream", "", "Dream (optional)")
	f.StringVar(&form.FamilyInfo, "family", "", "Family (optional)")
	f.StringVar(&form.Story, "story", "", "Personal story (optional)")
	f.StringVar(&form.DailyMessageTime, "daily-time", "", "Daily message time HH:MM (default 18:00)")
	return cmd
}

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <persona-id> <message...>",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			built, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer built.Cleanup()

			result, err := built.Chat.Send(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return fmt.Errorf("%s: %w", views.SendNotice(err), err)
			}
			if result.AssistantTurn != nil {
				fmt.Fprintln(cmd.OutOrStdout(), result.AssistantTurn.Content)
			}
			return nil
		},
	}
}

func newTurnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "turns <persona-id>",
		Short: "Print the conversation history, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			built, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer built.Cleanup()

			if _, err := built.Store.GetPersona(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("%s: %w", views.NoticeLoadFailed, err)
			}
			turns, err := built.Store.ListTurns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range turns {
				fmt.Fprintf(out, "[%s] %s: %s\n", t.CreatedAt.Format("15:04"), t.Role, t.Content)
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedFields(fields map[string]string) []string {
	order := []string{"name", "age", "occupation", "personality", "tone", "background", "daily_message_time"}
	out := make([]string, 0, len(fields))
	for _, k := range order {
		if _, ok := fields[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
