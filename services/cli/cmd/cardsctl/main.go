package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tenxcards/services/cli"
	"tenxcards/services/review"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	config     cli.Config
	log        zerolog.Logger
}

func (a *app) load() error {
	if a.configPath == "" {
		path, err := cli.DefaultConfigPath()
		if err != nil {
			return err
		}
		a.configPath = path
	}
	cfg, err := cli.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.config = cfg
	return nil
}

func (a *app) client() (*cli.Client, error) {
	return cli.NewClient(a.config.APIBaseURL, a.config.AccessToken)
}

// engine restores the persisted review round, if any.
func (a *app) engine(ctx context.Context) (*review.Engine, bool, error) {
	store, err := cli.NewFileSnapshotStore(a.config.ResolveSnapshotPath(a.configPath), a.config.AgeIdentity)
	if err != nil {
		return nil, false, err
	}
	engine := review.NewEngine(a.log, review.WithSnapshotStore(store))
	restored, err := engine.Restore(ctx)
	if err != nil {
		return nil, false, err
	}
	return engine, restored, nil
}

func newRootCommand() *cobra.Command {
	a := &app{log: zerolog.New(os.Stderr).Level(zerolog.WarnLevel)}

	cmd := &cobra.Command{
		Use:           "cardsctl",
		Short:         "Terminal client for the tenxcards flashcard service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the cardsctl config file")

	cmd.AddCommand(newLoginCommand(a))
	cmd.AddCommand(newGenerateCommand(a))
	cmd.AddCommand(newReviewCommand(a))
	cmd.AddCommand(newSaveCommand(a))
	cmd.AddCommand(newDiscardCommand(a))
	cmd.AddCommand(newCardsCommand(a))
	return cmd
}

func newLoginCommand(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("CARDSCTL_PASSWORD")
			if password == "" {
				return errors.New("set CARDSCTL_PASSWORD to authenticate")
			}

			client, err := cli.NewClient(a.config.APIBaseURL, "")
			if err != nil {
				return err
			}
			access, refresh, err := client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			a.config.AccessToken = access
			a.config.RefreshToken = refresh
			if err := cli.SaveConfig(a.configPath, a.config); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newGenerateCommand(a *app) *cobra.Command {
	var inputFile string
	var model string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate flashcard proposals from a text file and start a review round",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			engine, restored, err := a.engine(ctx)
			if err != nil {
				return err
			}
			if restored {
				return errors.New("a review round is already in progress; run `cardsctl save` or `cardsctl discard` first")
			}

			raw, err := os.ReadFile(inputFile)
			if err != nil {
				return err
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			if model == "" {
				model = a.config.Model
			}

			if err := engine.Begin(); err != nil {
				return err
			}
			session, proposals, err := client.GenerateCards(ctx, string(raw), model)
			if err != nil {
				_ = engine.GenerationFailed(err.Error())
				return err
			}
			if err := engine.GenerationSucceeded(session.ID, proposals); err != nil {
				return err
			}
			if err := engine.Snapshot(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d proposals ready for review\n",
				session.ID, len(proposals))
			printItems(cmd, engine.Status())
			return nil
		},
	}

	cmd.Flags().StringVar(&inputFile, "file", "", "File containing the source text")
	cmd.Flags().StringVar(&model, "model", "", "Model identifier override")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newReviewCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and decide on the current proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the proposals and their decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, restored, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			if !restored {
				return errors.New("no review round in progress")
			}
			printItems(cmd, engine.Status())
			return nil
		},
	})

	cmd.AddCommand(newDecisionCommand(a, "toggle", "Toggle a proposal between accepted and pending",
		func(e *review.Engine, id string) error { return e.Toggle(id) }))
	cmd.AddCommand(newDecisionCommand(a, "reject", "Reject a proposal permanently",
		func(e *review.Engine, id string) error { return e.Reject(id) }))

	edit := &cobra.Command{
		Use:   "edit <temporary-id>",
		Short: "Rewrite a proposal's text; an edited proposal is accepted",
		Args:  cobra.ExactArgs(1),
	}
	var front, back string
	edit.Flags().StringVar(&front, "front", "", "New front text")
	edit.Flags().StringVar(&back, "back", "", "New back text")
	_ = edit.MarkFlagRequired("front")
	_ = edit.MarkFlagRequired("back")
	edit.RunE = func(cmd *cobra.Command, args []string) error {
		return a.withRound(cmd.Context(), func(e *review.Engine) error {
			return e.Edit(args[0], front, back)
		})
	}
	cmd.AddCommand(edit)

	cmd.AddCommand(&cobra.Command{
		Use:   "accept-all",
		Short: "Accept every remaining proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRound(cmd.Context(), func(e *review.Engine) error { return e.AcceptAll() })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "deselect-all",
		Short: "Return every remaining proposal to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRound(cmd.Context(), func(e *review.Engine) error { return e.DeselectAll() })
		},
	})

	return cmd
}

func newDecisionCommand(a *app, use, short string, op func(*review.Engine, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <temporary-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRound(cmd.Context(), func(e *review.Engine) error {
				return op(e, args[0])
			})
		},
	}
}

// withRound restores the persisted round, applies op, and persists again.
func (a *app) withRound(ctx context.Context, op func(*review.Engine) error) error {
	engine, restored, err := a.engine(ctx)
	if err != nil {
		return err
	}
	if !restored {
		return errors.New("no review round in progress")
	}
	if err := op(engine); err != nil {
		return err
	}
	return engine.Snapshot(ctx)
}

func newSaveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Save the accepted cards and close the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			engine, restored, err := a.engine(ctx)
			if err != nil {
				return err
			}
			if !restored {
				return errors.New("no review round in progress")
			}

			plan, err := engine.BuildSave()
			if err != nil {
				return err
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			ids, err := client.SaveBatch(ctx, plan)
			if err != nil {
				// Keep the round and its decisions for a retry.
				_ = engine.SaveFailed(err.Error())
				_ = engine.Snapshot(ctx)
				return err
			}

			if err := engine.SaveSucceeded(); err != nil {
				return err
			}
			if err := engine.ClearSnapshot(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "saved %d cards\n", len(ids))
			return nil
		},
	}
}

func newDiscardCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Abandon the current review round",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			engine.Discard()
			if err := engine.ClearSnapshot(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "review round discarded")
			return nil
		},
	}
}

func newCardsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "Browse the saved collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var query string
	var page int
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved flashcards",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			cards, total, err := client.ListFlashcards(cmd.Context(), query, page, 20)
			if err != nil {
				return err
			}
			for _, card := range cards {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  [%s]\n  Q: %s\n  A: %s\n",
					card.ID, card.Source, card.FrontText, card.BackText)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d cards\n", len(cards), total)
			return nil
		},
	}
	list.Flags().StringVar(&query, "q", "", "Substring search over both sides")
	list.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.AddCommand(list)

	return cmd
}

func printItems(cmd *cobra.Command, st review.Status) {
	out := cmd.OutOrStdout()
	for _, it := range st.Items {
		mark := " "
		if it.Accepted {
			mark = "x"
		}
		suffix := ""
		if it.Edited() {
			suffix = " (edited)"
		}
		fmt.Fprintf(out, "[%s] %s%s\n  Q: %s\n  A: %s\n", mark, it.TemporaryID, suffix,
			strings.TrimSpace(it.FrontText), strings.TrimSpace(it.BackText))
	}
	fmt.Fprintf(out, "%d accepted, %d rejected, %d generated\n",
		st.AcceptedCount, st.RejectedCount, st.GeneratedCount)
}
