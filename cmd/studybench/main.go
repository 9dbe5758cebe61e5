package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"studybench/engine/internal/engine"
	"studybench/engine/internal/envfile"
	"studybench/engine/internal/errinfo"
)

// studybench is a debug CLI that runs the engine in-process, useful
// for poking at the library and the assistant without the desktop app.
func main() {
	envfile.Load()

	var eng *engine.Engine
	root := &cobra.Command{
		Use:           "studybench",
		Short:         "StudyBench engine debug CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			var err error
			eng, err = engine.New()
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if eng != nil {
				_ = eng.Close()
			}
		},
	}

	call := func(fn func(context.Context, json.RawMessage) (any, *errinfo.ErrorInfo), params any) error {
		var raw json.RawMessage
		if params != nil {
			data, err := json.Marshal(params)
			if err != nil {
				return err
			}
			raw = data
		}
		result, errInfo := fn(context.Background(), raw)
		if errInfo != nil {
			detail := errInfo.Detail
			if detail == "" {
				detail = errInfo.ErrorCode
			}
			return fmt.Errorf("%s: %s", errInfo.ErrorCode, detail)
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	askCmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message to the study assistant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			return call(eng.AssistantSendMessage, map[string]string{
				"session_id": session,
				"message":    args[0],
			})
		},
	}
	askCmd.Flags().String("session", "", "session id to continue a conversation")

	dueCmd := &cobra.Command{
		Use:   "due",
		Short: "List cards due for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deckID, _ := cmd.Flags().GetString("deck")
			limit, _ := cmd.Flags().GetInt("limit")
			return call(eng.CardsListDue, map[string]any{
				"deck_id": deckID,
				"limit":   limit,
			})
		},
	}
	dueCmd.Flags().String("deck", "", "limit to one deck id")
	dueCmd.Flags().Int("limit", 20, "maximum number of cards")

	decksCmd := &cobra.Command{
		Use:   "decks",
		Short: "List decks",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return call(eng.DecksList, nil)
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show study statistics",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return call(eng.StatsGet, nil)
		},
	}

	root.AddCommand(askCmd, dueCmd, decksCmd, statsCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
