package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nbenliogludev/go-browser-inference/internal/inference"
)

func newAskCmd(a *app) *cobra.Command {
	var question string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the model a free-form question",
		RunE: func(cmd *cobra.Command, args []string) error {
			if question == "" {
				question = strings.Join(args, " ")
			}
			if strings.TrimSpace(question) == "" {
				return fmt.Errorf("a question is required")
			}

			engine, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			answer, err := engine.Ask(cmd.Context(), inference.AskInput{
				Question:  question,
				RequestID: a.requestID,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question text (or pass it as arguments)")
	return cmd
}
