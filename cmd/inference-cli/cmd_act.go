package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/inference"
)

type actResult struct {
	Chunk  int                     `json:"chunk"`
	Action *inference.ActionResult `json:"action"`
}

func newActCmd(a *app) *cobra.Command {
	var flags struct {
		goal  string
		steps string
		vars  map[string]string
		fill  bool
		page  pageFlags
	}

	cmd := &cobra.Command{
		Use:   "act",
		Short: "Resolve the next browser action for a goal",
		Long: "Walks the page chunk by chunk and prints the first action the model chooses.\n" +
			"Chunks the model skips are passed over; when none yields an action the result is null.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pg, err := a.loadPage(ctx, flags.page)
			if err != nil {
				return err
			}
			engine, err := a.engine(ctx)
			if err != nil {
				return err
			}

			for i, chunk := range pg.Chunks {
				action, err := engine.Act(ctx, inference.ActInput{
					Action:      flags.goal,
					Steps:       flags.steps,
					DOMElements: chunk,
					Screenshot:  pg.Screenshot,
					Variables:   flags.vars,
					RequestID:   a.requestID,
				})
				if err != nil {
					return fmt.Errorf("act: %w", err)
				}
				if action == nil {
					a.logger.Debug("no action in chunk", zap.String("request_id", a.requestID), zap.Int("chunk", i))
					continue
				}
				if flags.fill {
					filled := action.WithVariables(flags.vars)
					action = &filled
				}
				return printJSON(cmd, actResult{Chunk: i, Action: action})
			}
			return printJSON(cmd, actResult{Chunk: -1})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.goal, "goal", "", "What the next action should accomplish (required)")
	f.StringVar(&flags.steps, "steps", "", "Steps already taken")
	f.StringToStringVar(&flags.vars, "var", nil, "Variable exposed to the model as <|KEY|>; repeatable")
	f.BoolVar(&flags.fill, "fill", false, "Substitute variable values into the printed action args")
	flags.page.register(cmd)
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}
