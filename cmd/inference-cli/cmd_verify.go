package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nbenliogludev/go-browser-inference/internal/inference"
)

func newVerifyCmd(a *app) *cobra.Command {
	var flags struct {
		goal  string
		steps string
		page  pageFlags
	}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check whether a goal has been accomplished",
		Long: "Asks the model whether the steps taken so far completed the goal. The page is optional;\n" +
			"when given, its elements and screenshot are included. Any unclear answer counts as not completed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			in := inference.VerifyInput{
				Goal:      flags.goal,
				Steps:     flags.steps,
				RequestID: a.requestID,
			}
			if flags.page.provided() {
				pg, err := a.loadPage(ctx, flags.page)
				if err != nil {
					return err
				}
				in.DOMElements = pg.Elements
				in.Screenshot = pg.Screenshot
			}

			engine, err := a.engine(ctx)
			if err != nil {
				return err
			}
			completed, err := engine.VerifyActCompletion(ctx, in)
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			return printJSON(cmd, map[string]bool{"completed": completed})
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.goal, "goal", "", "The overall goal (required)")
	f.StringVar(&flags.steps, "steps", "", "Steps taken so far (required)")
	flags.page.register(cmd)
	_ = cmd.MarkFlagRequired("goal")
	_ = cmd.MarkFlagRequired("steps")
	return cmd
}
