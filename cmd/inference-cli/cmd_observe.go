package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nbenliogludev/go-browser-inference/internal/inference"
)

func newObserveCmd(a *app) *cobra.Command {
	var flags struct {
		instruction string
		parallel    int
		page        pageFlags
	}

	cmd := &cobra.Command{
		Use:   "observe",
		Short: "List the page elements relevant to an instruction",
		Long: "Observes every chunk concurrently and prints the merged element list in chunk order.\n" +
			"The screenshot, when present, is sent with each chunk.",
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

			// Below 1 means no limit.
			limit := flags.parallel
			if limit < 1 {
				limit = -1
			}

			results := make([]*inference.Observation, len(pg.Chunks))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(limit)
			for i, chunk := range pg.Chunks {
				g.Go(func() error {
					obs, err := engine.Observe(gctx, inference.ObserveInput{
						Instruction: flags.instruction,
						DOMElements: chunk,
						Image:       pg.Screenshot,
						RequestID:   a.requestID,
					})
					if err != nil {
						return fmt.Errorf("observe chunk %d/%d: %w", i+1, len(pg.Chunks), err)
					}
					results[i] = obs
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			merged := inference.Observation{Elements: []inference.ObservedElement{}}
			for _, obs := range results {
				merged.Elements = append(merged.Elements, obs.Elements...)
			}
			return printJSON(cmd, merged)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.instruction, "instruction", "", "Which elements to find (required)")
	f.IntVar(&flags.parallel, "parallel", 4, "Maximum chunks observed at once; below 1 means unlimited")
	flags.page.register(cmd)
	_ = cmd.MarkFlagRequired("instruction")
	return cmd
}
