package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-inference/internal/inference"
	"github.com/nbenliogludev/go-browser-inference/internal/llm"
)

// pageText is the target when no --schema is given.
type pageText struct {
	Content string `json:"content" description:"the extracted text, verbatim"`
}

func newExtractCmd(a *app) *cobra.Command {
	var flags struct {
		instruction string
		schemaFile  string
		page        pageFlags
	}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract structured data from a page",
		Long: "Runs the extract, refine and metadata passes over each chunk in order, carrying\n" +
			"the refined result forward, and stops early once the model reports completion.",
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

			var result any
			if flags.schemaFile == "" {
				schema, err := llm.SchemaFor[pageText]("Extraction", false)
				if err != nil {
					return err
				}
				result, err = extractChunks[pageText](ctx, a, engine, schema, flags.instruction, pg.Chunks)
				if err != nil {
					return err
				}
			} else {
				schema, err := loadSchema(flags.schemaFile)
				if err != nil {
					return err
				}
				result, err = extractChunks[map[string]any](ctx, a, engine, schema, flags.instruction, pg.Chunks)
				if err != nil {
					return err
				}
			}
			return printJSON(cmd, result)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.instruction, "instruction", "", "What to extract (required)")
	f.StringVar(&flags.schemaFile, "schema", "", "JSON Schema file describing the result object")
	flags.page.register(cmd)
	_ = cmd.MarkFlagRequired("instruction")
	return cmd
}

func extractChunks[T any](ctx context.Context, a *app, engine *inference.Engine, schema llm.Schema, instruction string, chunks []string) (*inference.Extraction[T], error) {
	var (
		last     *inference.Extraction[T]
		previous any
		progress string
	)
	for i, chunk := range chunks {
		res, err := inference.ExtractWith[T](ctx, engine, schema, inference.ExtractInput{
			Instruction:         instruction,
			Progress:            progress,
			PreviouslyExtracted: previous,
			DOMElements:         chunk,
			ChunksSeen:          i + 1,
			ChunksTotal:         len(chunks),
			RequestID:           a.requestID,
		})
		if err != nil {
			return nil, fmt.Errorf("extract chunk %d/%d: %w", i+1, len(chunks), err)
		}
		last = res
		previous = res.Data
		progress = res.Metadata.Progress

		if res.Metadata.Completed {
			a.logger.Debug("extraction completed early",
				zap.String("request_id", a.requestID),
				zap.Int("chunks_seen", i+1),
				zap.Int("chunks_total", len(chunks)),
			)
			break
		}
	}
	return last, nil
}

func loadSchema(path string) (llm.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return llm.Schema{}, fmt.Errorf("read schema: %w", err)
	}
	var def jsonschema.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return llm.Schema{}, fmt.Errorf("parse schema %s: %w", path, err)
	}
	if def.Type != jsonschema.Object {
		return llm.Schema{}, fmt.Errorf("schema %s: top-level type must be object, got %q", path, def.Type)
	}
	return llm.Schema{Name: "Extraction", Definition: def}, nil
}
