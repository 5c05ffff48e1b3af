// Package prompt builds the messages and the function menu sent for each
// inference operation.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/nbenliogludev/go-browser-inference/internal/llm"
)

const (
	AnnotatedScreenshotText = "This is a screenshot of the current page state with the elements annotated on it. " +
		"Each element id is to the left of the element, inside a colored box."
	FullPageScreenshotText = "This is a screenshot of the whole visible page."
)

const (
	DoActionFunction    = "doAction"
	SkipSectionFunction = "skipSection"
)

var whitespace = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// ---------- act ----------

const actSystemPrompt = `
You are a browser automation assistant.

You are given:
1. the user's overall goal
2. the steps that have been taken so far
3. a list of active DOM elements in this chunk to consider to accomplish the goal.

You have 2 tools that you can call: doAction, and skipSection.
`

func Act(goal, steps, domElements string, variables map[string]string) []llm.Message {
	if steps == "" {
		steps = "None"
	}
	user := fmt.Sprintf(`
goal: %s,
steps completed so far: %s,
elements: %s
`, goal, steps, domElements)

	if len(variables) > 0 {
		user += "\nvariables available to use in args (use the placeholder, never guess the value): " +
			strings.Join(placeholders(variables), ", ")
	}

	return []llm.Message{
		llm.SystemMessage(collapse(actSystemPrompt)),
		llm.UserMessage(collapse(user)),
	}
}

// placeholders lists only the keys; values never reach the model.
func placeholders(variables map[string]string) []string {
	out := make([]string, 0, len(variables))
	for key := range variables {
		out = append(out, "<|"+strings.ToUpper(key)+"|>")
	}
	sort.Strings(out)
	return out
}

// ActFunctions is the menu offered to the action resolver.
func ActFunctions() []llm.Function {
	return []llm.Function{
		{
			Name:        DoActionFunction,
			Description: "execute the next playwright step that directly accomplishes the goal",
			Parameters: jsonschema.Definition{
				Type:     jsonschema.Object,
				Required: []string{"method", "element", "args", "step", "completed"},
				Properties: map[string]jsonschema.Definition{
					"method": {
						Type:        jsonschema.String,
						Description: "The playwright function to call",
					},
					"element": {
						Type:        jsonschema.Integer,
						Description: "The element number to act on",
					},
					"args": {
						Type:        jsonschema.Array,
						Description: "The required arguments",
						Items: &jsonschema.Definition{
							Type:        jsonschema.String,
							Description: "The argument to pass to the function",
						},
					},
					"step": {
						Type:        jsonschema.String,
						Description: "human readable description of the step that is taken in the past tense",
					},
					"why": {
						Type:        jsonschema.String,
						Description: "why is this step taken? how does it advance the goal?",
					},
					"completed": {
						Type:        jsonschema.Boolean,
						Description: "true if the goal should be accomplished after this step",
					},
				},
			},
		},
		{
			Name:        SkipSectionFunction,
			Description: "skips this area of the webpage because the current goal cannot be accomplished here",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"reason": {
						Type:        jsonschema.String,
						Description: "reason that no action is taken",
					},
				},
			},
		},
	}
}

// ---------- verify ----------

const verifySystemPrompt = `
You are a browser automation assistant. The job has given you a goal and a list of steps that have been taken so far.
Your job is to determine if the user's goal has been completed based on the provided information.

# Rules
1. Check each step to see if it directly contributes to the goal.
2. Use the DOM elements and, if present, the screenshot to confirm the current state of the page.
3. If the goal has been completed, return completed: true; otherwise return completed: false.
4. If you are unsure, return completed: false.
`

func VerifyActCompletion(goal, steps, domElements string) []llm.Message {
	user := fmt.Sprintf("# My Goal\n%s\n\n# Steps Taken So Far\n%s", goal, steps)
	if domElements != "" {
		user += "\n\n# Active DOM Elements on the current page\n" + domElements
	}
	return []llm.Message{
		llm.SystemMessage(strings.TrimSpace(verifySystemPrompt)),
		llm.UserMessage(user),
	}
}

// ---------- extract ----------

const extractSystemPrompt = `
You are extracting content on behalf of a user. You will be given:
1. An instruction
2. A list of DOM elements to extract from

Print the exact text from the DOM elements with all symbols, characters, and endlines as is.
Print null or an empty string if no new information is found.
`

func Extract(instruction, domElements string) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(strings.TrimSpace(extractSystemPrompt)),
		llm.UserMessage(fmt.Sprintf("Instruction: %s\nDOM: %s", instruction, domElements)),
	}
}

const refineSystemPrompt = `
You are tasked with refining and filtering information for the final output based on newly extracted and previously extracted content.
Your responsibilities are:
1. Remove exact duplicates for elements in arrays and objects.
2. For text fields, append or update relevant text if the new content is an extension, replacement, or continuation.
3. For non-text fields (e.g., numbers, booleans), update with new values if they differ.
4. Add any completely new fields or objects.

Return the updated content that includes both the previous content and the new, non-duplicate, or extended information.
`

func Refine(instruction string, previouslyExtracted, newlyExtracted any) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(strings.TrimSpace(refineSystemPrompt)),
		llm.UserMessage(fmt.Sprintf("Instruction: %s\nPrevious Content: %s\nNew Content: %s",
			instruction, encode(previouslyExtracted), encode(newlyExtracted))),
	}
}

const metadataSystemPrompt = `
You are an AI assistant tasked with evaluating the progress and completion status of an extraction task.
Analyze the extraction response and determine if the task is completed or if more information is needed.

Strictly abide by the following criteria:
1. Once the instruction has been satisfied by the current extraction response, ALWAYS set completion status to true and stop processing, regardless of the remaining chunks.
2. Only set completion status to false if BOTH of the following conditions are true:
   - The instruction has not been satisfied yet
   - There are still chunks left to process (chunksTotal > chunksSeen)
`

func Metadata(instruction string, extracted any, chunksSeen, chunksTotal int) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(strings.TrimSpace(metadataSystemPrompt)),
		llm.UserMessage(fmt.Sprintf("Instruction: %s\nExtracted content: %s\nchunksSeen: %d\nchunksTotal: %d",
			instruction, encode(extracted), chunksSeen, chunksTotal)),
	}
}

// ---------- observe ----------

const observeSystemPrompt = `
You are helping the user automate the browser by finding elements based on what the user wants to observe in the page.
You will be given:
1. an instruction of elements to observe
2. a numbered list of possible elements or an annotated image of the page

Return an array of elements that match the instruction.
`

func Observe(instruction, domElements string) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(strings.TrimSpace(observeSystemPrompt)),
		llm.UserMessage(fmt.Sprintf("instruction: %s\nDOM: %s", instruction, domElements)),
	}
}

// ---------- ask ----------

const askSystemPrompt = `
You are a helpful assistant that is an expert in question answering.
Respond to the user's question in plain text, concisely.
`

func Ask(question string) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(strings.TrimSpace(askSystemPrompt)),
		llm.UserMessage("question: " + question),
	}
}

func encode(v any) string {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
