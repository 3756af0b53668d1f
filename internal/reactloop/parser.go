// Package reactloop implements the ReAct-style iteration controller: it
// drives a sequence of complete()-then-parse steps against the local
// LLM, dispatching CallTool actions through the tool pool and cache,
// and synthesizing a conclusive answer when the LLM never emits one
// before the iteration cap.
package reactloop

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/galdaer/clinical-orchestrator/internal/models"
)

// Because the local LLM exposes only a single complete(prompt) string
// method (no native tool-calling), each step's action must be parsed
// out of free text the model was instructed to produce in one of two
// shapes:
//
//	Thought: <reasoning>
//	Action: call_tool
//	Tool: <tool_name>
//	Arguments: {"key": "value"}
//
// or:
//
//	Thought: <reasoning>
//	Action: answer
//	Answer: <final answer text>

var (
	thoughtRe   = regexp.MustCompile(`(?is)Thought:\s*(.*?)\n(?:Action:|$)`)
	actionRe    = regexp.MustCompile(`(?i)Action:\s*(call_tool|answer)`)
	toolRe      = regexp.MustCompile(`(?i)Tool:\s*(\S+)`)
	argumentsRe = regexp.MustCompile(`(?is)Arguments:\s*(\{.*\})`)
	answerRe    = regexp.MustCompile(`(?is)Answer:\s*(.*)`)
)

// ParseStep extracts an AgentStep from the model's raw completion text.
// Parsing is tolerant: a missing Thought is not an error, but a missing
// or unrecognized Action is, since the loop cannot proceed without one.
func ParseStep(raw string) (models.AgentStep, error) {
	step := models.AgentStep{}

	if m := thoughtRe.FindStringSubmatch(raw); len(m) > 1 {
		step.Thought = strings.TrimSpace(m[1])
	}

	actionMatch := actionRe.FindStringSubmatch(raw)
	if actionMatch == nil {
		return step, fmt.Errorf("reactloop: could not find a recognized Action in model output")
	}

	switch strings.ToLower(actionMatch[1]) {
	case "call_tool":
		toolMatch := toolRe.FindStringSubmatch(raw)
		if toolMatch == nil {
			return step, fmt.Errorf("reactloop: call_tool action missing a Tool name")
		}
		args, err := parseArguments(raw)
		if err != nil {
			return step, err
		}
		step.Action = models.AgentAction{
			Kind:      models.ActionCallTool,
			ToolName:  toolMatch[1],
			Arguments: args,
		}
	case "answer":
		answerMatch := answerRe.FindStringSubmatch(raw)
		text := ""
		if answerMatch != nil {
			text = strings.TrimSpace(answerMatch[1])
		}
		step.Action = models.AgentAction{
			Kind:       models.ActionAnswer,
			AnswerText: text,
		}
	default:
		return step, fmt.Errorf("reactloop: unrecognized action %q", actionMatch[1])
	}

	return step, nil
}

func parseArguments(raw string) (map[string]any, error) {
	m := argumentsRe.FindStringSubmatch(raw)
	if m == nil {
		// A tool call with no arguments is valid (some tools take none).
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(m[1]), &args); err != nil {
		return nil, fmt.Errorf("reactloop: unparseable Arguments JSON: %w", err)
	}
	return args, nil
}
