package launcher

import "fmt"

// promptTemplate is the prompt handed to the agent for a launched task.
// The wording is load-bearing: resumed sessions rely on the agent having
// seen this framing.
const promptTemplate = `You are executing a Contextualize managed task.

TASK: %s

LOADED CONCEPTS:
%s

ADDITIONAL CONTEXT:
%s

Please complete this task. Your work will be logged and can be resumed later.`

// BuildPrompt assembles the execution prompt from the task description,
// pre-rendered concept content and the context carried over from the
// main session.
func BuildPrompt(description, conceptContent, context string) string {
	return fmt.Sprintf(promptTemplate, description, conceptContent, context)
}
