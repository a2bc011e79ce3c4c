package referral

import (
	"encoding/json"
	"fmt"
)

// SystemPrompt frames the model as a referral fraud analyst.
const SystemPrompt = "You are a referral verification expert. Analyze the given data and detect fraudulent or spam referrals."

const promptTemplate = `Analyze this referral for potential fraud or spam:
User Activity: %s
Time Patterns: %s
Interaction Data: %s

Determine if this is a legitimate referral by analyzing:
1. Activity patterns suggesting real user engagement
2. Natural timing distribution of actions
3. Interaction patterns between referrer and referred user

Respond with a JSON object containing:
{
    "verified": boolean,
    "confidence": float between 0 and 1,
    "reasoning": "detailed explanation"
}`

// BuildPrompt renders rec into the user prompt. Missing sections render as {}.
func BuildPrompt(rec Record) (string, error) {
	activity, err := section(rec.Activity)
	if err != nil {
		return "", fmt.Errorf("encode activity: %w", err)
	}
	timing, err := section(rec.Timing)
	if err != nil {
		return "", fmt.Errorf("encode timing: %w", err)
	}
	interactions, err := section(rec.Interactions)
	if err != nil {
		return "", fmt.Errorf("encode interactions: %w", err)
	}
	return fmt.Sprintf(promptTemplate, activity, timing, interactions), nil
}

func section(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
