package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"evalforge/internal/infrastructure/providers"
)

const agentSystemPrompt = `You are simulating a REAL user talking to a health-assistant chatbot.
Your job is to respond naturally and push the conversation toward the stated goal.

## Core rules
- Stay in character as the user described in the test case. Never break character.
- Be realistic: vary your phrasing, use casual language, make small typos occasionally.
- NEVER repeat the exact same message you already sent in this conversation.

## How to respond to common bot behaviors

**Bot asks for meal time:**
Provide a realistic, varied time. Examples: "around 9 in the morning", "lunch, maybe 1:30 pm".

**Bot asks for quantity/amount:**
Provide a quantity consistent with the original meal description.

**Bot shows a meal summary with calories:**
- If correct → confirm: "Yes, log it", "Looks good, save it"
- If wrong → point out the specific error

**Bot asks for yes/no confirmation:**
Respond naturally: "Yeah", "Sure, go ahead", "Yes please"

**Bot completes the task:**
Respond with exactly: GOAL_COMPLETE

## Difficulty-based behavior

**easy:** Cooperative, clear user. Answer directly and precisely.
**medium:** Realistic, casual. Give partial info, use informal language.
**hard:** Difficult, uncooperative. Be vague, give incomplete answers, change your mind.

## Category-specific behavior

**quantity_ambiguity:** Gave ambiguous quantity. When bot asks, provide specific amount.
**multi_meal_single_message:** Described multiple meals. Remind bot about missed ones.
**correction_contradiction:** After bot shows interpretation, CORRECT something specific.
**edit_after_confirmation:** Cooperate fully, confirm meal, then request an edit.
**future_time_rejection:** Deliberately give future time. If rejected, provide past time.
**contextual_without_context:** Send ONLY quantity/time with NO food. When asked, provide food.
**composite_dish:** Describe dish with all ingredients TOGETHER as one item.

## Output format
Return ONLY the next user message as plain text.
Return exactly "GOAL_COMPLETE" if the task is done.`

const agentTurnPrompt = `## Test case
- **Category:** %s
- **Difficulty:** %s
- **Original input:** %s
- **Expected behavior:** %s
- **Goal:** %s

## Conversation so far
%s

## Current turn number: %d of %d

What does the user say next?`

var mealLoggedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`successfully logged`),
	regexp.MustCompile(`meal has been logged`),
	regexp.MustCompile(`logged your meal`),
	regexp.MustCompile(`saved to your diary`),
}

var questionAnsweredPhrases = []string{"hope this helps", "let me know if", "anything else"}

// ConversationAgent drives multi-turn user simulations against the external
// chat API until the goal completes or max turns is reached.
type ConversationAgent struct {
	llm      providers.Provider
	logger   *slog.Logger
	maxTurns int
}

func NewConversationAgent(llm providers.Provider, logger *slog.Logger) *ConversationAgent {
	return &ConversationAgent{llm: llm, logger: logger, maxTurns: 10}
}

// RunConversation drives one test case to completion. API failures abort the
// conversation with an abandonment reason rather than an error so the judge
// still sees the partial transcript.
func (a *ConversationAgent) RunConversation(
	ctx context.Context,
	testCase AdversarialTestCase,
	client *ChatClient,
	userID string,
	turnDelay time.Duration,
) (*ConversationTranscript, error) {
	transcript := &ConversationTranscript{GoalType: testCase.GoalType}
	currentMessage := testCase.SyntheticInput
	state := NewSessionState(userID)

	a.logger.Info("Starting conversation", "category", testCase.Category)

	for turnNum := 1; turnNum <= a.maxTurns; turnNum++ {
		// turn_delay gates every request after the first.
		if !state.IsFirstMessage && turnDelay > 0 {
			select {
			case <-ctx.Done():
				return transcript, ctx.Err()
			case <-time.After(turnDelay):
			}
		}

		response, err := client.StreamMessage(ctx, currentMessage, state)
		if err != nil {
			a.logger.Error("API error during conversation", "turn", turnNum, "error", err)
			transcript.AbandonmentReason = fmt.Sprintf("API error: %v", err)
			transcript.GoalAchieved = false
			break
		}

		detectedIntent := ""
		if len(response.DetectedIntents) > 0 {
			detectedIntent = getString(response.DetectedIntents[0], "intent")
		}

		transcript.AddTurn(ConversationTurn{
			TurnNumber:     turnNum,
			UserMessage:    currentMessage,
			BotResponse:    response.FullMessage,
			DetectedIntent: detectedIntent,
			ThreadID:       response.ThreadID,
			SessionID:      response.SessionID,
			ResponseID:     response.ResponseID,
		})

		if checkGoalCompletion(response, testCase.GoalType) {
			a.logger.Info("Goal achieved", "turns", turnNum)
			transcript.GoalAchieved = true
			break
		}

		nextMessage, err := a.decideNextTurn(ctx, testCase, transcript)
		if err != nil || nextMessage == "" || nextMessage == "GOAL_COMPLETE" {
			transcript.GoalAchieved = true
			break
		}
		currentMessage = nextMessage
	}

	if transcript.TotalTurns >= a.maxTurns && !transcript.GoalAchieved {
		transcript.AbandonmentReason = fmt.Sprintf("Max turns (%d) reached", a.maxTurns)
	}

	return transcript, nil
}

// checkGoalCompletion detects goal completion by intent first, then by
// response-text pattern.
func checkGoalCompletion(response *StreamResponse, goalType string) bool {
	if len(response.DetectedIntents) > 0 {
		var intents []string
		for _, di := range response.DetectedIntents {
			intents = append(intents, getString(di, "intent"))
		}
		switch goalType {
		case "meal_logged":
			for _, intent := range intents {
				if intent == "meal_confirmation" {
					return true
				}
			}
		case "question_answered":
			for _, intent := range intents {
				if (intent == "general_query" || intent == "nutrition_query") && len(response.FullMessage) > 50 {
					return true
				}
			}
		}
	}

	msgLower := strings.ToLower(response.FullMessage)
	switch goalType {
	case "meal_logged":
		for _, pattern := range mealLoggedPatterns {
			if pattern.MatchString(msgLower) {
				return true
			}
		}
	case "question_answered":
		for _, phrase := range questionAnsweredPhrases {
			if strings.Contains(msgLower, phrase) {
				return true
			}
		}
	}
	return false
}

// decideNextTurn asks the LLM, in-role as the simulated user, for the next
// utterance.
func (a *ConversationAgent) decideNextTurn(ctx context.Context, testCase AdversarialTestCase, transcript *ConversationTranscript) (string, error) {
	prompt := fmt.Sprintf(agentTurnPrompt,
		testCase.Category, testCase.Difficulty, testCase.SyntheticInput,
		testCase.ExpectedBehavior, testCase.GoalType,
		transcript.ToText(), transcript.TotalTurns, a.maxTurns)

	result, err := a.llm.Generate(ctx, prompt, providers.Options{
		SystemPrompt:  agentSystemPrompt,
		ThinkingLevel: "low",
	})
	if err != nil {
		a.logger.Error("Conversation agent LLM failed", "error", err)
		return "", err
	}
	return strings.TrimSpace(result), nil
}
