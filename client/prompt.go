package client

import (
	"fmt"
	"strings"

	"github.com/w84death/agentic-chat/config"
	"github.com/w84death/agentic-chat/transcript"
)

// Prompt is the per-turn instruction pair sent to an endpoint: the system
// message fixes who the bot is and what is being discussed, the user
// message carries the conversation so far.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt combines the global system prompt, the bot's personality,
// the topic plus any injected updates, and the recent transcript window
// into the two messages every backend sends.
func BuildPrompt(systemPrompt string, bot config.Bot, topic string, updates []string, turns []transcript.Turn) Prompt {
	var sys strings.Builder
	sys.WriteString(strings.TrimSpace(systemPrompt))
	fmt.Fprintf(&sys, "\n\nYour personality: %s", bot.Personality)
	fmt.Fprintf(&sys, "\n\nThe discussion topic is: %s", topic)
	if len(updates) > 0 {
		sys.WriteString("\nThe discussion has since expanded to also consider:")
		for i, u := range updates {
			fmt.Fprintf(&sys, "\n%d. %s", i+1, u)
		}
	}

	var user strings.Builder
	user.WriteString("Conversation so far:\n")
	if len(turns) == 0 {
		user.WriteString("No previous conversation.\n")
	}
	for _, t := range turns {
		fmt.Fprintf(&user, "%s: %s\n", t.Speaker, t.Text)
	}
	fmt.Fprintf(&user, "\nReply as %s. Respond with your next contribution only, without repeating your name.", bot.Name)

	return Prompt{System: sys.String(), User: user.String()}
}
