package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/w84death/agentic-chat/config"
	"github.com/w84death/agentic-chat/transcript"
)

func testBot() config.Bot {
	return config.Bot{
		Name:        "Ada",
		Personality: "precise and skeptical",
		Endpoint:    "http://localhost:11434",
		Model:       "llama3",
	}
}

func TestBuildPromptSystemMessage(t *testing.T) {
	p := BuildPrompt("You are in a round-table discussion.", testBot(), "local inference", nil, nil)

	assert.Contains(t, p.System, "You are in a round-table discussion.")
	assert.Contains(t, p.System, "Your personality: precise and skeptical")
	assert.Contains(t, p.System, "The discussion topic is: local inference")
	assert.NotContains(t, p.System, "expanded to also consider")
}

func TestBuildPromptWithTopicUpdates(t *testing.T) {
	updates := []string{"energy cost", "privacy"}
	p := BuildPrompt("sys", testBot(), "local inference", updates, nil)

	assert.Contains(t, p.System, "The discussion has since expanded to also consider:")
	assert.Contains(t, p.System, "1. energy cost")
	assert.Contains(t, p.System, "2. privacy")
}

func TestBuildPromptEmptyConversation(t *testing.T) {
	p := BuildPrompt("sys", testBot(), "topic", nil, nil)

	assert.Contains(t, p.User, "Conversation so far:")
	assert.Contains(t, p.User, "No previous conversation.")
	assert.Contains(t, p.User, "Reply as Ada.")
}

func TestBuildPromptConversationWindow(t *testing.T) {
	turns := []transcript.Turn{
		{Speaker: "Grace", Text: "Opening thought."},
		{Speaker: "Alan", Text: "A reply."},
	}
	p := BuildPrompt("sys", testBot(), "topic", nil, turns)

	assert.Contains(t, p.User, "Grace: Opening thought.\nAlan: A reply.")
	assert.NotContains(t, p.User, "No previous conversation.")
	assert.Contains(t, p.User, "without repeating your name")
}
