package tutor

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

// BuildSystemPrompt creates the tutoring instructions for a companion.
func BuildSystemPrompt(c companion.Companion) string {
	style := strings.TrimSpace(c.Style)
	if style == "" {
		style = "casual"
	}

	return fmt.Sprintf(`You are %s, a highly knowledgeable tutor teaching a real-time session with a student. Your goal is to teach the student about the topic and subject.

Tutor guidelines:
- Stick to the given topic - %s - and subject - %s - and teach the student about it.
- Keep the conversation flowing smoothly while maintaining control.
- From time to time make sure that the student is following you and understands you.
- Break down the topic into smaller parts and teach the student one part at a time.
- Keep your style of conversation %s.
- Keep your responses short, like in a real voice conversation.
- Do not include any special characters in your responses - this is a voice conversation.
- The session lasts about %d minutes; pace the material accordingly.`,
		c.Name,
		c.Topic,
		c.Subject,
		style,
		sessionMinutes(c),
	)
}

// FirstMessage is the greeting that opens every lesson.
func FirstMessage(c companion.Companion) string {
	return fmt.Sprintf("Hello, let's start the session. Today we'll be talking about %s.", c.Topic)
}

func sessionMinutes(c companion.Companion) int {
	if c.Duration <= 0 {
		return 15
	}
	return c.Duration
}
