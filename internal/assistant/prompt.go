// Package assistant answers free-form questions about the user's state.
// It is a collaborator: failures become fallback replies, never errors.
package assistant

import (
	"fmt"
	"strings"

	"github.com/starford/onyx/internal/models"
)

// Roles of a chat turn.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one message of the conversation.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Fallback replies.
const (
	ReplyMissingKey = "Error: API Key is missing. Please check your configuration."
	ReplyEmpty      = "I couldn't generate a response."
	ReplyNetwork    = "I'm having trouble connecting to the network right now."
)

// SystemPrompt renders the instructions and a summary of s as of date.
func SystemPrompt(s *models.AppState, date string) string {
	var b strings.Builder
	b.WriteString("You are a helpful productivity assistant integrated into the Onyx app.\n")
	b.WriteString("You are Onyx, a highly intelligent and minimal productivity assistant.\n")
	fmt.Fprintf(&b, "Current Date: %s\n\n", date)
	b.WriteString(Summary(s))
	b.WriteString("\nINSTRUCTIONS:\n")
	b.WriteString("- Be concise, direct, and helpful.\n")
	b.WriteString("- Maintain the \"minimalist, jet-black\" persona of the app.\n")
	b.WriteString("- Analyze the user's workload and suggest priorities if asked.\n")
	b.WriteString("- If the user asks about progress, calculate it based on the data provided.\n")
	return b.String()
}

// Summary lists the user's data one category per line.
func Summary(s *models.AppState) string {
	var daily, short, long []string
	for _, t := range s.Tasks {
		switch t.Type {
		case models.TaskDaily:
			daily = append(daily, fmt.Sprintf("%s (%s)", t.Title, doneWord(t.Completed, "Done", "Pending")))
		case models.TaskShortTerm:
			p := string(t.Priority)
			if p == "" {
				p = "None"
			}
			short = append(short, fmt.Sprintf("%s [%s]", t.Title, p))
		case models.TaskLongTerm:
			due := t.DueDate
			if due == "" {
				due = "none"
			}
			long = append(long, fmt.Sprintf("%s (Due: %s)", t.Title, due))
		}
	}
	areas := make([]string, 0, len(s.Areas))
	for _, a := range s.Areas {
		areas = append(areas, a.Name)
	}
	milestones := make([]string, 0, len(s.Milestones))
	for _, m := range s.Milestones {
		milestones = append(milestones, fmt.Sprintf("%s (%s)", m.Title, doneWord(m.Completed, "Achieved", "In Progress")))
	}
	notes := make([]string, 0, len(s.Notes))
	for _, n := range s.Notes {
		notes = append(notes, n.Title)
	}

	var b strings.Builder
	b.WriteString("USER DATA:\n")
	fmt.Fprintf(&b, "- Daily Habits: %s\n", strings.Join(daily, ", "))
	fmt.Fprintf(&b, "- Short Term Tasks: %s\n", strings.Join(short, ", "))
	fmt.Fprintf(&b, "- Long Term Operations: %s\n", strings.Join(long, ", "))
	fmt.Fprintf(&b, "- Life Areas: %s\n", strings.Join(areas, ", "))
	fmt.Fprintf(&b, "- Life Milestones: %s\n", strings.Join(milestones, ", "))
	fmt.Fprintf(&b, "- Notes: %s\n", strings.Join(notes, ", "))
	return b.String()
}

func doneWord(done bool, yes, no string) string {
	if done {
		return yes
	}
	return no
}
