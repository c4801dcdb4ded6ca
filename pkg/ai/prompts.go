package ai

import (
	"fmt"
	"strings"

	"anonboard/pkg/models"
)

// initialRepliesPrompt asks for count persona replies to a fresh thread.
// The numbering each reply will land at is stated up front so the model can
// write internally consistent anchors even though the posts are persisted
// after the fact.
func initialRepliesPrompt(title, firstPost string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %d different anonymous regulars of a bulletin board reading a brand-new thread.\n\n", count)
	fmt.Fprintf(&b, "## Thread\nTitle: %s\n>>1: %s\n\n", title, firstPost)
	b.WriteString("## Instructions\n")
	fmt.Fprintf(&b, "- Write exactly %d replies, each from a distinct poster with their own voice\n", count)
	fmt.Fprintf(&b, "- Your replies will be posted in order as >>2 through >>%d; you may reference >>1 or any earlier reply by those numbers\n", count+1)
	b.WriteString("- Mix reactions: agreement, pushback, corrections, anecdotes, trivia\n")
	b.WriteString("- Keep each reply short, 1-3 lines, casual board slang, no emoji\n")
	b.WriteString("- Never write in a formal or journalistic register\n\n")
	b.WriteString("## Output (JSON array only, no other text)\n")
	b.WriteString(`[` + "\n" + `  { "content": "reply text" }` + "\n" + `]` + "\n")
	return b.String()
}

// conversationPrompt asks for followup replies to an ongoing thread. The
// recent posts are listed with their resolved anchor numbers, oldest first.
func conversationPrompt(title string, recent []models.Post, firstPosition, maxReplies int) string {
	var b strings.Builder
	b.WriteString("You are an anonymous regular of a bulletin board following an active thread.\n\n")
	fmt.Fprintf(&b, "## Thread\nTitle: %s\n\n## Recent conversation (oldest first)\n", title)
	for i, p := range recent {
		fmt.Fprintf(&b, ">>%d %s: %s\n", firstPosition+i, p.Author, p.Content)
	}
	b.WriteString("\n## Instructions\n")
	fmt.Fprintf(&b, "- Write 1 to %d replies as distinct posters, riding the current flow of the conversation\n", maxReplies)
	fmt.Fprintf(&b, "- Replying to the most recent post (>>%d) is ideal; use anchors naturally or not at all\n", firstPosition+len(recent)-1)
	b.WriteString("- Keep each reply short, 1-3 lines, casual board slang, no emoji\n")
	b.WriteString("- Keep the thread lively\n\n")
	b.WriteString("## Output (JSON array only, no other text)\n")
	b.WriteString(`[` + "\n" + `  { "content": "reply text" }` + "\n" + `]` + "\n")
	return b.String()
}

// summaryPrompt asks for a compact neutral summary of a thread at a
// milestone.
func summaryPrompt(title string, posts []models.Post) string {
	var b strings.Builder
	b.WriteString("Summarize the discussion below in 2-3 neutral sentences for a thread sidebar.\n\n")
	fmt.Fprintf(&b, "## Thread\nTitle: %s\n\n## Posts\n", title)
	for i, p := range posts {
		if p.Status == models.PostDeleted {
			continue
		}
		fmt.Fprintf(&b, ">>%d: %s\n", i+1, p.Content)
	}
	b.WriteString("\nOutput the summary text only.\n")
	return b.String()
}
