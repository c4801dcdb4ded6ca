package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"anonboard/pkg/ai"
	"anonboard/pkg/models"
)

// Source is the scraped material a thread is seeded from.
type Source struct {
	Title       string
	Description string
	Excerpt     string
	URL         string
}

// ThreadSeed is the model's board pick plus the thread opener.
type ThreadSeed struct {
	Board     string `json:"board"`
	Title     string `json:"title"`
	FirstPost string `json:"first_post"`
}

// Seeder asks the generator to turn a source into a thread opener on one of
// the live boards.
type Seeder struct {
	gen    ai.Generator
	boards func() ([]models.Board, error)
}

func NewSeeder(gen ai.Generator, boards func() ([]models.Board, error)) *Seeder {
	return &Seeder{gen: gen, boards: boards}
}

func (s *Seeder) Seed(ctx context.Context, src Source) (ThreadSeed, error) {
	boards, err := s.boards()
	if err != nil {
		return ThreadSeed{}, err
	}
	open := make([]models.Board, 0, len(boards))
	for _, b := range boards {
		if b.Status == models.BoardActive {
			open = append(open, b)
		}
	}
	if len(open) == 0 {
		return ThreadSeed{}, fmt.Errorf("no open boards")
	}

	raw, err := s.gen.Generate(ctx, seedPrompt(src, open))
	if err != nil {
		return ThreadSeed{}, err
	}
	seed, err := parseSeed(raw)
	if err != nil {
		return ThreadSeed{}, err
	}
	for _, b := range open {
		if b.ID == seed.Board {
			return seed, nil
		}
	}
	return ThreadSeed{}, fmt.Errorf("unknown board %q in seed output", seed.Board)
}

func seedPrompt(src Source, boards []models.Board) string {
	var b strings.Builder
	b.WriteString("You run an anonymous bulletin board and want to start a discussion about the article below.\n\n")
	b.WriteString("## Article\n")
	fmt.Fprintf(&b, "Title: %s\n", src.Title)
	if src.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", src.Description)
	}
	if src.Excerpt != "" {
		fmt.Fprintf(&b, "Excerpt: %s\n", src.Excerpt)
	}
	b.WriteString("\n## Boards (pick exactly one id)\n")
	for _, board := range boards {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", board.ID, board.Name, board.Description)
	}
	b.WriteString("\n## Instructions\n")
	b.WriteString("- Pick the single best-fitting board id\n")
	b.WriteString("- Write a punchy thread title under 80 characters, board slang welcome\n")
	b.WriteString("- Write the opening post: 2-4 casual lines reacting to the article, no emoji, no links\n\n")
	b.WriteString("## Output (JSON object only, no other text)\n")
	b.WriteString(`{ "board": "board-id", "title": "thread title", "first_post": "opening post" }` + "\n")
	return b.String()
}

// parseSeed extracts and validates the JSON object the completion must
// contain.
func parseSeed(raw string) (ThreadSeed, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ThreadSeed{}, fmt.Errorf("no JSON object in output")
	}
	var seed ThreadSeed
	dec := json.NewDecoder(strings.NewReader(raw[start : end+1]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return ThreadSeed{}, fmt.Errorf("invalid seed object: %w", err)
	}
	if strings.TrimSpace(seed.Board) == "" || strings.TrimSpace(seed.Title) == "" || strings.TrimSpace(seed.FirstPost) == "" {
		return ThreadSeed{}, fmt.Errorf("seed output missing fields")
	}
	return seed, nil
}
