package notestore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notes/internal/models"
)

// Preset names one of the demo bulk-generation buttons.
type Preset string

const (
	PresetNote    Preset = "note"
	PresetHuge    Preset = "huge"
	PresetHundred Preset = "hundred"
)

// GenerateOptions controls bulk note generation.
type GenerateOptions struct {
	Count      int
	Paragraphs int
	// Rand and Now default to a time-seeded source and time.Now.
	Rand *rand.Rand
	Now  time.Time
}

// Options returns the generation options for a preset.
func (p Preset) Options() (GenerateOptions, error) {
	switch p {
	case PresetNote:
		return GenerateOptions{Count: 1, Paragraphs: 1}, nil
	case PresetHuge:
		return GenerateOptions{Count: 1, Paragraphs: 300}, nil
	case PresetHundred:
		return GenerateOptions{Count: 100, Paragraphs: 1}, nil
	default:
		return GenerateOptions{}, fmt.Errorf("notestore: unknown preset %q", p)
	}
}

// Generate adds opts.Count notes of lorem text, each dated at a random
// instant within the year before opts.Now, with a single persistence write.
func Generate(ctx context.Context, s *Store, opts GenerateOptions) ([]models.Note, error) {
	if opts.Count < 1 || opts.Paragraphs < 1 {
		return nil, fmt.Errorf("notestore: generate: count and paragraphs must be positive")
	}
	r := opts.Rand
	if r == nil {
		seed := uint64(time.Now().UnixNano())
		r = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	const year = 365 * 24 * time.Hour
	notes := make([]models.Note, opts.Count)
	for i := range notes {
		notes[i] = models.Note{
			ID:   uuid.NewString(),
			Text: loremText(r, opts.Paragraphs),
			Date: now.Add(-time.Duration(r.Int64N(int64(year)))).Truncate(time.Millisecond),
		}
	}
	if err := s.PutMany(ctx, notes); err != nil {
		return notes, err
	}
	return notes, nil
}

var loremWords = strings.Fields(`lorem ipsum dolor sit amet consectetur adipiscing elit sed do
eiusmod tempor incididunt ut labore et dolore magna aliqua enim ad minim veniam quis nostrud
exercitation ullamco laboris nisi aliquip ex ea commodo consequat duis aute irure in
reprehenderit voluptate velit esse cillum fugiat nulla pariatur excepteur sint occaecat
cupidatat non proident sunt culpa qui officia deserunt mollit anim id est laborum`)

func loremText(r *rand.Rand, paragraphs int) string {
	var b strings.Builder
	for p := 0; p < paragraphs; p++ {
		if p > 0 {
			b.WriteString("\n\n")
		}
		sentences := 2 + r.IntN(4)
		for s := 0; s < sentences; s++ {
			if s > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(loremSentence(r))
		}
	}
	return b.String()
}

func loremSentence(r *rand.Rand) string {
	n := 5 + r.IntN(10)
	words := make([]string, n)
	for i := range words {
		words[i] = loremWords[r.IntN(len(loremWords))]
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ") + "."
}
