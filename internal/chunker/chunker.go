package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOptions is returned when the window configuration cannot make progress.
var ErrInvalidOptions = errors.New("invalid chunk options")

const (
	DefaultSize    = 1200
	DefaultOverlap = 200
)

// Options controls how page text is chunked. Size and Overlap count characters.
type Options struct {
	Size    int
	Overlap int
}

// DefaultOptions returns the window used when nothing is configured.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate reports whether the window advances on every step.
func (o Options) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidOptions, o.Size)
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidOptions, o.Size, o.Overlap)
	}
	return nil
}

// Page is the extracted text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk represents a window of one page's text.
type Chunk struct {
	Page int
	Text string
}

// Split performs a character-based sliding window with overlap over each page.
// Pages with no text are skipped. Chunks keep document order.
func Split(pages []Page, opts Options) ([]Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	step := opts.Size - opts.Overlap
	var chunks []Chunk
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		runes := []rune(p.Text)
		for start := 0; start < len(runes); start += step {
			end := start + opts.Size
			if end > len(runes) {
				end = len(runes)
			}
			chunks = append(chunks, Chunk{
				Page: p.Number,
				Text: string(runes[start:end]),
			})
		}
	}
	return chunks, nil
}
