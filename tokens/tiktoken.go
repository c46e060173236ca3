package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used when none is specified.
// cl100k_base is compatible with OpenAI models.
const DefaultEncoding = "cl100k_base"

// TiktokenCounter is an ExactCounter backed by tiktoken-go. It is most
// accurate for the gpt family; other families still benefit from the
// heuristic-plus-calibration path.
type TiktokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given encoding name.
// An empty encoding selects DefaultEncoding.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("get encoding %q: %w", encoding, err)
	}
	return &TiktokenCounter{encoder: enc}, nil
}

// Count returns the exact token count of text under the configured encoding.
func (c *TiktokenCounter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(c.encoder.Encode(text, nil, nil)), nil
}
