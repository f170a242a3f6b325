package ai

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used for models tiktoken does not know, which covers
// most non-OpenAI upstreams.
const fallbackEncoding = "cl100k_base"

var encoders sync.Map // model -> *tiktoken.Tiktoken

// CountTokens estimates the prompt size of text for model. Encoders are
// loaded once per model.
func CountTokens(model string, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	tkm, err := encoderFor(model)
	if err != nil {
		return 0, err
	}
	return len(tkm.Encode(text, nil, nil)), nil
}

func encoderFor(model string) (*tiktoken.Tiktoken, error) {
	if tkm, ok := encoders.Load(model); ok {
		return tkm.(*tiktoken.Tiktoken), nil
	}

	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
	}
	actual, _ := encoders.LoadOrStore(model, tkm)
	return actual.(*tiktoken.Tiktoken), nil
}
