package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// CountTokensForModel returns the exact token count for a specific model's
// tokenizer when one is available, falling back to the heuristic estimate
// otherwise. Exact counts are a diagnostic aid (thresholds, usage reporting);
// budget decisions stay on the heuristic so they remain deterministic and
// dependency-free.
func (m *Manager) CountTokensForModel(text, modelID string) int {
	if text == "" {
		return 0
	}

	encoding, err := encodingForModel(modelID)
	if err != nil {
		m.log.Debugf("no tokenizer for model %s, using heuristic estimate: %v", modelID, err)
		return m.EstimateTokens(text)
	}

	return len(encoding.Encode(text, nil, nil))
}

var (
	encodingMu    sync.Mutex
	encodingCache = make(map[string]*tiktoken.Tiktoken)
)

// encodingForModel caches tiktoken encodings, which are expensive to build.
func encodingForModel(modelID string) (*tiktoken.Tiktoken, error) {
	encodingMu.Lock()
	defer encodingMu.Unlock()

	if enc, ok := encodingCache[modelID]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		return nil, err
	}
	encodingCache[modelID] = enc
	return enc, nil
}
