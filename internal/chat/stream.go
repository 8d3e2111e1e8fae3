package chat

import (
	"iter"
	"strings"
)

// relayStream forwards deltas from seq to emit in batches. A batch is flushed
// whenever a delta ends in a space or newline, and once more when the stream
// completes. On error the pending batch is discarded. The full text received
// is returned in both cases.
func relayStream(seq iter.Seq2[string, error], emit func(string)) (string, error) {
	var (
		full  strings.Builder
		batch strings.Builder
	)
	for delta, err := range seq {
		if err != nil {
			return full.String(), err
		}
		full.WriteString(delta)
		batch.WriteString(delta)
		if strings.HasSuffix(delta, " ") || strings.HasSuffix(delta, "\n") {
			emit(batch.String())
			batch.Reset()
		}
	}
	if batch.Len() > 0 {
		emit(batch.String())
	}
	return full.String(), nil
}
