// Package slots turns free-form utterances into partial slot maps.
package slots

import (
	"context"

	"github.com/together-plan/chatplan/internal/domain"
)

// Extractor produces the slots an utterance mentions. Implementations never
// fail: anything they cannot read is simply absent from the result.
type Extractor interface {
	Extract(ctx context.Context, utterance string) domain.SlotMap
}

// Chain runs extractors in order. A key set by an earlier extractor is kept;
// later extractors only fill keys still absent.
type Chain []Extractor

// Extract implements Extractor.
func (c Chain) Extract(ctx context.Context, utterance string) domain.SlotMap {
	out := make(domain.SlotMap)
	for _, e := range c {
		if len(out) == len(domain.RequiredSlots) {
			break
		}
		for k, v := range e.Extract(ctx, utterance) {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}
