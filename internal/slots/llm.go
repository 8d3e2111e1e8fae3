package slots

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/llm"
)

// Completer is the single-shot text generation call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const extractionPrompt = `다음 사용자 발화에서 요금제 추천에 필요한 정보를 추출해 JSON 객체 하나로만 답하라.
발화에 언급된 항목만 포함하고, 언급되지 않은 항목은 생략한다.
- voice: 월 통화량(분). 시간은 분으로 환산한다.
- data: 월 데이터 사용량(MB). 1GB는 1024MB이다.
- sms: 월 문자 발송량(건).
- age: 연령 (성인 20, 청소년 15, 실버 65).
- type: 통신 방식 (3G 2, LTE 4, 5G 5).
무제한은 999999로 표기한다. 하루 기준 수치는 30을 곱해 월 기준으로 바꾼다.
모든 값은 정수 문자열로 쓴다. 예: {"voice": "300", "type": "5"}

발화: """
%s
"""`

// LLMExtractor asks a text-generation service for a structured slot object.
type LLMExtractor struct {
	completer Completer
	logger    *slog.Logger
}

// NewLLMExtractor creates an extractor backed by c.
func NewLLMExtractor(c Completer, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMExtractor{completer: c, logger: logger}
}

// Extract implements Extractor.
func (x *LLMExtractor) Extract(ctx context.Context, utterance string) domain.SlotMap {
	out := make(domain.SlotMap)

	reply, err := x.completer.Complete(ctx, fmt.Sprintf(extractionPrompt, utterance))
	if err != nil {
		x.logger.Warn("Slot extraction call failed", "error", err)
		return out
	}

	raw := llm.ExtractJSON(reply)
	if raw == "" {
		x.logger.Debug("Slot extraction reply had no JSON object")
		return out
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		x.logger.Warn("Slot extraction reply was not valid JSON", "error", err)
		return out
	}

	for key, value := range fields {
		slot := domain.Slot(strings.ToLower(strings.TrimSpace(key)))
		if !domain.IsRequired(slot) {
			continue
		}
		if v, ok := normalize(value); ok {
			out[slot] = v
		}
	}
	return out
}

// normalize accepts non-negative integers given as numbers or numeric strings.
func normalize(value any) (string, bool) {
	switch v := value.(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return "", false
		}
		return strconv.FormatInt(int64(v), 10), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return "", false
		}
		return strconv.Itoa(n), true
	default:
		return "", false
	}
}
