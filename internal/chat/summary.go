package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/together-plan/chatplan/internal/domain"
)

const contentMarker = "내용:"

const summaryPrompt = `다음 요금제 추천 결과를 사용자가 나중에 다시 볼 수 있도록 간단히 정리해주세요.

요금제 이름: %s
통신사: %s
월 요금: %d원
데이터: %s
통화: %s
문자: %s

아래 형식으로만 답하세요.
제목: (요금제 이름)
내용: (요금제의 특징과 이 사용자에게 맞는 이유를 3~5문장으로)`

// Summarizer turns a recommendation into a title/content summary with one
// single-shot generation call.
type Summarizer struct {
	completer Completer
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(c Completer) *Summarizer {
	return &Summarizer{completer: c}
}

// Summarize generates the summary. The title is always the plan name.
func (s *Summarizer) Summarize(ctx context.Context, rec domain.Recommendation) (domain.Summary, error) {
	prompt := fmt.Sprintf(summaryPrompt, rec.PlanName, rec.Telecom, rec.Price, rec.Data, rec.Voice, rec.SMS)
	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("generate summary: %w", err)
	}
	return domain.Summary{
		Title:   rec.PlanName,
		Content: parseSummaryContent(reply),
	}, nil
}

// parseSummaryContent returns everything from the first line starting with
// the content marker onward, marker stripped. Without a marker the whole reply
// is the content.
func parseSummaryContent(reply string) string {
	lines := strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, contentMarker) {
			continue
		}
		parts := make([]string, 0, len(lines)-i)
		if first := strings.TrimSpace(strings.TrimPrefix(trimmed, contentMarker)); first != "" {
			parts = append(parts, first)
		}
		parts = append(parts, lines[i+1:]...)
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}
	return strings.TrimSpace(reply)
}
