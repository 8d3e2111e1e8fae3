// Package chat runs the plan-recommendation dialogue and the smishing analysis
// conversation on top of the push channel registry.
package chat

import (
	"context"
	"errors"
	"iter"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/llm"
)

var (
	// ErrEmptyMessage rejects blank utterances before any cycle starts.
	ErrEmptyMessage = errors.New("message content is required")
	// ErrNoChannel means the caller has no open push channel to answer on.
	ErrNoChannel = errors.New("no open channel for user")
)

// User-visible texts.
const (
	msgTransition       = "답변 감사합니다! 😊\n말씀해주신 정보를 바탕으로 요금제를 추천해드릴게요. 잠시만 기다려주세요."
	msgAIFailure        = "AI 응답에 문제가 발생했습니다. 잠시 후 다시 시도해주세요."
	msgNotFoundFormat   = "%s 통신사 요금제를 찾을 수 없습니다."
	msgResolveFailure   = "요금제 추천 중 문제가 발생했습니다."
	msgNoRecommendation = "아직 추천된 요금제가 없어요. 통화량, 데이터, 문자, 나이, 통신 방식을 먼저 알려주시면 요금제를 추천해드릴게요."
	msgSummaryFailure   = "요약을 만드는 중 문제가 발생했습니다. 잠시 후 다시 시도해주세요."
	msgAnalysisFailure  = "AI 응답 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요."
	donePayload         = "done"
)

// Channels is the push side of the channel registry.
type Channels interface {
	// Context returns the cancellation context of the client's live binding.
	Context(clientID string) (context.Context, bool)
	// PushBound delivers an event only while the binding behind ctx is live.
	PushBound(ctx context.Context, clientID, event string, data any)
}

// Streamer is the streaming text-generation call.
type Streamer interface {
	Stream(ctx context.Context, messages []llm.Message) iter.Seq2[string, error]
}

// Completer is the single-shot text-generation call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PlanResolver picks one plan for a complete slot set. It returns
// domain.ErrPlanNotFound when nothing matches.
type PlanResolver interface {
	Resolve(ctx context.Context, slots domain.SlotMap) (domain.Recommendation, error)
	Provider() string
}

// TemplateSaver persists generated summaries.
type TemplateSaver interface {
	SaveTemplate(ctx context.Context, t *domain.Template) error
}

// Publisher fans cycle outcomes out to other services.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Outcome subjects.
const (
	SubjectRecommendation = "recommendation"
	SubjectSummary        = "summary"
)
