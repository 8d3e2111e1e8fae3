package chat

import (
	"fmt"
	"strings"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/llm"
)

var slotSystemPrompt = strings.Join([]string{
	"너는 '세계 최고의 요금제 추천 챗봇'이다.",
	"너의 임무는 사용자와 자연스럽고 유쾌한 대화를 나누며, 요금제를 추천하기 위한 아래 5가지 정보를 수집하는 것이다.",
	"✨ 필수 정보:",
	"- voice (string): 월 평균 통화량 (단위: 분, 무제한은 999999)",
	"- data (string): 월 평균 데이터 사용량 (단위: GB, 무제한은 999999)",
	"- sms (string): 월 평균 문자 발송량 (단위: 건, 무제한은 999999)",
	"- age (string): 연령대 (성인:20, 청소년:15, 실버:65)",
	"- type (string): 통신 서비스 타입 (3G:2, LTE:4, 5G:5)",
	"사용자의 응답이 모호할 경우 예시를 통해 근사값을 유도하고, 대화 흐름을 부드럽게 유지해야 한다.",
	"한 번에 하나의 질문만 하며, 무례하거나 기계적으로 느껴지지 않도록 한다.",
}, "\n")

// slotPrompt builds the clarifying-question request: instructions, a digest
// of what is known (only once something is), then the whole conversation.
func slotPrompt(known domain.SlotMap, missing []domain.Slot, history []domain.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: domain.SenderSystem, Content: slotSystemPrompt})

	if len(known) > 0 {
		var b strings.Builder
		b.WriteString("지금까지 사용자가 알려준 정보:\n")
		for _, s := range domain.RequiredSlots {
			if v, ok := known[s]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", s, v)
			}
		}
		if len(missing) > 0 {
			names := make([]string, len(missing))
			for i, s := range missing {
				names[i] = string(s)
			}
			fmt.Fprintf(&b, "아직 확인이 필요한 정보: %s\n", strings.Join(names, ", "))
		}
		msgs = append(msgs, llm.Message{Role: domain.SenderSystem, Content: b.String()})
	}

	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Sender, Content: m.Content})
	}
	return msgs
}

const smishingPrompt = `당신은 스미싱 탐지 전문가 AI입니다. 사용자가 보낸 문자 메시지를 정밀하게 분석하여 스미싱(스마트폰 피싱 사기) 여부를 판단하고, 아래 형식에 맞춰 설명해주세요.
반드시 올바른 띄어쓰기와 자연스러운 한국어 문법을 지켜서 작성해주세요.

- **스미싱 가능성**: 높음 / 보통 / 낮음 (세 단계 중 하나만 선택)
- **스미싱 의심 요소**: (가능성이 높음/보통인 경우만 작성) 발신자 정보, URL/링크, 개인정보나 금전 요구, 긴급성 유도, 부자연스러운 문법을 항목별로 분석하세요.
- **정상 메시지일 가능성**: (가능성이 낮음인 경우만 작성) 정상으로 판단한 근거를 설명하세요.
- **사용자 주의사항**: 링크 클릭 금지, 개인정보 입력 금지, 118 또는 경찰청 사이버수사대 신고 등 실제로 필요한 조치만 안내하세요.
- **최종 안내**: 이 분석 결과는 참고용이며 100%% 정확하지 않을 수 있습니다. 의심되는 경우 공식 기관이나 고객센터를 통해 사실 여부를 확인하시기 바랍니다.

아래는 사용자가 보낸 문자메시지입니다:

"""
%s
"""

이제 분석 결과를 위 형식에 맞추어 출력하세요.`

func smishingMessages(text string) []llm.Message {
	return []llm.Message{{Role: domain.SenderUser, Content: fmt.Sprintf(smishingPrompt, text)}}
}
