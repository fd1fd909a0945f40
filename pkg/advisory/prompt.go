package advisory

import (
	"encoding/json"
	"fmt"

	"github.com/treatment-compliance-server/internal/domain"
)

// SystemPrompt pins the model to a JSON-only oncologist persona.
const SystemPrompt = "Ты - онколог. Отвечаешь только JSON."

const assessmentTemplate = `Ты - строгий онколог, следующий клиническим рекомендациям. Оцени препарат.

Тип рака: %s
Препарат: %s
Биомаркеры: %s

КРИТЕРИИ ОЦЕНКИ (будь строг!):
1. Соответствует ли препарат стандартам лечения для этого типа рака?
2. Учитывает ли он биомаркеры? (HER2, EGFR, PD-L1 и т.д.)
3. Есть ли противопоказания или неэффективность?

ПРИМЕРЫ НЕДОПУСТИМЫХ НАЗНАЧЕНИЙ:
- Трастузумаб при HER2-негативном раке желудка → противопоказан (0 баллов)
- Тамоксифен при раке желудка → не применяется (0 баллов)
- Гемцитабин в 1 линии рака желудка → нестандартно (низкий балл)

Ответь строго в формате JSON:
{
    "is_appropriate": true/false,
    "is_contraindicated": true/false,
    "explanation": "краткое объяснение",
    "confidence": 0.0-1.0,
    "score_recommendation": 0-25
}`

// BuildPrompt renders the per-drug assessment question.
func BuildPrompt(req *domain.AdvisoryRequest) string {
	markers := req.Biomarkers
	if markers == nil {
		markers = domain.Biomarkers{}
	}
	encoded, err := json.MarshalIndent(markers, "", "  ")
	if err != nil {
		encoded = []byte("{}")
	}
	return fmt.Sprintf(assessmentTemplate, req.CancerType, req.Treatment, encoded)
}
