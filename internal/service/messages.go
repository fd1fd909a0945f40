package service

import (
	"github.com/treatment-compliance-server/internal/domain"
)

// ScoreMessage maps a final score to its human-readable verdict.
func ScoreMessage(score int) string {
	switch {
	case score >= 90:
		return "✅ Отличное соответствие протоколам Минздрава"
	case score >= 75:
		return "👍 Хорошее соответствие, незначительные отклонения от протоколов"
	case score >= 60:
		return "⚠️ Частичное соответствие, требуется анализ отклонений"
	case score >= 40:
		return "❌ Значительные отклонения от протоколов Минздрава"
	default:
		return "🚨 Критическое несоответствие протоколам! Требуется консилиум"
	}
}

// ProvenanceNote explains to the clinician where the score came from.
func ProvenanceNote(p domain.Provenance) string {
	switch p {
	case domain.ProvenanceKnowledgeBase:
		return "✅ Оценка основана на клинических рекомендациях Минздрава РФ"
	case domain.ProvenanceMixed:
		return "🔄 Часть линий оценена по базе Минздрава, часть - AI"
	case domain.ProvenanceAIOnly:
		return "🤖 Для данного типа рака нет данных в базе Минздрава. Оценка основана на AI."
	case domain.ProvenanceAIFallback:
		return "⚠️ База знаний не содержит подходящих протоколов для этих линий. Оценка основана на AI. Рекомендуется ручная проверка в клинических рекомендациях."
	default:
		return ""
	}
}
