package alerts

import "github.com/sentiq/healthiq/pkg/models"

// riskDescriptions are the fixed per-level summaries. No free text is ever
// generated here.
var riskDescriptions = map[models.RiskLevel]string{
	models.RiskGreen:  "Your recent entries look stable. Keep logging as usual.",
	models.RiskYellow: "Some signals in your recent entries deserve attention. Review your active alerts.",
	models.RiskOrange: "Several signals suggest reduced stability. Consider reviewing the flagged entries with a professional.",
}

// ComputeRisk derives the coarse traffic-light tier from the HSI score and
// the active (un-acknowledged) alerts. The alert count alone can escalate
// an otherwise healthy score: three active alerts mean orange even at a
// high HSI.
func (e *Engine) ComputeRisk(hsi *models.HSIScore, active []models.UserAlert) models.RiskStatus {
	score := 50.0
	if hsi != nil {
		score = hsi.Score
	}

	warnings, attention := 0, 0
	for _, alert := range active {
		switch alert.Severity {
		case models.SeverityWarning:
			warnings++
		case models.SeverityAttention:
			attention++
		}
	}

	level := models.RiskGreen
	switch {
	case score < e.config.RiskOrangeScore || len(active) >= e.config.RiskOrangeAlerts:
		level = models.RiskOrange
	case score < e.config.RiskYellowScore || warnings+attention > 0:
		level = models.RiskYellow
	}

	return models.RiskStatus{
		Level:          level,
		HSIScore:       score,
		ActiveAlerts:   len(active),
		WarningCount:   warnings,
		AttentionCount: attention,
		Description:    riskDescriptions[level],
	}
}
