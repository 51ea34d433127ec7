package predictor

import "github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"

var actions = map[models.FailureType][2]string{
	models.FailureTonerDepletion: {"Monitor toner level and plan a cartridge order", "Replace the toner cartridge"},
	models.FailurePaperDepletion: {"Check paper stock at the next visit", "Refill the paper trays"},
	models.FailureNetwork:        {"Review the printer's network logs", "Check cabling, switch port and IP configuration"},
	models.FailureHardware:       {"Schedule a preventive inspection", "Dispatch a technician for a hardware inspection"},
}

// RecommendedAction 推荐处理动作
func RecommendedAction(ft models.FailureType, severity models.Severity) string {
	pair, ok := actions[ft]
	if !ok {
		return "Inspect the device"
	}
	switch severity {
	case models.SeverityCritical:
		return "Immediately: " + pair[1]
	case models.SeverityHigh:
		return pair[1]
	default:
		return pair[0]
	}
}
