package scheduler

import "github.com/magabrotheeeer/premium-service/internal/models"

// NotificationType тип уведомлений о пробном периоде во входящих.
const NotificationType = "trial"

type milestoneText struct {
	title   string
	message string
}

var milestoneTexts = map[models.Milestone]milestoneText{
	models.MilestoneThreeDays: {
		title:   "Deneme Süreniz Bitiyor! ⏰",
		message: "Premium denemeniz 3 gün içinde sona erecek. Abone olarak tüm kitaplara erişiminizi sürdürün!",
	},
	models.MilestoneOneDay: {
		title:   "Son 1 Gün! ⚠️",
		message: "Premium denemeniz yarın sona eriyor! Hemen abone olun ve kesintisiz okumaya devam edin.",
	},
	models.MilestoneExpired: {
		title:   "Deneme Süreniz Bitti 😔",
		message: "Premium denemeniz sona erdi. Premium kitaplara erişmek için abone olun!",
	},
}

// Payload формирует уведомление для контрольной точки.
func Payload(userID string, m models.Milestone) models.NotificationPayload {
	text := milestoneTexts[m]
	return models.NotificationPayload{
		Title:        text.title,
		Message:      text.message,
		Type:         NotificationType,
		TargetUserID: userID,
	}
}
