package email

import (
	"fmt"
	"log"
)

// SendEmergencyAlert emails a guardian about an active SOS. Used when push
// delivery fails or no token resolves.
func (s *EmailService) SendEmergencyAlert(guardianEmail, guardianName, userName, message, mapLink string) error {
	subject := fmt.Sprintf("🚨 SOS ALERT - %s needs help", userName)
	htmlBody := EmergencyAlertTemplate(guardianName, userName, message, mapLink)

	if err := s.SendEmail(guardianEmail, subject, htmlBody); err != nil {
		log.Printf("❌ Failed to send emergency email: %v", err)
		return err
	}

	log.Printf("📧 Emergency email sent to: %s", guardianEmail)
	return nil
}

// SendResolvedNotice tells a guardian the alert is over.
func (s *EmailService) SendResolvedNotice(guardianEmail, guardianName, userName, reason string) error {
	subject := fmt.Sprintf("✅ Alert resolved - %s is safe", userName)
	htmlBody := ResolvedNoticeTemplate(guardianName, userName, reason)

	if err := s.SendEmail(guardianEmail, subject, htmlBody); err != nil {
		log.Printf("❌ Failed to send resolution email: %v", err)
		return err
	}

	log.Printf("📧 Resolution email sent to: %s", guardianEmail)
	return nil
}
