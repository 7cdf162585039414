package email

import (
	"fmt"
	"time"
)

// EmergencyAlertTemplate builds the HTML body for the guardian emergency
// email.
func EmergencyAlertTemplate(guardianName, userName, message, mapLink string) string {
	mapSection := ""
	if mapLink != "" {
		mapSection = fmt.Sprintf(`<p><a class="button" href="%s">Open last known location</a></p>`, mapLink)
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header { background-color: #FF0000; color: white; padding: 20px; text-align: center; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { padding: 30px; }
        .alert-box { background-color: #FFF3CD; border-left: 4px solid #FF0000; padding: 15px; margin: 20px 0; }
        .footer { background-color: #f8f9fa; padding: 15px; text-align: center; font-size: 12px; color: #666; }
        .button { display: inline-block; background-color: #FF0000; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin-top: 20px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>🚨 SOS Alert</h1>
        </div>
        <div class="content">
            <p>Hello <strong>%s</strong>,</p>

            <div class="alert-box">
                <strong>EMERGENCY:</strong> <strong>%s</strong> triggered an SOS alert and may need your help right now.
            </div>

            <p><strong>Message:</strong> %s</p>
            <p><strong>Date/Time:</strong> %s</p>
            %s

            <p><strong>Recommended actions:</strong></p>
            <ul>
                <li>Call them immediately</li>
                <li>Open the app and acknowledge the alert</li>
                <li>If you cannot reach them, contact local emergency services</li>
            </ul>
        </div>
        <div class="footer">
            <p>This is an automated email from Sentinel Safety</p>
            <p>Do not reply to this email</p>
        </div>
    </div>
</body>
</html>
    `, guardianName, userName, message, time.Now().Format("02/01/2006 15:04"), mapSection)
}

// ResolvedNoticeTemplate builds the HTML body for the all-clear email.
func ResolvedNoticeTemplate(guardianName, userName, reason string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header { background-color: #28A745; color: white; padding: 20px; text-align: center; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { padding: 30px; }
        .info-box { background-color: #D4EDDA; border-left: 4px solid #28A745; padding: 15px; margin: 20px 0; }
        .footer { background-color: #f8f9fa; padding: 15px; text-align: center; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>✅ Alert Resolved</h1>
        </div>
        <div class="content">
            <p>Hello <strong>%s</strong>,</p>

            <div class="info-box">
                The SOS alert from <strong>%s</strong> has been resolved.
            </div>

            <p><strong>Reason:</strong> %s</p>
            <p><strong>Date/Time:</strong> %s</p>
        </div>
        <div class="footer">
            <p>This is an automated email from Sentinel Safety</p>
            <p>Do not reply to this email</p>
        </div>
    </div>
</body>
</html>
    `, guardianName, userName, reason, time.Now().Format("02/01/2006 15:04"))
}
