package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	Environment string

	// Database (local journal + settings)
	DatabaseURL string

	// Firebase (Firestore mirror + FCM push)
	FirebaseCredentialsPath string
	FirebaseProjectID       string

	// Twilio (primary call/SMS mechanisms)
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// Generic HTTP SMS gateway (secondary SMS mechanism)
	SMSGatewayURL string

	// SOS policy
	CooldownSeconds        int
	DefaultEmergencyNumber string
	HelplineNumbers        []string
	MessageTemplate        string
	CallDelaySeconds       float64
	SMSDelaySeconds        float64

	// Escalation
	AlertEscalationTime int  // minutes until guardians are re-notified
	EnableEmailFallback bool // email guardians when push fails
	EnableSMSFallback   bool
	EnableCallFallback  bool

	// SMTP (guardian email fallback)
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromName  string
	SMTPFromEmail string
}

const defaultTemplate = "EMERGENCY! I need help immediately.\nLocation: {LOCATION}\nTime: {TIMESTAMP}\nSent via Sentinel."

// Official helpline short codes. SMS to these numbers is not a supported
// channel, they are excluded from SMS fan-out but may still be called.
const defaultHelplines = "100,101,102,103,108,1091,1098,182,112"

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️  Info: .env file not found or unreadable. Reading configuration from system environment.")
	}

	return &Config{
		// Server
		Port:        getEnvWithDefault("PORT", "8080"),
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),

		// Database
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// Firebase
		FirebaseCredentialsPath: os.Getenv("FIREBASE_CREDENTIALS_PATH"),
		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),

		// Twilio
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: os.Getenv("TWILIO_PHONE_NUMBER"),

		// SMS gateway
		SMSGatewayURL: os.Getenv("SMS_GATEWAY_URL"),

		// SOS policy
		CooldownSeconds:        getEnvInt("SOS_COOLDOWN_SECONDS", 30),
		DefaultEmergencyNumber: getEnvWithDefault("DEFAULT_EMERGENCY_NUMBER", "100"),
		HelplineNumbers:        splitList(getEnvWithDefault("HELPLINE_NUMBERS", defaultHelplines)),
		MessageTemplate:        getEnvWithDefault("SOS_MESSAGE_TEMPLATE", defaultTemplate),
		CallDelaySeconds:       getEnvFloat("CALL_DELAY_SECONDS", 2.0),
		SMSDelaySeconds:        getEnvFloat("SMS_DELAY_SECONDS", 0.5),

		// Escalation
		AlertEscalationTime: getEnvInt("ALERT_ESCALATION_TIME", 5),
		EnableEmailFallback: getEnvBool("ENABLE_EMAIL_FALLBACK", true),
		EnableSMSFallback:   getEnvBool("ENABLE_SMS_FALLBACK", true),
		EnableCallFallback:  getEnvBool("ENABLE_CALL_FALLBACK", true),

		// SMTP
		SMTPHost:      getEnvWithDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPFromName:  getEnvWithDefault("SMTP_FROM_NAME", "Sentinel Safety"),
		SMTPFromEmail: os.Getenv("SMTP_FROM_EMAIL"),
	}, nil
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c *Config) CallDelay() time.Duration {
	return time.Duration(c.CallDelaySeconds * float64(time.Second))
}

func (c *Config) SMSDelay() time.Duration {
	return time.Duration(c.SMSDelaySeconds * float64(time.Second))
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var floatValue float64
		if _, err := fmt.Sscanf(value, "%f", &floatValue); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks that every required setting is present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.FirebaseCredentialsPath == "" {
		log.Println("⚠️  FIREBASE_CREDENTIALS_PATH not set: Firestore mirror and guardian push disabled")
	}

	if c.EnableSMSFallback && c.TwilioAccountSID == "" && c.SMSGatewayURL == "" {
		log.Println("⚠️  SMS enabled but neither Twilio nor SMS_GATEWAY_URL configured")
	}

	if c.EnableCallFallback && (c.TwilioAccountSID == "" || c.TwilioAuthToken == "") {
		log.Println("⚠️  Call fallback enabled but Twilio credentials not configured")
	}

	if c.EnableEmailFallback && (c.SMTPUsername == "" || c.SMTPPassword == "") {
		log.Println("⚠️  Email fallback enabled but SMTP credentials not configured")
	}

	return nil
}
