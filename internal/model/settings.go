package model

// EmailSettings controls per-user mail integration behavior.
type EmailSettings struct {
	UserID                 int  `json:"-"`
	AutoCompleteSentEmails bool `json:"auto_complete_sent_emails"`
	RetentionDays          int  `json:"retention_days"`
}

// DefaultEmailSettings applies when the user never saved settings.
func DefaultEmailSettings(userID int) EmailSettings {
	return EmailSettings{
		UserID:                 userID,
		AutoCompleteSentEmails: true,
		RetentionDays:          30,
	}
}

// ClampRetentionDays keeps the retention window inside a sane range.
func ClampRetentionDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > 365 {
		return 365
	}
	return days
}
