package models

// Notification icons
const (
	IconInfo    = "info"
	IconSuccess = "success"
	IconWarning = "warning"
	IconError   = "error"
)

// Notification is a one-off message for the user (skipped entries, quota stop,
// batch summary).
type Notification struct {
	Icon  string `json:"icon"`
	Title string `json:"title"`
	Text  string `json:"text"`
}
