package notifier

// TextNotifier sends a plain text message somewhere a human reads it.
type TextNotifier interface {
	SendText(text string) error
}
