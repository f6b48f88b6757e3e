package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"grokfav/pkg/config"
	"grokfav/pkg/status"
)

// NotificationTitle is shown on every desktop notification
const NotificationTitle = "Grok Favorites"

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %s with title %s`, appleQuote(message), appleQuote(title))
	return exec.Command("osascript", "-e", script).Run()
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("grokfav").Show($toast)
	`, xmlEscape(title), xmlEscape(message))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

func xmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(s)
}

// PlatformSender returns the sender for the current OS, or nil where desktop
// notifications are unsupported.
func PlatformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Notifier raises desktop notifications for terminal run events. It
// implements status.Sink.
type Notifier struct {
	sender NotificationSender
	cfg    config.NotificationConfig
	// OnSendError observes failed sends; notifications are best effort
	OnSendError func(error)
}

// NewNotifier creates a notifier. A nil sender disables delivery.
func NewNotifier(sender NotificationSender, cfg config.NotificationConfig) *Notifier {
	return &Notifier{sender: sender, cfg: cfg}
}

// Publish implements status.Sink
func (n *Notifier) Publish(e status.Event) {
	if n.sender == nil || !n.cfg.Enabled || !n.cfg.Desktop {
		return
	}

	switch e.State {
	case status.StateIdle:
		// Only the run summary, not every idle acknowledgement
		if !n.cfg.OnComplete || !strings.HasPrefix(e.Text, "✓") {
			return
		}
	case status.StateError:
		if !n.cfg.OnError {
			return
		}
	default:
		return
	}

	if err := n.sender.Send(NotificationTitle, e.Text); err != nil && n.OnSendError != nil {
		n.OnSendError(err)
	}
}
