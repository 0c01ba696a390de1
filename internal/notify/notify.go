// Package notify sends desktop notifications when a session ends.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier sends system notifications.
type Notifier struct {
	Enabled bool
}

// Send sends a system notification.
// On macOS, uses osascript to display notifications.
// On other platforms, this is a no-op.
func (n *Notifier) Send(title, message string) error {
	if n == nil || !n.Enabled {
		return nil
	}

	if runtime.GOOS != "darwin" {
		return nil
	}

	return sendMacOSNotification(title, message)
}

func sendMacOSNotification(title, message string) error {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, escape(message), escape(title))
	cmd := exec.Command("osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// FormatSessionComplete formats the notification for a finished session.
func FormatSessionComplete(ideaTitle string, completed bool, runs int) (title, message string) {
	if completed {
		title = "✅ labloop experiments complete"
		message = fmt.Sprintf("%s: %d run(s) succeeded", ideaTitle, runs)
	} else {
		title = "⚠️ labloop experiments failed"
		message = fmt.Sprintf("%s: gave up after %d successful run(s)", ideaTitle, runs)
	}
	return title, message
}
