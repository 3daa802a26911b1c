// ABOUTME: Concrete channel senders: sendmail for email, osascript Messages for imessage

package delivery

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/jnun/contactcmd/internal/store"
)

// SendmailSender delivers email by piping an RFC 822 message to the local
// sendmail binary.
type SendmailSender struct {
	// Path to the sendmail binary; defaults to "sendmail" on PATH.
	Path string
}

func (s *SendmailSender) Send(ctx context.Context, entry *store.QueueEntry) error {
	path := s.Path
	if path == "" {
		path = "sendmail"
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", entry.RecipientAddress)
	if entry.Subject != "" {
		fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(entry.Subject))
	}
	msg.WriteString("\r\n")
	msg.WriteString(entry.Body)

	cmd := exec.CommandContext(ctx, path, "-t")
	cmd.Stdin = &msg
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sendmail: %w: %s", err, firstLine(string(out)))
	}
	return nil
}

// IMessageSender delivers via the macOS Messages app through osascript.
type IMessageSender struct{}

func (s *IMessageSender) Send(ctx context.Context, entry *store.QueueEntry) error {
	script := fmt.Sprintf(`tell application "Messages"
	set targetBuddy to buddy %q of service 1
	send %q to targetBuddy
end tell`, entry.RecipientAddress, entry.Body)

	return runOSAScript(ctx, script)
}

// SMSSender delivers through the Messages app's SMS relay service.
type SMSSender struct{}

func (s *SMSSender) Send(ctx context.Context, entry *store.QueueEntry) error {
	script := fmt.Sprintf(`tell application "Messages"
	set targetService to 1st service whose service type = SMS
	set targetBuddy to buddy %q of targetService
	send %q to targetBuddy
end tell`, entry.RecipientAddress, entry.Body)

	return runOSAScript(ctx, script)
}

func runOSAScript(ctx context.Context, script string) error {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, firstLine(string(out)))
	}
	return nil
}

// sanitizeHeader strips CR and LF so entry content cannot inject headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
