package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIcon  = "audio-input-microphone"
	notifyShape = "susssasa{sv}i"
)

// urgency is the freedesktop "urgency" hint byte.
type urgency byte

const (
	urgencyLow urgency = iota
	urgencyNormal
	urgencyCritical
)

// notification is one Notify call. replaces is the id of the bubble to update
// in place, or 0 for a new one.
type notification struct {
	app       string
	replaces  uint32
	summary   string
	body      string
	urgency   urgency
	timeoutMS int
}

// busctlArgs renders n in busctl's positional encoding: no actions and a
// single urgency hint.
func (n notification) busctlArgs() []string {
	return []string{
		notifyShape,
		n.app,
		strconv.FormatUint(uint64(n.replaces), 10),
		notifyIcon,
		n.summary,
		n.body,
		"0",
		"1", "urgency", "y", strconv.Itoa(int(n.urgency)),
		strconv.Itoa(n.timeoutMS),
	}
}

// desktopNotify posts n over the session bus and returns the server's id.
func desktopNotify(ctx context.Context, n notification) (uint32, error) {
	out, err := busctl(ctx, "Notify", n.busctlArgs()...)
	if err != nil {
		return 0, err
	}
	return parseNotificationID(out)
}

// desktopDismiss closes the bubble with the given id.
func desktopDismiss(ctx context.Context, id uint32) error {
	_, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10))
	return err
}

func busctl(ctx context.Context, method string, args ...string) ([]byte, error) {
	argv := append([]string{"--user", "call", notifyDest, notifyPath, notifyDest, method}, args...)
	out, err := exec.CommandContext(ctx, "busctl", argv...).CombinedOutput()
	if err == nil {
		return out, nil
	}
	if detail := strings.TrimSpace(string(out)); detail != "" {
		return nil, fmt.Errorf("busctl %s: %w (%s)", method, err, detail)
	}
	return nil, fmt.Errorf("busctl %s: %w", method, err)
}

// parseNotificationID reads busctl's "u <id>" reply.
func parseNotificationID(out []byte) (uint32, error) {
	reply := strings.TrimSpace(string(out))
	kind, value, ok := strings.Cut(reply, " ")
	if !ok || kind != "u" {
		return 0, fmt.Errorf("busctl Notify: unexpected reply %q", reply)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("busctl Notify: parse id %q: %w", value, err)
	}
	return uint32(id), nil
}
