package notify

import (
	"fmt"
	"os/exec"
)

// Urgency levels for desktop notifications.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyCritical Urgency = "critical"
)

// Notifier shows a notification to the user.
type Notifier interface {
	Send(title, body string, urgency Urgency) error
}

// Desktop sends desktop notifications via notify-send.
type Desktop struct {
	appName string
	run     func(name string, args ...string) error
}

// NewDesktop creates a notifier labelled ECHO.
func NewDesktop() *Desktop {
	return &Desktop{
		appName: "ECHO",
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Available checks if notify-send is installed.
func (n *Desktop) Available() bool {
	_, err := exec.LookPath("notify-send")
	return err == nil
}

// Send shows a notification. It is a no-op when notify-send is missing.
func (n *Desktop) Send(title, body string, urgency Urgency) error {
	if !n.Available() {
		return nil
	}
	return n.run("notify-send", n.args(title, body, urgency, 0)...)
}

// SendWithTimeout shows a notification that expires after timeoutMs.
func (n *Desktop) SendWithTimeout(title, body string, urgency Urgency, timeoutMs int) error {
	if !n.Available() {
		return nil
	}
	return n.run("notify-send", n.args(title, body, urgency, timeoutMs)...)
}

func (n *Desktop) args(title, body string, urgency Urgency, timeoutMs int) []string {
	args := []string{
		"--app-name=" + n.appName,
		"--urgency=" + string(urgency),
	}
	if urgency == UrgencyCritical {
		args = append(args, "--icon=dialog-warning")
	} else {
		args = append(args, "--icon=dialog-information")
	}
	if timeoutMs > 0 {
		args = append(args, fmt.Sprintf("--expire-time=%d", timeoutMs))
	}
	return append(args, title, body)
}
