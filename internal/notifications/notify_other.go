//go:build !linux

package notifications

import "github.com/gen2brain/beeep"

// sendUrgent is a sounding alert where no notification urgency is available
func sendUrgent(title, message string) error {
	return beeep.Alert(title, message, "")
}
