//go:build linux

package auth

import (
	"fmt"
	"log"
	"os/exec"
)

// ShowPairingNotification tells the user a client wants to pair, via
// notify-send when a notification daemon is around to receive it.
func ShowPairingNotification(clientName string) error {
	cmd := exec.Command("notify-send",
		"deimos pairing request",
		fmt.Sprintf("Client '%s' wants to control your music daemon", clientName),
		"--urgency=critical",
		"--icon=audio-x-generic",
	)

	if err := cmd.Run(); err != nil {
		return err
	}

	log.Printf("[AUTH] Showed pairing notification for client: %s", clientName)
	return nil
}
