//go:build !linux

package auth

// ShowPairingNotification is a no-op where no notification mechanism is
// wired up; pairing still succeeds.
func ShowPairingNotification(clientName string) error {
	return nil
}
