//go:build !linux

package media

// NewSession returns a no-op session on platforms without MPRIS. The daemon
// runs fine without OS media integration.
func NewSession() (Session, error) {
	return NewNoOpSession(), nil
}
