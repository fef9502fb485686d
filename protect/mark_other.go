//go:build !linux

package protect

// Mark is a no-op outside Linux; SO_MARK does not exist there.
func Mark(mark int) Protector { return nil }
