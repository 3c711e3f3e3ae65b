package crypto

// ZeroBytes overwrites a byte slice with zeros to remove sensitive data
// from memory after use.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
