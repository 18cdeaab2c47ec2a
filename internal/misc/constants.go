package misc

const (
	// ArgonTime Key derivation parameters
	ArgonTime    uint32 = 4
	ArgonMemory  uint32 = 128 * 1024
	ArgonThreads uint8  = 4
	ArgonKeyLen  uint32 = 32
	SaltSize            = 16

	// DefaultTokenBytes is the byte length used when callers ask for a
	// random token without giving a size.
	DefaultTokenBytes = 32

	FilePermissions = 0600 // user read + write
)
