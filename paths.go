package aegis

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ValidationResult is the outcome of a ValidatePath call. Errors is
// empty exactly when Valid is true; Message carries the first failure
// for display.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// maxDecodeRounds bounds repeated percent-decoding so that deeply
// nested encodings (%252e...) cannot loop the validator.
const maxDecodeRounds = 3

// ValidatePath is the yes/no security gate over a candidate path.
// The candidate is percent-decoded and normalized before any traversal
// detection, so encoded or mixed-separator traversal ("..\\",
// "%2e%2e%2f", "folder/./../../x") is caught rather than slipping past
// a raw substring search. A nil policy applies DefaultPathPolicy.
//
// Validation rejects; it never repairs. Callers that want a usable
// path out of imperfect input should use SanitizePath instead.
func ValidatePath(candidate string, policy *PathPolicy) ValidationResult {
	var defaulted PathPolicy
	if policy == nil {
		defaulted = DefaultPathPolicy()
		policy = &defaulted
	}

	if candidate == "" {
		return invalidResult("path is empty")
	}

	decoded := decodeCandidate(candidate)

	// Null bytes anywhere, raw or encoded, make the path malformed
	// regardless of every other check.
	if strings.ContainsRune(candidate, 0) || strings.ContainsRune(decoded, 0) {
		return invalidResult("path contains a null byte")
	}

	// Unify separators so Windows-style traversal is normalized.
	unified := strings.ReplaceAll(decoded, "\\", "/")

	var errs []string

	if !policy.AllowTraversal && walksAboveRoot(unified) {
		errs = append(errs, "path traversal is not allowed")
	}

	if isAbsoluteCandidate(unified) && !policy.AllowAbsolutePaths {
		errs = append(errs, "absolute paths are not allowed")
	}

	if len(policy.AllowedBaseDirs) > 0 {
		normalized := path.Clean(unified)
		within := false
		for _, base := range policy.AllowedBaseDirs {
			if containsLexically(strings.ReplaceAll(base, "\\", "/"), normalized) {
				within = true
				break
			}
		}
		if !within {
			errs = append(errs, "path is not within allowed directories")
		}
	}

	if policy.EnforceExtension {
		allowed := policy.AllowedExtensions
		if allowed == nil {
			allowed = defaultExtensions
		}
		ext := strings.ToLower(path.Ext(path.Clean(unified)))
		if !extensionAllowed(ext, allowed) {
			errs = append(errs, fmt.Sprintf("extension %q is not allowed", ext))
		}
	}

	if len(errs) > 0 {
		return ValidationResult{Valid: false, Message: errs[0], Errors: errs}
	}

	return ValidationResult{Valid: true, Message: "path validation successful"}
}

// SanitizePath coerces an untrusted candidate into a path guaranteed
// to lie within baseDir. Traversal segments are stripped regardless of
// encoding or separator style, the remainder is resolved against
// baseDir, and if containment still cannot be proven the result
// collapses to baseDir/basename(candidate). Empty input yields "".
// This function never fails.
func SanitizePath(candidate, baseDir string) string {
	if candidate == "" {
		return ""
	}

	base := filepath.Clean(baseDir)

	decoded := decodeCandidate(candidate)
	decoded = strings.ReplaceAll(decoded, "\x00", "")
	unified := strings.ReplaceAll(decoded, "\\", "/")

	// Drop traversal and empty segments, keep everything else. A
	// segment merely containing dots ("file..txt") is legitimate and
	// survives.
	var kept []string
	for _, segment := range strings.Split(unified, "/") {
		switch segment {
		case "", ".", "..":
			continue
		}
		kept = append(kept, segment)
	}

	if len(kept) == 0 {
		return base
	}

	resolved := filepath.Join(base, filepath.Join(kept...))

	// Joining stripped relative segments onto base cannot escape it,
	// but keep the containment check as the final guarantee for
	// adversarial inputs the stripping did not anticipate.
	if !containsLexically(base, filepath.ToSlash(resolved)) {
		fallback := kept[len(kept)-1]
		return filepath.Join(base, fallback)
	}

	return resolved
}

// decodeCandidate repeatedly percent-decodes until the string is
// stable, so %252e%252e style double encoding is unwrapped. Inputs
// with invalid escapes are returned as-is.
func decodeCandidate(candidate string) string {
	current := candidate
	for i := 0; i < maxDecodeRounds; i++ {
		decoded, err := url.PathUnescape(current)
		if err != nil || decoded == current {
			break
		}
		current = decoded
	}
	return current
}

// walksAboveRoot walks the slash-separated segments tracking depth and
// reports whether any ".." segment would climb above the candidate's
// own root. Interior traversal that stays at or below the root
// ("folder/../file") is neutralized by normalization and does not
// count.
func walksAboveRoot(unified string) bool {
	trimmed := strings.TrimPrefix(unified, "/")
	// Strip a Windows drive prefix so "C:/.." is judged from the
	// drive root.
	if len(trimmed) >= 2 && trimmed[1] == ':' {
		trimmed = trimmed[2:]
		trimmed = strings.TrimPrefix(trimmed, "/")
	}

	depth := 0
	for _, segment := range strings.Split(trimmed, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

func isAbsoluteCandidate(unified string) bool {
	if strings.HasPrefix(unified, "/") {
		return true
	}
	// Windows drive letter
	return len(unified) >= 2 && unified[1] == ':'
}

// containsLexically reports whether candidate equals base or is a
// descendant of it, comparing cleaned slash-separated forms with a
// trailing-separator-safe prefix check.
func containsLexically(base, candidate string) bool {
	cleanBase := path.Clean(strings.ReplaceAll(base, "\\", "/"))
	cleanCandidate := path.Clean(strings.ReplaceAll(candidate, "\\", "/"))

	if cleanBase == "." {
		// Everything relative is under the current directory.
		return !strings.HasPrefix(cleanCandidate, "/")
	}
	if cleanCandidate == cleanBase {
		return true
	}
	return strings.HasPrefix(cleanCandidate, cleanBase+"/")
}

func extensionAllowed(ext string, allowed []string) bool {
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(ext, a) {
			return true
		}
	}
	return false
}

func invalidResult(message string) ValidationResult {
	return ValidationResult{Valid: false, Message: message, Errors: []string{message}}
}
