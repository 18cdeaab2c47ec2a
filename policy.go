package aegis

// PathPolicy controls what ValidatePath accepts. Policies are plain
// call-scoped values; callers that want to override a single rule
// should start from DefaultPathPolicy (or one of the purpose-built
// policies below) and adjust the field in question. Passing a nil
// policy to ValidatePath applies DefaultPathPolicy.
type PathPolicy struct {
	// AllowedExtensions lists the file extensions (with leading dot)
	// accepted when EnforceExtension is set. Matching is
	// case-insensitive. A nil slice falls back to the default list.
	AllowedExtensions []string

	// AllowedBaseDirs restricts candidates to descendants of at least
	// one of these directories. Empty means no base-dir restriction.
	AllowedBaseDirs []string

	// AllowAbsolutePaths permits absolute candidates.
	AllowAbsolutePaths bool

	// AllowTraversal permits ".." segments that walk above the
	// candidate's own root. Off in every default policy.
	AllowTraversal bool

	// EnforceExtension requires the candidate's extension to be in
	// AllowedExtensions.
	EnforceExtension bool
}

// defaultExtensions is the system fallback extension allow-list.
var defaultExtensions = []string{".docx", ".html", ".md", ".txt", ".json", ".tmpl"}

// DefaultPathPolicy returns the system default policy: the fixed
// extension allow-list, no base-dir restriction, absolute paths
// allowed, traversal disallowed, extension enforced.
func DefaultPathPolicy() PathPolicy {
	return PathPolicy{
		AllowedExtensions:  append([]string(nil), defaultExtensions...),
		AllowAbsolutePaths: true,
		AllowTraversal:     false,
		EnforceExtension:   true,
	}
}

// DefaultTemplatePolicy returns the policy the integrity checker
// applies to template files before reading them.
func DefaultTemplatePolicy() PathPolicy {
	return PathPolicy{
		AllowedExtensions:  []string{".docx", ".html", ".md", ".txt", ".tmpl"},
		AllowAbsolutePaths: true,
		AllowTraversal:     false,
		EnforceExtension:   true,
	}
}

// DefaultKeyPolicy returns the policy applied to signing key files.
func DefaultKeyPolicy() PathPolicy {
	return PathPolicy{
		AllowedExtensions:  []string{".pem", ".key", ".pub"},
		AllowAbsolutePaths: true,
		AllowTraversal:     false,
		EnforceExtension:   true,
	}
}
