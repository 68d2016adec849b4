package manifest

// ErrorKind classifies manifest load failures.
type ErrorKind int

const (
	// KindTooLarge means the manifest file exceeded MaxManifestSize.
	KindTooLarge ErrorKind = iota
	// KindMalformed means the manifest could not be parsed.
	KindMalformed
	// KindValidation means the manifest parsed but violated the schema.
	KindValidation
	// KindFileNotFound means the manifest itself or a referenced
	// index/metadata path does not exist.
	KindFileNotFound
)

// String returns the kind name for logs and error messages.
func (k ErrorKind) String() string {
	switch k {
	case KindTooLarge:
		return "manifest_too_large"
	case KindMalformed:
		return "malformed_manifest"
	case KindValidation:
		return "validation_error"
	case KindFileNotFound:
		return "file_not_found"
	default:
		return "unknown"
	}
}

// LoadError is a classified manifest load failure.
// Path holds the manifest path, or the resolved path for
// KindFileNotFound failures on referenced files.
type LoadError struct {
	Kind  ErrorKind
	Path  string
	Field string // failing field for KindValidation, empty otherwise
	Msg   string
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return e.Msg
}
