// Package manifest loads and validates dataset descriptor files.
//
// A manifest is a small JSON or YAML document sitting in a dataset
// directory, naming the dataset and pointing at its FAISS index
// directory and metadata file. Loading produces either a ready Dataset
// with fully resolved paths or a classified LoadError.
//
// Information Hiding:
// - Parsing and schema validation details hidden
// - Path resolution rules encapsulated
// - Error classification internalized

package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxManifestSize is the hard ceiling on manifest file size. Larger
// files are rejected before parsing.
const MaxManifestSize = 10 * 1024 // 10 KiB

// DefaultTopK is used when a manifest does not specify defaultTopK.
const DefaultTopK = 5

// Status describes whether a dataset is usable.
type Status string

const (
	StatusReady Status = "ready"
	StatusError Status = "error"
)

// Dataset is the validated, path-resolved form of a manifest.
// Immutable after load; a reload produces fresh values.
type Dataset struct {
	ID           string
	Name         string
	Description  string
	IndexPath    string
	MetadataPath string
	DefaultTopK  int
	Status       Status
	ErrorDetail  string
	ManifestPath string
}

// fileManifest mirrors the on-disk manifest document.
type fileManifest struct {
	ID          string `json:"id" yaml:"id" validate:"required,datasetid"`
	Name        string `json:"name" yaml:"name" validate:"required,min=1,max=128"`
	Description string `json:"description" yaml:"description" validate:"required,min=1,max=512"`
	Index       string `json:"index" yaml:"index" validate:"required"`
	Metadata    string `json:"metadata" yaml:"metadata" validate:"required"`
	DefaultTopK *int   `json:"defaultTopK" yaml:"defaultTopK" validate:"omitempty,min=1,max=100"`
}

var datasetIDPattern = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)

// Loader parses and validates manifest files.
type Loader struct {
	validate *validator.Validate
}

// NewLoader creates a loader with the manifest schema registered.
func NewLoader() *Loader {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("datasetid", func(fl validator.FieldLevel) bool {
		return datasetIDPattern.MatchString(fl.Field().String())
	})
	return &Loader{validate: v}
}

// Load reads the manifest at path and returns a ready Dataset.
// Failures are returned as *LoadError with a Kind the caller can
// classify on.
func (l *Loader) Load(path string) (Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Dataset{}, &LoadError{
			Kind: KindFileNotFound,
			Path: path,
			Msg:  fmt.Sprintf("manifest not found: %s", path),
		}
	}
	if info.Size() > MaxManifestSize {
		return Dataset{}, &LoadError{
			Kind: KindTooLarge,
			Path: path,
			Msg:  fmt.Sprintf("manifest exceeds %d byte limit (%d bytes)", MaxManifestSize, info.Size()),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, &LoadError{
			Kind: KindFileNotFound,
			Path: path,
			Msg:  fmt.Sprintf("failed to read manifest: %v", err),
		}
	}

	var fm fileManifest
	if err := unmarshalByExt(path, data, &fm); err != nil {
		return Dataset{}, &LoadError{
			Kind: KindMalformed,
			Path: path,
			Msg:  fmt.Sprintf("failed to parse manifest: %v", err),
		}
	}

	if err := l.validate.Struct(&fm); err != nil {
		return Dataset{}, validationError(path, err)
	}

	topK := DefaultTopK
	if fm.DefaultTopK != nil {
		topK = *fm.DefaultTopK
	}

	dir := filepath.Dir(path)
	indexPath := resolvePath(dir, fm.Index)
	metadataPath := resolvePath(dir, fm.Metadata)

	if err := checkDir(indexPath); err != nil {
		return Dataset{}, &LoadError{
			Kind: KindFileNotFound,
			Path: indexPath,
			Msg:  fmt.Sprintf("index directory not found: %s", indexPath),
		}
	}
	if err := checkFile(metadataPath); err != nil {
		return Dataset{}, &LoadError{
			Kind: KindFileNotFound,
			Path: metadataPath,
			Msg:  fmt.Sprintf("metadata file not found: %s", metadataPath),
		}
	}

	return Dataset{
		ID:           fm.ID,
		Name:         fm.Name,
		Description:  fm.Description,
		IndexPath:    indexPath,
		MetadataPath: metadataPath,
		DefaultTopK:  topK,
		Status:       StatusReady,
		ManifestPath: path,
	}, nil
}

// unmarshalByExt picks the codec from the file extension.
// YAML manifests use .yaml/.yml; everything else is treated as JSON.
func unmarshalByExt(path string, data []byte, out *fileManifest) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, out)
	default:
		return json.Unmarshal(data, out)
	}
}

// resolvePath resolves relative paths against the manifest's own
// directory, never the process working directory. This keeps dataset
// folders relocatable.
func resolvePath(manifestDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(manifestDir, p)
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}
	return nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("not a file: %s", path)
	}
	return nil
}

// validationError converts the first validator issue into a LoadError.
// Single-violation reporting is the contract; the remaining issues are
// rediscovered after the first one is fixed.
func validationError(path string, err error) *LoadError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return &LoadError{
			Kind: KindValidation,
			Path: path,
			Msg:  fmt.Sprintf("manifest validation failed: %v", err),
		}
	}

	first := verrs[0]
	field := jsonFieldName(first.StructField())
	return &LoadError{
		Kind:  KindValidation,
		Path:  path,
		Field: field,
		Msg:   fmt.Sprintf("invalid manifest field %q: %s", field, constraintMessage(first)),
	}
}

// jsonFieldName maps struct field names to their manifest keys.
func jsonFieldName(structField string) string {
	switch structField {
	case "ID":
		return "id"
	case "DefaultTopK":
		return "defaultTopK"
	default:
		return strings.ToLower(structField)
	}
}

// constraintMessage renders a human-readable description of the failed
// constraint so callers can self-correct without reading the schema.
func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "datasetid":
		return "must match [a-z0-9-] and be 1-64 characters"
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}
