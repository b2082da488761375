// Package types defines core data types and enums for the guideline translator.
package types

// Config holds application configuration.
type Config struct {
	OpenAIAPIKey   string `json:"openai_api_key"`
	OpenAIBaseURL  string `json:"openai_base_url"` // Base URL for an OpenAI-compatible API
	OpenAIModel    string `json:"openai_model"`
	TargetLanguage string `json:"target_language"` // BCP 47 tag of the translation target, e.g. "zh-CN"
	MaxUnitSize    int    `json:"max_unit_size"`   // maximum characters per translation unit
	Concurrency    int    `json:"concurrency"`     // in-flight translation units
	GlossaryPath   string `json:"glossary_path"`   // optional external glossary file (JSON)
	OutputDir      string `json:"output_dir"`
	TableCropDPI   int    `json:"table_crop_dpi"` // raster resolution for table screenshots
}

// Frontmatter carries the opaque document metadata fields emitted into the
// QMD header. The core never interprets these beyond copying them through.
type Frontmatter struct {
	Title           string   `json:"title"`
	Subtitle        string   `json:"subtitle"`
	DocNumber       string   `json:"doc_number"`
	Date            string   `json:"date"`
	PublicationDate string   `json:"publication_date"`
	Keywords        []string `json:"keywords"`
}

// PipelinePhase identifies the stage a run is currently in.
type PipelinePhase string

const (
	PhaseIdle        PipelinePhase = "idle"
	PhaseExtracting  PipelinePhase = "extracting"
	PhaseFiltering   PipelinePhase = "filtering"
	PhaseAssembling  PipelinePhase = "assembling"
	PhaseTranslating PipelinePhase = "translating"
	PhaseWriting     PipelinePhase = "writing"
	PhaseComplete    PipelinePhase = "complete"
	PhaseError       PipelinePhase = "error"
)

// RunSummary reports the outcome of a pipeline run.
type RunSummary struct {
	Pages            int `json:"pages"`
	FiguresKept      int `json:"figures_kept"`
	TablesKept       int `json:"tables_kept"`
	AssetsDropped    int `json:"assets_dropped"`
	Headings         int `json:"headings"`
	Ambiguous        int `json:"ambiguous"` // heading candidates resolved to body text by the tie-break
	TranslationUnits int `json:"translation_units"`
	FailedUnits      int `json:"failed_units"` // units kept in the source language after retry
	TokensUsed       int `json:"tokens_used"`
}

// ErrorCode classifies application errors.
type ErrorCode string

const (
	ErrExtraction           ErrorCode = "EXTRACTION_ERROR"            // fatal: no usable text
	ErrStructuralIntegrity  ErrorCode = "STRUCTURAL_INTEGRITY_ERROR"  // fatal: unresolvable figure/table reference
	ErrTranslationIntegrity ErrorCode = "TRANSLATION_INTEGRITY_ERROR" // local to a unit
	ErrBackend              ErrorCode = "BACKEND_ERROR"
	ErrNetwork              ErrorCode = "NETWORK_ERROR"
	ErrRateLimit            ErrorCode = "RATE_LIMIT_ERROR"
	ErrConfig               ErrorCode = "CONFIG_ERROR"
	ErrInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrInternal             ErrorCode = "INTERNAL_ERROR"
)

// AppError is the application error type carried across package boundaries.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// IsFatal reports whether an error code must abort the whole run. Only the
// two structural kinds stop a run; everything else degrades locally.
func IsFatal(code ErrorCode) bool {
	return code == ErrExtraction || code == ErrStructuralIntegrity
}
