package common

import "errors"

func (e *MosaicError) Error() string {
	msg := e.Message
	if e.Key != "" {
		msg = e.Key + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// MosaicError represents analysis, matching and synthesis errors
type MosaicError struct {
	Code    string `json:"code"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *MosaicError) Unwrap() error {
	return e.Cause
}

// Is matches on error code so callers can use errors.Is with the sentinels below
func (e *MosaicError) Is(target error) bool {
	var other *MosaicError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code && other.Key == "" && other.Message == ""
}

// Common error codes
const (
	ErrCodeMissingDependency = "MISSING_DEPENDENCY"
	ErrCodeConfiguration     = "CONFIGURATION"
	ErrCodeGrainMismatch     = "GRAIN_MISMATCH"
	ErrCodeStorageWrite      = "STORAGE_WRITE"
	ErrCodeStorageRead       = "STORAGE_READ"
	ErrCodeUndefinedFeature  = "UNDEFINED_FEATURE_VALUE"
	ErrCodeDecoding          = "DECODING_FAILED"
)

var (
	ErrMissingDependency = &MosaicError{Code: ErrCodeMissingDependency}
	ErrConfiguration     = &MosaicError{Code: ErrCodeConfiguration}
	ErrGrainMismatch     = &MosaicError{Code: ErrCodeGrainMismatch}
	ErrStorageWrite      = &MosaicError{Code: ErrCodeStorageWrite}
	ErrStorageRead       = &MosaicError{Code: ErrCodeStorageRead}
	// ErrUndefinedFeature is soft: undefined values are stored as NaN and never returned
	// from extraction. It is only used to tag warnings.
	ErrUndefinedFeature = &MosaicError{Code: ErrCodeUndefinedFeature}
	ErrDecoding         = &MosaicError{Code: ErrCodeDecoding}
)

// NewMosaicError creates a new error carrying the offending key
func NewMosaicError(code, key, message string, cause error) *MosaicError {
	return &MosaicError{
		Code:    code,
		Key:     key,
		Message: message,
		Cause:   cause,
	}
}

// ConfigError is shorthand for configuration failures
func ConfigError(key, message string) *MosaicError {
	return NewMosaicError(ErrCodeConfiguration, key, message, nil)
}
