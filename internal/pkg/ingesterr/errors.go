// Package ingesterr defines the error taxonomy of the ingestion pipeline.
// Every error carries a category, severity, retryability and a free-form
// context map that is copied verbatim into invocation responses.
package ingesterr

import (
	"errors"
	"fmt"
	"time"
)

type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryTransformation Category = "transformation"
	CategoryDataQuality    Category = "data_quality"
	CategoryService        Category = "aws_service"
	CategoryConfiguration  Category = "configuration"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Context is attached to every classified error.
type Context map[string]any

// Classified is implemented by all taxonomy errors.
type Classified interface {
	error
	Category() Category
	Severity() Severity
	Retryable() bool
	Fields() Context
}

// base is embedded by every concrete error type.
type base struct {
	msg      string
	category Category
	severity Severity
	retry    bool
	ctx      Context
	cause    error
	at       time.Time
}

func newBase(msg string, cat Category, sev Severity, retry bool, cause error) base {
	return base{msg: msg, category: cat, severity: sev, retry: retry, ctx: Context{}, cause: cause, at: time.Now().UTC()}
}

func (b *base) Error() string {
	if b.cause != nil {
		return fmt.Sprintf("%s: %v", b.msg, b.cause)
	}
	return b.msg
}

func (b *base) Message() string     { return b.msg }
func (b *base) Unwrap() error       { return b.cause }
func (b *base) Category() Category  { return b.category }
func (b *base) Severity() Severity  { return b.severity }
func (b *base) Retryable() bool     { return b.retry }
func (b *base) Fields() Context     { return b.ctx }
func (b *base) set(k string, v any) { b.ctx[k] = v }

// With adds a context field, e.g. the correlation id known only to the caller.
func (b *base) With(key string, val any) { b.set(key, val) }

// ValidationIssue reports one failed structural check on a raw record.
type ValidationIssue struct {
	base
	Field    string
	Expected string
	Actual   any
}

func NewValidationIssue(msg, field, expected string, actual any) *ValidationIssue {
	e := &ValidationIssue{base: newBase(msg, CategoryValidation, SeverityLow, false, nil), Field: field, Expected: expected, Actual: actual}
	e.set("field_name", field)
	e.set("expected_type", expected)
	if actual != nil {
		e.set("actual_value", fmt.Sprint(actual))
	}
	return e
}

// TransformationFailure means a record was dropped. ProductID is always set.
type TransformationFailure struct {
	base
	ProductID string
	Field     string
}

func NewTransformationFailure(productID, field string, cause error) *TransformationFailure {
	msg := fmt.Sprintf("failed to transform product %s", productID)
	if field != "" {
		msg += " (" + field + ")"
	}
	e := &TransformationFailure{base: newBase(msg, CategoryTransformation, SeverityMedium, false, cause), ProductID: productID, Field: field}
	e.set("product_id", productID)
	if field != "" {
		e.set("field_name", field)
	}
	return e
}

// DataQualityWarning is attached to a record that was kept but looks suspect.
type DataQualityWarning struct {
	base
	ProductID string
	Issues    []string
}

func NewDataQualityWarning(productID string, issues []string) *DataQualityWarning {
	e := &DataQualityWarning{
		base:      newBase(fmt.Sprintf("product %s has %d data quality issues", productID, len(issues)), CategoryDataQuality, SeverityLow, false, nil),
		ProductID: productID,
		Issues:    issues,
	}
	e.set("product_id", productID)
	e.set("quality_issues", issues)
	return e
}

// Progress is the publish accounting reached before a hard failure.
type Progress struct {
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// ServiceFailure wraps a failing call to an external service. It is
// retryable by default.
type ServiceFailure struct {
	base
	Service   string
	Operation string
	Progress  *Progress
}

func NewServiceFailure(service, operation string, cause error) *ServiceFailure {
	e := &ServiceFailure{
		base:      newBase(fmt.Sprintf("%s %s failed", service, operation), CategoryService, SeverityHigh, true, cause),
		Service:   service,
		Operation: operation,
	}
	e.set("aws_service", service)
	e.set("operation", operation)
	return e
}

// WithProgress records counts already produced when the failure happened.
func (e *ServiceFailure) WithProgress(p Progress) *ServiceFailure {
	e.Progress = &p
	e.set("published", p.Published)
	e.set("failed_count", p.Failed)
	e.set("total", p.Total)
	return e
}

// ConfigurationFailure is fatal and never retried: malformed invocation
// input or missing configuration.
type ConfigurationFailure struct {
	base
	Key string
}

func NewConfigurationFailure(msg, key string, cause error) *ConfigurationFailure {
	e := &ConfigurationFailure{base: newBase(msg, CategoryConfiguration, SeverityCritical, false, cause), Key: key}
	e.set("config_key", key)
	return e
}

// IsRetryable reports whether err, or any error it wraps, is a classified
// retryable error.
func IsRetryable(err error) bool {
	var c Classified
	if errors.As(err, &c) {
		return c.Retryable()
	}
	return false
}

// ToMap renders err for logs and response bodies. Unclassified errors get
// a minimal shape.
func ToMap(err error) map[string]any {
	if err == nil {
		return nil
	}
	var c Classified
	if !errors.As(err, &c) {
		return map[string]any{
			"error_type": fmt.Sprintf("%T", err),
			"message":    err.Error(),
		}
	}
	out := map[string]any{
		"error_type": typeName(c),
		"message":    c.Error(),
		"severity":   string(c.Severity()),
		"category":   string(c.Category()),
		"retryable":  c.Retryable(),
		"context":    map[string]any(c.Fields()),
	}
	if u, ok := c.(interface{ Unwrap() error }); ok && u.Unwrap() != nil {
		out["original_exception"] = u.Unwrap().Error()
	}
	return out
}

func typeName(c Classified) string {
	switch c.(type) {
	case *ValidationIssue:
		return "ValidationIssue"
	case *TransformationFailure:
		return "TransformationFailure"
	case *DataQualityWarning:
		return "DataQualityWarning"
	case *ServiceFailure:
		return "ServiceFailure"
	case *ConfigurationFailure:
		return "ConfigurationFailure"
	}
	return fmt.Sprintf("%T", c)
}
