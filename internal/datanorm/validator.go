package datanorm

import (
	"fmt"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
)

// SuccessCode is the status value of a record the supplier fetched cleanly.
// Only the string form counts; a numeric 0 is a non-success code.
const SuccessCode = "0"

// RequiredFields must be present and truthy inside productInfo, so 0, ""
// and false count as missing.
var RequiredFields = []string{"goods_id"}

// Validator performs the structural pre-check that decides whether a raw
// record is transformed or skipped. It never fails on malformed input.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks, in order: the status code, the presence of
// info.productInfo, then every required field. The first two checks stop
// at their first issue; the required-field check reports every missing field.
func (v *Validator) Validate(rec Raw) (bool, []*ingesterr.ValidationIssue) {
	if code, ok := rec["code"].(string); !ok || code != SuccessCode {
		var actual any
		if rec.Has("code") {
			actual = rec["code"]
		}
		return false, []*ingesterr.ValidationIssue{
			ingesterr.NewValidationIssue(
				fmt.Sprintf("Product has non-success code: %v", actual),
				"code", SuccessCode, actual),
		}
	}

	info, ok := rec.Path("info", "productInfo")
	if !ok || len(info) == 0 {
		return false, []*ingesterr.ValidationIssue{
			ingesterr.NewValidationIssue("Missing productInfo in raw product", "info.productInfo", "object", nil),
		}
	}

	var issues []*ingesterr.ValidationIssue
	for _, field := range RequiredFields {
		if !Truthy(info[field]) {
			var actual any
			if info.Has(field) {
				actual = info[field]
			}
			issues = append(issues, ingesterr.NewValidationIssue(
				"Missing required field: "+field, field, "non-empty value", actual))
		}
	}
	return len(issues) == 0, issues
}

// QuickValid applies the same status and product-id rule without building
// issues. Used by the validate task to count records.
func QuickValid(v any) bool {
	rec, ok := AsRaw(v)
	if !ok {
		return false
	}
	ok, _ = NewValidator().Validate(rec)
	return ok
}
