package datanorm

import "github.com/ignite/product-ingest/internal/catalog"

// Entry describes one record that failed, was skipped, or produced a
// data quality warning.
type Entry struct {
	Index    int            `json:"index"`
	RecordID string         `json:"product_id"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// Outcome accumulates the results of one TransformBatch call. It is only
// appended to during the run and read afterwards.
type Outcome struct {
	Successes []catalog.Product
	Failures  []Entry
	Warnings  []Entry
	// Skipped holds records rejected by the validator. They are not
	// failures and do not count towards TotalCount.
	Skipped []Entry
}

func (o *Outcome) SuccessCount() int { return len(o.Successes) }
func (o *Outcome) FailureCount() int { return len(o.Failures) }
func (o *Outcome) WarningCount() int { return len(o.Warnings) }
func (o *Outcome) SkippedCount() int { return len(o.Skipped) }

// TotalCount is successes plus failures.
func (o *Outcome) TotalCount() int { return o.SuccessCount() + o.FailureCount() }

// FailedIDs lists the record ids of every failure in order.
func (o *Outcome) FailedIDs() []string {
	ids := make([]string, 0, len(o.Failures))
	for _, f := range o.Failures {
		ids = append(ids, f.RecordID)
	}
	return ids
}

// Summary is the compact form reported to callers.
type Summary struct {
	SuccessCount     int      `json:"success_count"`
	FailureCount     int      `json:"failure_count"`
	TotalCount       int      `json:"total_count"`
	FailedProductIDs []string `json:"failed_product_ids"`
	WarningCount     int      `json:"warning_count"`
	SkippedCount     int      `json:"skipped_count"`
}

func (o *Outcome) Summary() Summary {
	return Summary{
		SuccessCount:     o.SuccessCount(),
		FailureCount:     o.FailureCount(),
		TotalCount:       o.TotalCount(),
		FailedProductIDs: o.FailedIDs(),
		WarningCount:     o.WarningCount(),
		SkippedCount:     o.SkippedCount(),
	}
}
