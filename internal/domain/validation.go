package domain

type ValidationIssue struct {
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	Column    *string `json:"column,omitempty"`
	RowNumber *int    `json:"row_number,omitempty"`
	Severity  string  `json:"severity,omitempty"`
}

// ValidationResult is immutable once received; re-validating a sheet replaces
// the previous result instead of editing it.
type ValidationResult struct {
	IsValid      bool              `json:"is_valid"`
	TotalRecords int               `json:"total_records"`
	ValidRows    int               `json:"valid_rows,omitempty"`
	ErrorCount   int               `json:"error_count,omitempty"`
	WarningCount int               `json:"warning_count,omitempty"`
	Issues       []ValidationIssue `json:"issues"`
	DataSummary  map[string]any    `json:"data_summary,omitempty"`
}

func (v ValidationResult) Clone() ValidationResult {
	out := v
	if v.Issues != nil {
		out.Issues = append([]ValidationIssue(nil), v.Issues...)
	}
	if v.DataSummary != nil {
		out.DataSummary = make(map[string]any, len(v.DataSummary))
		for k, val := range v.DataSummary {
			out.DataSummary[k] = val
		}
	}
	return out
}
