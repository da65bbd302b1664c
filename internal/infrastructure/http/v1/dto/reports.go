package dto

import (
	"prorab/internal/domain/issues"
)

// --- Issue report options ---

// OptionsObject is one selectable object.
type OptionsObject struct {
	Name string  `json:"name"`
	ID   *string `json:"id"`
}

// OptionsResponse lists the objects with issuances in a period.
type OptionsResponse struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Objects []OptionsObject `json:"objects"`
}

// FromReportOptions converts domain options to response DTO.
func FromReportOptions(from, to string, opts *issues.ReportOptions) OptionsResponse {
	resp := OptionsResponse{From: from, To: to, Objects: make([]OptionsObject, 0, len(opts.Objects))}
	for _, name := range opts.Objects {
		resp.Objects = append(resp.Objects, OptionsObject{Name: name, ID: opts.ObjectIDByName[name]})
	}
	return resp
}
