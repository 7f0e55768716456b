package model

import (
	"strings"
	"time"
)

// Form types processed by the statement pipeline.
const (
	FormAnnual    = "10-K"
	FormQuarterly = "10-Q"

	amendmentSuffix = "/A"
)

// Filing is one regulatory submission with an XBRL instance attached.
type Filing struct {
	AccessionNumber    string    `json:"accession_number"`
	CIK                int64     `json:"cik"`
	CompanyName        string    `json:"company_name"`
	FormType           string    `json:"form_type"`
	FilingDate         time.Time `json:"filing_date"`
	FileNumber         string    `json:"file_number,omitempty"`
	AcceptanceDatetime time.Time `json:"acceptance_datetime"`
	Period             time.Time `json:"period"`
	AssistantDirector  string    `json:"assistant_director,omitempty"`
	AssignedSIC        int       `json:"assigned_sic,omitempty"`
	OtherCIKNumbers    string    `json:"other_cik_numbers,omitempty"`
	FiscalYearEnd      int       `json:"fiscal_year_end,omitempty"`
	EnclosureURL       string    `json:"enclosure_url,omitempty"`
	InstanceURL        string    `json:"instance_url,omitempty"`
	Ticker             string    `json:"ticker,omitempty"`
	Errors             string    `json:"errors,omitempty"`
	RunID              string    `json:"run_id,omitempty"`
}

// IsAmendment reports whether the form type carries the "/A" suffix.
func (f *Filing) IsAmendment() bool {
	return strings.HasSuffix(f.FormType, amendmentSuffix)
}

// BaseForm returns the form type without the amendment suffix.
func (f *Filing) BaseForm() string {
	return strings.TrimSuffix(f.FormType, amendmentSuffix)
}

// IsAnnual reports whether the filing is a 10-K or 10-K/A.
func (f *Filing) IsAnnual() bool {
	return f.BaseForm() == FormAnnual
}

// IsQuarterly reports whether the filing is a 10-Q or 10-Q/A.
func (f *Filing) IsQuarterly() bool {
	return f.BaseForm() == FormQuarterly
}

// IsStatementForm reports whether the pipeline handles this form type at all.
func IsStatementForm(formType string) bool {
	switch formType {
	case FormAnnual, FormAnnual + amendmentSuffix, FormQuarterly, FormQuarterly + amendmentSuffix:
		return true
	default:
		return false
	}
}
