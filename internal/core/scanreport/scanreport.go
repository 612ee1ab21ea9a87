// Package scanreport decodes security scan reports posted by the scanner
// and derives the summary columns stored with a scan.
//
// Reports without a version or with a 1.x version decode as V1. Any other
// version is kept verbatim as Unknown and yields an empty summary.
package scanreport

import (
	"bytes"
	"encoding/json"
	"strings"

	perr "mpak/internal/platform/errors"
)

// Severity of one finding
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Finding is one reported issue
type Finding struct {
	ID       string   `json:"id,omitempty"`
	Control  string   `json:"control,omitempty"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title,omitempty"`
	File     string   `json:"file,omitempty"`
	Line     *int     `json:"line,omitempty"`
}

// Compliance is the control tally of a report
type Compliance struct {
	Level          *int   `json:"level"`
	LevelName      string `json:"level_name"`
	ControlsPassed *int   `json:"controls_passed"`
	ControlsFailed *int   `json:"controls_failed"`
	ControlsTotal  *int   `json:"controls_total"`
}

// V1 is the 1.x report document
type V1 struct {
	Version    string      `json:"version"`
	RiskScore  string      `json:"risk_score,omitempty"`
	Compliance *Compliance `json:"compliance,omitempty"`
	Findings   []Finding   `json:"findings,omitempty"`
}

// Report is a decoded report: V1 when understood, Raw always holds the original document
type Report struct {
	V1  *V1
	Raw json.RawMessage
}

// Decode reads a report; empty or null input is an absent report
func Decode(raw []byte) (Report, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return Report{}, nil
	}
	var head struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Report{}, perr.WithField(perr.Wrapf(err, perr.ErrorCodeJSON, "report must be a JSON object"), "report")
	}
	keep := append(json.RawMessage(nil), raw...)
	if head.Version != "" && !strings.HasPrefix(head.Version, "1.") && head.Version != "1" {
		return Report{Raw: keep}, nil
	}
	var v V1
	if err := json.Unmarshal(raw, &v); err != nil {
		return Report{}, perr.WithField(perr.Wrapf(err, perr.ErrorCodeJSON, "report does not match version 1"), "report")
	}
	return Report{V1: &v, Raw: keep}, nil
}

// Present reports whether any document was posted
func (r Report) Present() bool { return len(r.Raw) > 0 }

// Summary is the derived, nullable scan summary
type Summary struct {
	ReportVersion       *string
	FindingsTotal       *int
	FindingsCritical    *int
	FindingsHigh        *int
	FindingsMedium      *int
	FindingsLow         *int
	FindingsInfo        *int
	ComplianceLevel     *int
	ComplianceLevelName *string
	ControlsPassed      *int
	ControlsFailed      *int
	ControlsTotal       *int
}

// Summary derives counts from a V1 report; anything missing stays nil
func (r Report) Summary() Summary {
	var s Summary
	if r.V1 == nil {
		return s
	}
	if r.V1.Version != "" {
		v := r.V1.Version
		s.ReportVersion = &v
	}
	if r.V1.Findings != nil {
		var total, crit, high, med, low, info int
		for _, f := range r.V1.Findings {
			total++
			switch Severity(strings.ToLower(string(f.Severity))) {
			case SeverityCritical:
				crit++
			case SeverityHigh:
				high++
			case SeverityMedium:
				med++
			case SeverityLow:
				low++
			case SeverityInfo:
				info++
			}
		}
		s.FindingsTotal, s.FindingsCritical, s.FindingsHigh = &total, &crit, &high
		s.FindingsMedium, s.FindingsLow, s.FindingsInfo = &med, &low, &info
	}
	if c := r.V1.Compliance; c != nil {
		s.ComplianceLevel = c.Level
		if c.LevelName != "" {
			n := c.LevelName
			s.ComplianceLevelName = &n
		}
		s.ControlsPassed, s.ControlsFailed, s.ControlsTotal = c.ControlsPassed, c.ControlsFailed, c.ControlsTotal
	}
	return s
}

var riskScores = map[string]bool{"CRITICAL": true, "HIGH": true, "MEDIUM": true, "LOW": true, "NONE": true}

// NormalizeRisk upper-cases a risk score and reports whether it is known
func NormalizeRisk(s string) (string, bool) {
	u := strings.ToUpper(strings.TrimSpace(s))
	return u, riskScores[u]
}
