// Package dataset reads batch manifests of recorded calls from xlsx
// workbooks. Column positions are detected from the header row by
// heuristics, so exports from different telephony vendors load without
// per-vendor mapping.
package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Record is one manifest row: a recorded call waiting to be processed.
type Record struct {
	CallID      string `json:"call_id"`
	UserID      string `json:"user_id,omitempty"`
	CallerPhone string `json:"caller_phone,omitempty"`
	Industry    string `json:"industry,omitempty"`
	AudioURL    string `json:"audio_url"`
	Transcript  string `json:"transcript,omitempty"`
}

// Summary is a compact per-manifest breakdown.
type Summary struct {
	TotalCalls     int            `json:"total_calls"`
	ByIndustry     map[string]int `json:"by_industry"`
	WithTranscript int            `json:"with_transcript"`
}

// Load reads the first sheet of the workbook at path. Rows whose audio cell
// is not an http(s) URL and that carry no transcript are skipped quietly.
func Load(path string) ([]Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	callIDIdx := -1
	userIdx := -1
	phoneIdx := -1
	industryIdx := -1
	audioIdx := -1
	transcriptIdx := -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "audio") || strings.Contains(l, "record") || strings.Contains(l, "url") || strings.Contains(l, "link"):
			if audioIdx == -1 {
				audioIdx = i
			}
		case strings.Contains(l, "transcript") || strings.Contains(l, "text"):
			if transcriptIdx == -1 {
				transcriptIdx = i
			}
		case strings.Contains(l, "industry") || strings.Contains(l, "vertical") || strings.Contains(l, "business"):
			if industryIdx == -1 {
				industryIdx = i
			}
		case strings.Contains(l, "phone") || strings.Contains(l, "caller"):
			if phoneIdx == -1 {
				phoneIdx = i
			}
		case strings.Contains(l, "user") || strings.Contains(l, "account") || strings.Contains(l, "owner"):
			if userIdx == -1 {
				userIdx = i
			}
		case strings.Contains(l, "call id") || strings.Contains(l, "callid") || strings.Contains(l, "id"):
			if callIDIdx == -1 {
				callIDIdx = i
			}
		}
	}
	if audioIdx == -1 && len(header) > 1 {
		// vendor exports without a recognizable header put the URL second
		audioIdx = 1
	}

	cell := func(r []string, idx int) string {
		if idx >= 0 && idx < len(r) {
			return strings.TrimSpace(r[idx])
		}
		return ""
	}

	var out []Record
	for i, r := range rows {
		if i == 0 {
			continue
		}
		rec := Record{
			CallID:      cell(r, callIDIdx),
			UserID:      cell(r, userIdx),
			CallerPhone: cell(r, phoneIdx),
			Industry:    cell(r, industryIdx),
			AudioURL:    cell(r, audioIdx),
			Transcript:  cell(r, transcriptIdx),
		}
		if rec.CallID == "" {
			rec.CallID = fmt.Sprintf("row-%d", i+1)
		}
		lowerURL := strings.ToLower(rec.AudioURL)
		if !strings.HasPrefix(lowerURL, "http://") && !strings.HasPrefix(lowerURL, "https://") {
			rec.AudioURL = ""
		}
		if rec.AudioURL == "" && rec.Transcript == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Summarize breaks a loaded manifest down by industry.
func Summarize(records []Record) Summary {
	s := Summary{TotalCalls: len(records), ByIndustry: map[string]int{}}
	for _, r := range records {
		industry := r.Industry
		if industry == "" {
			industry = "general"
		}
		s.ByIndustry[industry]++
		if r.Transcript != "" {
			s.WithTranscript++
		}
	}
	return s
}
