package server

import (
	"encoding/json"
	"net/http"

	"github.com/tabguard-ai/tabguard/internal/classifier"
	"github.com/tabguard-ai/tabguard/internal/pii"
	"github.com/tabguard-ai/tabguard/internal/risk"
)

type classifyResponse struct {
	Accepted bool               `json:"accepted"`
	Record   *classifier.Record `json:"record,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var ev classifier.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, classifyResponse{Accepted: false})
		return
	}
	rec, ok := s.engine.Classify(r.Context(), ev)
	if !ok {
		writeJSON(w, classifyResponse{Accepted: false})
		return
	}
	writeJSON(w, classifyResponse{Accepted: true, Record: &rec})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	records := s.engine.ServicesForOrigin(r.URL.Query().Get("origin"))
	if records == nil {
		records = []classifier.Record{}
	}
	writeJSON(w, records)
}

type sanitizeRequest struct {
	Text      string `json:"text"`
	JSON      any    `json:"json"`
	Category  string `json:"category"`
	ContextID *int   `json:"context_id"`
	Origin    string `json:"origin"`
}

type sanitizeResponse struct {
	Sanitized     string          `json:"sanitized,omitempty"`
	SanitizedJSON any             `json:"sanitized_json,omitempty"`
	RiskLevel     string          `json:"risk_level"`
	Score         int             `json:"score"`
	Redactions    []pii.Redaction `json:"redactions"`
	Counts        map[string]int  `json:"counts"`
}

// hashSource yields the dedupe key material for a PII report: the
// text body, or the serialized JSON body when that path was taken.
func (req sanitizeRequest) hashSource() string {
	if req.JSON == nil {
		return req.Text
	}
	raw, err := json.Marshal(req.JSON)
	if err != nil {
		return req.Text
	}
	return string(raw)
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req sanitizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, sanitizeResponse{RiskLevel: string(risk.LevelLow), Redactions: []pii.Redaction{}, Counts: map[string]int{}})
		return
	}
	category := req.Category
	if category == "" {
		category = "general"
	}

	resp := sanitizeResponse{Redactions: []pii.Redaction{}, Counts: map[string]int{}}
	var summary pii.Summary
	if req.JSON != nil {
		out, sum := s.engine.SanitizeValue(req.JSON, category)
		resp.SanitizedJSON = out
		summary = sum
	} else {
		res := s.engine.Sanitize(req.Text, category)
		resp.Sanitized = res.Sanitized
		if res.Redactions != nil {
			resp.Redactions = res.Redactions
		}
		summary = res.Summary
	}
	if summary.Counts != nil {
		resp.Counts = summary.Counts
	}

	assessment := s.engine.Assess(risk.Context{
		Origin:       req.Origin,
		Processing:   risk.ProcessingUnknown,
		SiteCategory: category,
		PIISummary:   summary,
	})
	resp.RiskLevel = string(assessment.Level)
	resp.Score = assessment.Score

	if req.ContextID != nil && req.Origin != "" && summary.Any() {
		kinds := make([]string, 0, len(summary.Counts))
		for typ := range summary.Counts {
			kinds = append(kinds, typ)
		}
		s.engine.ReportPII(*req.ContextID, req.Origin, kinds, req.hashSource())
	}

	writeJSON(w, resp)
}

type assessRequest struct {
	Origin          string         `json:"origin"`
	Processing      string         `json:"processing"`
	TrackersPresent bool           `json:"trackers_present"`
	SiteCategory    string         `json:"site_category"`
	Hostname        string         `json:"hostname"`
	URL             string         `json:"url"`
	Title           string         `json:"title"`
	PIICounts       map[string]int `json:"pii_counts"`
}

func (req assessRequest) context(s *Server) risk.Context {
	category := req.SiteCategory
	if category == "" {
		category = s.engine.InferSiteCategory(req.Hostname, req.URL, req.Title)
	}
	return risk.Context{
		Origin:          req.Origin,
		Processing:      risk.ParseProcessing(req.Processing),
		TrackersPresent: req.TrackersPresent,
		SiteCategory:    category,
		PIISummary:      pii.Summary{Counts: req.PIICounts},
	}
}

func (s *Server) handleRiskAssess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, s.engine.Assess(risk.Context{SiteCategory: "general", Processing: risk.ProcessingUnknown}))
		return
	}
	writeJSON(w, s.engine.Assess(req.context(s)))
}

type explainRequest struct {
	Assessment *risk.Assessment `json:"assessment"`
	Context    assessRequest    `json:"context"`
}

type explainResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleRiskExplain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req explainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rctx := risk.Context{SiteCategory: "general", Processing: risk.ProcessingUnknown}
		assessment := s.engine.Assess(rctx)
		writeJSON(w, explainResponse{Text: s.engine.ExplainRisk(r.Context(), assessment, rctx)})
		return
	}
	rctx := req.Context.context(s)
	assessment := s.engine.Assess(rctx)
	if req.Assessment != nil {
		assessment = *req.Assessment
	}
	writeJSON(w, explainResponse{Text: s.engine.ExplainRisk(r.Context(), assessment, rctx)})
}
