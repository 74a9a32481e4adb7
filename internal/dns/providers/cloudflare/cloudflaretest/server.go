// Package cloudflaretest provides an in-process fake of the Cloudflare DNS
// records API for adapter and dispatcher tests.
package cloudflaretest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

// Token is the API token the fake accepts
const Token = "cf-test-token"

// Cloudflare error codes the fake emits
const (
	CodeRecordNotFound  = 81044
	CodeInvalidIdentity = 7003
	CodeAuthFailed      = 10000
	CodeAlreadyExists   = 81057
)

// Record is a DNS record held by the fake
type Record struct {
	ID       string  `json:"id"`
	ZoneID   string  `json:"zone_id"`
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Content  string  `json:"content"`
	TTL      int     `json:"ttl"`
	Priority *uint16 `json:"priority,omitempty"`
}

// Fault makes the next Times matching requests fail with an API error
type Fault struct {
	Method  string // empty matches any method
	Status  int
	Code    int
	Message string
	Times   int
}

// Call is one request the fake received
type Call struct {
	Method string
	Path   string
	Query  string
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

type envelope struct {
	Success    bool        `json:"success"`
	Errors     []apiError  `json:"errors"`
	Messages   []apiError  `json:"messages"`
	Result     interface{} `json:"result"`
	ResultInfo *resultInfo `json:"result_info,omitempty"`
}

// Server is a fake Cloudflare API. Zones are created implicitly on first use.
type Server struct {
	srv *httptest.Server

	mu      sync.Mutex
	seq     int
	records map[string]map[string]*Record
	zones   map[string]string // name -> id
	faults  []*Fault
	calls   []Call
}

// NewServer starts a fake Cloudflare API; callers must Close it
func NewServer() *Server {
	s := &Server{
		records: make(map[string]map[string]*Record),
		zones:   make(map[string]string),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the base URL to hand to the client
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts down the server
func (s *Server) Close() {
	s.srv.Close()
}

// Seed stores r directly (drift: a record the client never created) and returns its id
func (s *Server) Seed(zoneID string, r Record) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ZoneID = zoneID
	if r.ID == "" {
		r.ID = s.nextID()
	}
	s.zone(zoneID)[r.ID] = &r
	return r.ID
}

// AddZone makes a zone visible to zone listing
func (s *Server) AddZone(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[strings.ToLower(name)] = id
}

// Remove deletes a record behind the client's back
func (s *Server) Remove(zoneID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zone(zoneID), id)
}

// Records returns the zone's records ordered by id
func (s *Server) Records(zoneID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records[zoneID]))
	for _, r := range s.records[zoneID] {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a record by id
func (s *Server) Get(zoneID, id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[zoneID][id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Inject queues a fault
func (s *Server) Inject(f Fault) {
	if f.Times <= 0 {
		f.Times = 1
	}
	if f.Status == 0 {
		f.Status = http.StatusBadRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &f)
}

// Calls returns every request received so far
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CountCalls counts received requests with the given method
func (s *Server) CountCalls(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Server) nextID() string {
	s.seq++
	return fmt.Sprintf("rec%04d", s.seq)
}

func (s *Server) zone(zoneID string) map[string]*Record {
	z, ok := s.records[zoneID]
	if !ok {
		z = make(map[string]*Record)
		s.records[zoneID] = z
	}
	return z
}

func (s *Server) takeFault(method string) *Fault {
	for i, f := range s.faults {
		if f.Method != "" && f.Method != method {
			continue
		}
		f.Times--
		if f.Times <= 0 {
			s.faults = append(s.faults[:i], s.faults[i+1:]...)
		}
		return f
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})

	if r.Header.Get("Authorization") != "Bearer "+Token {
		writeError(w, http.StatusForbidden, CodeAuthFailed, "Authentication error")
		return
	}
	if f := s.takeFault(r.Method); f != nil {
		if f.Status >= http.StatusInternalServerError {
			w.WriteHeader(f.Status)
			return
		}
		writeError(w, f.Status, f.Code, f.Message)
		return
	}

	// /zones/{zone}/dns_records[/{id}]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 1 && parts[0] == "zones" && r.Method == http.MethodGet {
		s.listZones(w, r)
		return
	}
	if len(parts) < 3 || parts[0] != "zones" || parts[2] != "dns_records" || len(parts) > 4 {
		writeError(w, http.StatusNotFound, CodeInvalidIdentity, "No route for that URI")
		return
	}
	zoneID := parts[1]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			s.list(w, r, zoneID)
		case http.MethodPost:
			s.create(w, r, zoneID)
		default:
			writeError(w, http.StatusMethodNotAllowed, 10405, "Method not allowed")
		}
		return
	}

	id := parts[3]
	switch r.Method {
	case http.MethodGet:
		rec, ok := s.records[zoneID][id]
		if !ok {
			writeError(w, http.StatusNotFound, CodeRecordNotFound, "Record does not exist.")
			return
		}
		writeResult(w, http.StatusOK, rec, nil)
	case http.MethodPut, http.MethodPatch:
		s.update(w, r, zoneID, id)
	case http.MethodDelete:
		if _, ok := s.records[zoneID][id]; !ok {
			writeError(w, http.StatusNotFound, CodeRecordNotFound, "Record does not exist.")
			return
		}
		delete(s.records[zoneID], id)
		writeResult(w, http.StatusOK, map[string]string{"id": id}, nil)
	default:
		writeError(w, http.StatusMethodNotAllowed, 10405, "Method not allowed")
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, zoneID string) {
	name := strings.ToLower(r.URL.Query().Get("name"))
	recordType := r.URL.Query().Get("type")

	out := make([]Record, 0)
	for _, rec := range s.records[zoneID] {
		if name != "" && !strings.EqualFold(rec.Name, name) {
			continue
		}
		if recordType != "" && rec.Type != recordType {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	writeResult(w, http.StatusOK, out, &resultInfo{
		Page:       1,
		PerPage:    100,
		Count:      len(out),
		TotalCount: len(out),
		TotalPages: 1,
	})
}

type zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (s *Server) listZones(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.URL.Query().Get("name"))

	out := make([]zone, 0)
	for n, id := range s.zones {
		if name != "" && n != name {
			continue
		}
		out = append(out, zone{ID: id, Name: n, Status: "active"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	writeResult(w, http.StatusOK, out, &resultInfo{
		Page:       1,
		PerPage:    50,
		Count:      len(out),
		TotalCount: len(out),
		TotalPages: 1,
	})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, zoneID string) {
	var in Record
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, 9207, "Request body is invalid.")
		return
	}
	if in.Type == "" || in.Name == "" || in.Content == "" {
		writeError(w, http.StatusBadRequest, 9000, "DNS record type, name and content are required.")
		return
	}
	if in.Type == "MX" && in.Priority == nil {
		writeError(w, http.StatusBadRequest, 9101, "priority is required for MX records.")
		return
	}
	for _, rec := range s.records[zoneID] {
		if strings.EqualFold(rec.Name, in.Name) && rec.Type == in.Type && rec.Content == in.Content {
			writeError(w, http.StatusBadRequest, CodeAlreadyExists, "An identical record already exists.")
			return
		}
	}

	rec := &Record{
		ID:       s.nextID(),
		ZoneID:   zoneID,
		Type:     in.Type,
		Name:     strings.ToLower(in.Name),
		Content:  in.Content,
		TTL:      in.TTL,
		Priority: in.Priority,
	}
	if rec.TTL == 0 {
		rec.TTL = 1
	}
	s.zone(zoneID)[rec.ID] = rec
	writeResult(w, http.StatusOK, rec, nil)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, zoneID, id string) {
	rec, ok := s.records[zoneID][id]
	if !ok {
		writeError(w, http.StatusNotFound, CodeRecordNotFound, "Record does not exist.")
		return
	}

	var in Record
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, 9207, "Request body is invalid.")
		return
	}
	if in.Type != "" {
		rec.Type = in.Type
	}
	if in.Name != "" {
		rec.Name = strings.ToLower(in.Name)
	}
	if in.Content != "" {
		rec.Content = in.Content
	}
	if in.TTL != 0 {
		rec.TTL = in.TTL
	}
	if in.Priority != nil {
		rec.Priority = in.Priority
	}
	writeResult(w, http.StatusOK, rec, nil)
}

func writeResult(w http.ResponseWriter, status int, result interface{}, info *resultInfo) {
	writeJSON(w, status, envelope{
		Success:    true,
		Errors:     []apiError{},
		Messages:   []apiError{},
		Result:     result,
		ResultInfo: info,
	})
}

func writeError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, envelope{
		Success:  false,
		Errors:   []apiError{{Code: code, Message: message}},
		Messages: []apiError{},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
