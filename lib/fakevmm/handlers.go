package fakevmm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/onkernel/fcctl/lib/middleware"
)

const maxBodyBytes = 1 << 20

// phase restricts when a write is accepted.
type phase int

const (
	preBoot phase = iota
	postBoot
	anyTime
)

func (s *Server) routes(r chi.Router) {
	r.Get("/", s.describeInstance)
	r.Get("/version", s.getVersion)
	r.Put("/actions", s.createAction)

	r.Put("/boot-source", s.store(preBoot))
	r.Put("/drives/{drive_id}", s.storeWithID("drive_id", preBoot))
	r.Patch("/drives/{drive_id}", s.patchExisting("drive_id", "drive"))
	r.Put("/network-interfaces/{iface_id}", s.storeWithID("iface_id", preBoot))
	r.Patch("/network-interfaces/{iface_id}", s.patchExisting("iface_id", "network interface"))

	r.Put("/machine-config", s.store(preBoot))
	r.Patch("/machine-config", s.merge(preBoot))
	r.Get("/machine-config", s.getMachineConfig)

	r.Put("/snapshot/create", s.createSnapshot)
	r.Put("/snapshot/load", s.loadSnapshot)

	r.Put("/metrics", s.store(preBoot))
	r.Put("/logger", s.store(preBoot))
	r.Patch("/vm", s.patchVM)

	r.Put("/balloon", s.store(preBoot))
	r.Patch("/balloon", s.mergeExisting("/balloon", "balloon"))
	r.Get("/balloon", s.getStored("/balloon", "balloon"))
	r.Get("/balloon/statistics", s.getBalloonStats)
	r.Patch("/balloon/statistics", s.patchBalloonStats)

	r.Put("/vsock", s.store(preBoot))
	r.Put("/entropy", s.store(preBoot))
	r.Put("/cpu-config", s.store(preBoot))

	r.Put("/mmds/config", s.store(preBoot))
	r.Put("/mmds", s.putMMDS)
	r.Patch("/mmds", s.patchMMDS)
	r.Get("/mmds", s.getMMDS)
}

func readBody(r *http.Request) (json.RawMessage, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// checkPhase must be called with s.mu held.
func (s *Server) checkPhase(p phase) string {
	switch {
	case p == preBoot && s.state != StateNotStarted:
		return errAfterStart
	case p == postBoot && s.state == StateNotStarted:
		return errBeforeStart
	}
	return ""
}

func (s *Server) store(p phase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		if msg := s.checkPhase(p); msg != "" {
			mw.WriteFault(w, http.StatusBadRequest, msg)
			return
		}
		s.resources[r.URL.Path] = body
		w.WriteHeader(http.StatusNoContent)
	}
}

// storeWithID is store for collection members; the body id must match the path id.
func (s *Server) storeWithID(param string, p phase) http.HandlerFunc {
	inner := s.store(p)
	return func(w http.ResponseWriter, r *http.Request) {
		if msg := matchBodyID(r, param); msg != "" {
			mw.WriteFault(w, http.StatusBadRequest, msg)
			return
		}
		inner(w, r)
	}
}

func matchBodyID(r *http.Request, param string) string {
	body, _ := readBody(r)
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return "invalid body"
	}
	if id, _ := fields[param].(string); id != chi.URLParam(r, param) {
		return fmt.Sprintf("The %s in the path does not match the %s in the body.", param, param)
	}
	return ""
}

func (s *Server) merge(p phase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		if msg := s.checkPhase(p); msg != "" {
			mw.WriteFault(w, http.StatusBadRequest, msg)
			return
		}
		merged, err := mergeObjects(s.resources[r.URL.Path], body)
		if err != nil {
			mw.WriteFault(w, http.StatusBadRequest, err.Error())
			return
		}
		s.resources[r.URL.Path] = merged
		w.WriteHeader(http.StatusNoContent)
	}
}

// patchExisting merges into a collection member that must already exist.
func (s *Server) patchExisting(param, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if msg := matchBodyID(r, param); msg != "" {
			mw.WriteFault(w, http.StatusBadRequest, msg)
			return
		}
		s.mergeExisting(r.URL.Path, kind)(w, r)
	}
}

func (s *Server) mergeExisting(path, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		prev, ok := s.resources[path]
		if !ok {
			mw.WriteFault(w, http.StatusBadRequest, fmt.Sprintf("Unable to patch %s: not configured", kind))
			return
		}
		merged, err := mergeObjects(prev, body)
		if err != nil {
			mw.WriteFault(w, http.StatusBadRequest, err.Error())
			return
		}
		s.resources[path] = merged
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) getStored(path, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		body, ok := s.resources[path]
		s.mu.Unlock()
		if !ok {
			mw.WriteFault(w, http.StatusBadRequest, fmt.Sprintf("%s is not configured", kind))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}

func (s *Server) describeInstance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	info := map[string]string{
		"id":          s.id,
		"state":       s.state,
		"vmm_version": s.version,
		"app_name":    defaultAppName,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"firecracker_version": s.version})
}

func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	var action struct {
		ActionType string `json:"action_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		mw.WriteFault(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch action.ActionType {
	case "InstanceStart":
		if s.state != StateNotStarted {
			mw.WriteFault(w, http.StatusBadRequest, errAfterStart)
			return
		}
		if _, ok := s.resources["/boot-source"]; !ok {
			mw.WriteFault(w, http.StatusBadRequest, "Cannot start microvm without kernel configuration.")
			return
		}
		s.state = StateRunning
	case "SendCtrlAltDel":
		if msg := s.checkPhase(postBoot); msg != "" {
			mw.WriteFault(w, http.StatusBadRequest, msg)
			return
		}
	case "FlushMetrics":
		if _, ok := s.resources["/metrics"]; !ok {
			mw.WriteFault(w, http.StatusBadRequest, "The metrics system is not initialized.")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) patchVM(w http.ResponseWriter, r *http.Request) {
	var update struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		mw.WriteFault(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := s.checkPhase(postBoot); msg != "" {
		mw.WriteFault(w, http.StatusBadRequest, msg)
		return
	}
	if update.State == "Paused" {
		s.state = StatePaused
	} else {
		s.state = StateRunning
	}
	w.WriteHeader(http.StatusNoContent)
}

// defaultMachineConfig is what the server reports before any machine config write.
var defaultMachineConfig = json.RawMessage(`{"vcpu_count":1,"mem_size_mib":128,"smt":false,"track_dirty_pages":false,"huge_pages":"None"}`)

func (s *Server) getMachineConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	merged, err := mergeObjects(defaultMachineConfig, s.resources["/machine-config"])
	s.mu.Unlock()
	if err != nil {
		mw.WriteFault(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(merged)
}

func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request) {
	body, _ := readBody(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		mw.WriteFault(w, http.StatusBadRequest, "Cannot create snapshot: the microVM is not paused.")
		return
	}
	s.resources[r.URL.Path] = body
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) {
	body, _ := readBody(r)
	var params struct {
		ResumeVM bool `json:"resume_vm"`
	}
	if err := json.Unmarshal(body, &params); err != nil {
		mw.WriteFault(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNotStarted {
		mw.WriteFault(w, http.StatusBadRequest, errAfterStart)
		return
	}
	if _, ok := s.resources["/boot-source"]; ok {
		mw.WriteFault(w, http.StatusBadRequest, "Loading a microVM snapshot not allowed after configuring boot-specific resources.")
		return
	}
	s.resources[r.URL.Path] = body
	s.state = StatePaused
	if params.ResumeVM {
		s.state = StateRunning
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) balloonConfig() (amountMib, interval int, ok bool) {
	body, ok := s.resources["/balloon"]
	if !ok {
		return 0, 0, false
	}
	var b struct {
		AmountMib             int `json:"amount_mib"`
		StatsPollingIntervalS int `json:"stats_polling_interval_s"`
	}
	json.Unmarshal(body, &b)
	return b.AmountMib, b.StatsPollingIntervalS, true
}

func (s *Server) getBalloonStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	amount, interval, ok := s.balloonConfig()
	s.mu.Unlock()
	if !ok || interval == 0 {
		mw.WriteFault(w, http.StatusBadRequest, "Statistics for the balloon device are not enabled.")
		return
	}
	pages := amount * 256
	writeJSON(w, http.StatusOK, map[string]int{
		"target_pages": pages,
		"actual_pages": pages,
		"target_mib":   amount,
		"actual_mib":   amount,
	})
}

func (s *Server) patchBalloonStats(w http.ResponseWriter, r *http.Request) {
	body, _ := readBody(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, interval, ok := s.balloonConfig()
	if !ok || interval == 0 {
		mw.WriteFault(w, http.StatusBadRequest, "Statistics for the balloon device are not enabled.")
		return
	}
	merged, err := mergeObjects(s.resources["/balloon"], body)
	if err != nil {
		mw.WriteFault(w, http.StatusBadRequest, err.Error())
		return
	}
	s.resources["/balloon"] = merged
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putMMDS(w http.ResponseWriter, r *http.Request) {
	body, _ := readBody(r)
	if !json.Valid(body) {
		mw.WriteFault(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	s.mmds = body
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) patchMMDS(w http.ResponseWriter, r *http.Request) {
	body, _ := readBody(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mmds == nil {
		mw.WriteFault(w, http.StatusBadRequest, "The MMDS data store is not initialized.")
		return
	}
	merged, err := mergeObjects(s.mmds, body)
	if err != nil {
		mw.WriteFault(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mmds = merged
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getMMDS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data := s.mmds
	s.mu.Unlock()
	if data == nil {
		data = emptyObject
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
