package web

import (
	"net/http"

	"github.com/JonMunkholm/TaxiETL/internal/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun runs the ETL over an uploaded CSV in the "file" form field.
// The response is written once the run has finished.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		err = errBadUpload{err}
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer file.Close()

	logging.FromContext(r.Context()).Info("run requested", "file", header.Filename, "size", header.Size)

	result, err := s.runner.RunReader(r.Context(), header.Filename, file, s.duplicatesPath)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Limiter().Status())
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.runner.CountTrips(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}
