package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sozercan/auditai-backend/apimodels"
	"github.com/sozercan/auditai-backend/internal/analyzer"
)

const prometheusContentType = "text/plain; version=0.0.4"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apimodels.HealthResponse{
		Status:      "ok",
		Service:     serviceName,
		LLMProvider: s.provider,
	})
}

func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	resp, err := s.analyzer.ListAnomalies(r.Context())
	if err != nil {
		s.writeAnalyzerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAnomaly(w http.ResponseWriter, r *http.Request) {
	tx, err := s.analyzer.GetAnomaly(r.Context(), chi.URLParam(r, "transaction_id"))
	if err != nil {
		s.writeAnalyzerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req apimodels.ExplainRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := s.analyzer.Explain(r.Context(), req)
	if err != nil {
		s.writeAnalyzerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuditReport(w http.ResponseWriter, r *http.Request) {
	req := apimodels.AuditReportRequest{MaxTransactions: apimodels.DefaultReportTransactions}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := s.analyzer.AuditReport(r.Context(), req)
	if err != nil {
		s.writeAnalyzerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req := apimodels.ChatRequest{MaxTransactions: apimodels.DefaultChatTransactions}
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := s.analyzer.Chat(r.Context(), req)
	if err != nil {
		s.writeAnalyzerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", prometheusContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, s.metrics.PrometheusSnapshot()); err != nil {
		slog.Error("Failed to write metrics", "request_id", RequestIDFromContext(r.Context()), "error", err)
	}
}

// decodeAndValidate fills dst from the JSON body. An empty body keeps the
// defaults already in dst. It writes the error response itself and reports
// whether the handler should continue.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(w, http.StatusUnprocessableEntity, describeValidation(verrs))
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return false
	}
	return true
}

func describeValidation(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// drop the Go type name; keep the JSON path
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "notblank":
			msgs = append(msgs, fmt.Sprintf("%s must not be blank", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func (s *Server) writeAnalyzerError(w http.ResponseWriter, r *http.Request, err error) {
	var aErr *analyzer.Error
	if errors.As(err, &aErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, analyzer.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, analyzer.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, analyzer.ErrLLMService):
			status = http.StatusBadGateway
		}
		writeError(w, status, aErr.Detail)
		return
	}

	slog.Error("Request failed", "request_id", RequestIDFromContext(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, apimodels.ErrorResponse{Detail: detail})
}
