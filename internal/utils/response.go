package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-coaching/internal/apperr"
	"ms-coaching/internal/logger"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{Success: true, Message: message, Data: data, Timestamp: time.Now()}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{Success: false, Message: message, Error: error, Timestamp: time.Now()}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

// WriteError logs the full error server-side and sends only the public part.
func WriteError(w http.ResponseWriter, log *logger.Logger, category string, err error) {
	status := apperr.HTTPStatus(err)
	code, public := apperr.Public(err)
	if status >= http.StatusInternalServerError {
		log.Error(category, err.Error())
	} else {
		log.Debug(category, err.Error())
	}
	resp := ErrorResponse(public, code)
	resp.Code = code
	WriteJSON(w, status, resp)
}

// DecodeJSON reads a JSON body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.WithMessage(apperr.ErrInvalidRequest, "malformed request body"), err)
	}
	return nil
}

// IDParam parses a positive integer chi URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.WithMessage(apperr.ErrInvalidRequest, "invalid "+name)
	}
	return id, nil
}
