package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/enum"
	mw "github.com/mesapos/api/internal/middleware"
	"github.com/mesapos/api/internal/model"
	"github.com/mesapos/api/internal/service"
)

// maxUploadSize caps multipart image uploads.
const maxUploadSize = 5 << 20

var validate = validator.New()

func init() {
	// Let numeric tags (gte=0, gt=0) work on decimal.Decimal fields.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// Report JSON field names rather than Go field names.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// decodeAndValidate decodes the JSON body into req and runs its validator
// tags. On failure it writes a 400 and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return validateRequest(w, req)
}

// decodeOptional is decodeAndValidate for endpoints whose body may be
// omitted: an empty body, chunked or not, leaves req at its zero value.
func decodeOptional(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return validateRequest(w, req)
}

func validateRequest(w http.ResponseWriter, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return false
		}
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fields: " + strings.Join(fields, ", ")})
		return false
	}
	return true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Only 5xx responses hide the message; their cause is logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	// Checked before ErrValidation, which it wraps.
	case errors.Is(err, service.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrOutOfStock),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInsufficientPayment):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrRemoteIO):
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		msg := "internal server error"
		if status == http.StatusServiceUnavailable {
			msg = "service temporarily unavailable"
		}
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// session returns the authenticated caller. Routes are mounted behind
// Authenticate, so a missing session is a wiring bug.
func session(r *http.Request) model.Session {
	s, _ := mw.SessionFromContext(r.Context())
	return s
}

// branchScope is the branch a list is restricted to: the caller's own
// branch, or for admins whatever the query asks for (empty means all).
func branchScope(r *http.Request) string {
	s := session(r)
	if s.Role == enum.RoleAdmin {
		return r.URL.Query().Get("branch")
	}
	return s.Branch
}

// readImage reads the "file" part of a multipart upload.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1024)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid upload or file larger than 5 MiB"})
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return nil, "", false
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file larger than 5 MiB"})
		return nil, "", false
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read file"})
		return nil, "", false
	}
	if len(data) > maxUploadSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file larger than 5 MiB"})
		return nil, "", false
	}
	// Trust the bytes, not the client's header.
	return data, http.DetectContentType(data), true
}

// parseDateRange reads from/to query params (YYYY-MM-DD, inclusive days in
// loc) into a half-open [from, to) interval. Missing bounds stay zero.
func parseDateRange(r *http.Request, loc *time.Location) (time.Time, time.Time, error) {
	var from, to time.Time
	if s := r.URL.Query().Get("from"); s != "" {
		d, err := time.ParseInLocation(time.DateOnly, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
		from = d
	}
	if s := r.URL.Query().Get("to"); s != "" {
		d, err := time.ParseInLocation(time.DateOnly, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
		to = d.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must not be after to")
	}
	return from, to, nil
}

// reportRange is parseDateRange with both bounds defaulting to the current
// day in loc. A lone from runs through today; a lone to covers that day.
func reportRange(r *http.Request, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	from, to, err := parseDateRange(r, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := now.In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	switch {
	case from.IsZero() && to.IsZero():
		from, to = today, today.AddDate(0, 0, 1)
	case from.IsZero():
		from = to.AddDate(0, 0, -1)
	case to.IsZero():
		to = today.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must not be after to")
	}
	return from, to, nil
}
