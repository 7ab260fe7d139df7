package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// errorResponse is the JSON error envelope used across the API.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Code: status, Message: msg})
}

// writeRaw sends a pre-encoded JSON body, used on the validation hot path
// where the response is built with jx instead of reflection.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// encodeValidationSuccess builds the {valid:true, offer:{...}} body.
func encodeValidationSuccess(e *jx.Encoder, offerID, code, discountType string, discountValue, discountAmount, maxDiscount float64) []byte {
	e.Reset()
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(true)
	e.FieldStart("offer")
	e.ObjStart()
	e.FieldStart("id")
	e.Str(offerID)
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("discountType")
	e.Str(discountType)
	e.FieldStart("discountValue")
	e.Float64(discountValue)
	e.FieldStart("discountAmount")
	e.Float64(discountAmount)
	e.FieldStart("maxDiscount")
	e.Float64(maxDiscount)
	e.ObjEnd()
	e.ObjEnd()
	return e.Bytes()
}

// encodeValidationFailure builds the {valid:false, code, message} body.
func encodeValidationFailure(e *jx.Encoder, status int, msg string) []byte {
	e.Reset()
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(false)
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	return e.Bytes()
}
