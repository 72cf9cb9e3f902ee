// Copyright 2025 James Ross
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flyingrobots/jobcoordinator/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the stable external error shape from a machine
// code plus a human message.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// writeStoreError maps a store-layer error onto its HTTP status (chosen by
// errors.Is/As on the store's error values) and its stable code (from
// store.ErrorCode), the single place this translation happens so every
// handler gets consistent status codes for the same underlying condition.
func writeStoreError(w http.ResponseWriter, err error) {
	code := store.ErrorCode(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrJobNotFound), errors.Is(err, store.ErrBotNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrUnknownOperation), errors.Is(err, store.ErrAlreadyPending):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrBotBusy), errors.Is(err, store.ErrBotDeleted), errors.Is(err, store.ErrAlreadyTerminal):
		status = http.StatusConflict
	default:
		if store.IsPermanent(err) {
			status = http.StatusBadRequest
		}
		var conflict *store.ConflictError
		if ok := asConflict(err, &conflict); ok {
			status = http.StatusConflict
		}
	}
	writeError(w, status, code, err.Error())
}

func asConflict(err error, target **store.ConflictError) bool {
	return errors.As(err, target)
}
