package middleware

import (
	"encoding/json"
	"net/http"
)

// Fault is the error body of the Firecracker control plane.
type Fault struct {
	FaultMessage string `json:"fault_message"`
}

// WriteFault writes a fault body with the given status.
func WriteFault(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Fault{FaultMessage: message})
}

// OapiFaultHandler is a nethttp-middleware ErrorHandler that reports request
// validation failures the way the control plane does.
func OapiFaultHandler(w http.ResponseWriter, message string, statusCode int) {
	WriteFault(w, statusCode, message)
}
