package apiserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type ApiError struct {
	HttpCode int    `json:"-"`
	Result   string `json:"result"`
	ErrorMsg string `json:"error"`
}

var ErrInternalServerError = &ApiError{
	HttpCode: http.StatusInternalServerError,
	Result:   "INTERNAL_SERVER_ERROR",
}

var ErrBadRequest = &ApiError{
	HttpCode: http.StatusBadRequest,
	Result:   "BAD_REQUEST",
}

var ErrUnauthorized = &ApiError{
	HttpCode: http.StatusUnauthorized,
	Result:   "UNAUTHORIZED",
}

var ErrEndpointNotFound = &ApiError{
	HttpCode: http.StatusNotFound,
	Result:   "ENDPOINT_NOT_FOUND",
	ErrorMsg: "Endpoint not found",
}

var ErrNoEndpoint = &ApiError{
	HttpCode: http.StatusBadRequest,
	Result:   "NO_ENDPOINT",
	ErrorMsg: "No endpoint selected",
}

var ErrInvalidTransition = &ApiError{
	HttpCode: http.StatusConflict,
	Result:   "INVALID_TRANSITION",
}

var ErrUnavailable = &ApiError{
	HttpCode: http.StatusServiceUnavailable,
	Result:   "UNAVAILABLE",
	ErrorMsg: "Session controller closed",
}

func (s ApiError) WithErrorMsg(errorMsg string) *ApiError {
	s.ErrorMsg = errorMsg
	return &s
}

func (s ApiError) WithError(err error) *ApiError {
	s.ErrorMsg = err.Error()
	return &s
}

func (s *ApiError) Error() string {
	return fmt.Sprintf("ApiError %d %s %s", s.HttpCode, s.Result, s.ErrorMsg)
}

func (s *ApiError) Handle(w http.ResponseWriter) {
	writeError(w, s)
}

func writeResponse(w http.ResponseWriter, statusCode int, r any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	e := json.NewEncoder(w)
	_ = e.Encode(r)
}

func writeError(w http.ResponseWriter, err error) {
	if apiError, ok := err.(*ApiError); ok {
		writeResponse(w, apiError.HttpCode, apiError)
		return
	}

	ErrInternalServerError.WithError(err).Handle(w)
}

func getClientIP(r *http.Request) string {
	forwardedIp := r.Header.Get("X-Forwarded-For")
	if forwardedIp != "" {
		// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/X-Forwarded-For#syntax
		return strings.TrimSpace(strings.Split(forwardedIp, ",")[0])
	}

	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return remoteIP
	}
	return r.RemoteAddr
}
