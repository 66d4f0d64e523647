package protocol

import (
	"fmt"
	"strconv"
)

// StatusCode is a Guacamole protocol status code.
type StatusCode int

const (
	StatusSuccess            StatusCode = 0x0000
	StatusUnsupported        StatusCode = 0x0100
	StatusServerError        StatusCode = 0x0200
	StatusServerBusy         StatusCode = 0x0201
	StatusUpstreamTimeout    StatusCode = 0x0202
	StatusUpstreamError      StatusCode = 0x0203
	StatusResourceNotFound   StatusCode = 0x0204
	StatusResourceConflict   StatusCode = 0x0205
	StatusResourceClosed     StatusCode = 0x0206
	StatusUpstreamNotFound   StatusCode = 0x0207
	StatusUpstreamUnavail    StatusCode = 0x0208
	StatusSessionConflict    StatusCode = 0x0209
	StatusSessionTimeout     StatusCode = 0x020A
	StatusSessionClosed      StatusCode = 0x020B
	StatusClientBadRequest   StatusCode = 0x0300
	StatusClientUnauthorized StatusCode = 0x0301
	StatusClientForbidden    StatusCode = 0x0303
	StatusClientTimeout      StatusCode = 0x0308
	StatusClientOverrun      StatusCode = 0x030D
	StatusClientBadType      StatusCode = 0x030F
	StatusClientTooMany      StatusCode = 0x031D
)

// Status is a failure (or success) report from the engine or the tunnel.
// It implements error so it can travel through ordinary error returns.
type Status struct {
	Code    StatusCode
	Message string
}

// NewStatus builds a Status.
func NewStatus(code StatusCode, format string, args ...interface{}) Status {
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ParseStatus builds a Status from the textual code carried by error and ack
// instructions. An unparsable code maps to StatusServerError.
func ParseStatus(code, message string) Status {
	n, err := strconv.Atoi(code)
	if err != nil {
		return Status{Code: StatusServerError, Message: message}
	}
	return Status{Code: StatusCode(n), Message: message}
}

// IsError reports whether the status denotes a failure.
func (s Status) IsError() bool {
	return s.Code < StatusSuccess || s.Code > 0x00FF
}

func (s Status) Error() string {
	if s.Message == "" {
		return fmt.Sprintf("status 0x%04X", int(s.Code))
	}
	return fmt.Sprintf("status 0x%04X: %s", int(s.Code), s.Message)
}
