package status

// Code is a numeric HTTP status code. The engine itself never routes on most
// of these; the table exists so embedders get named constants for the codes
// they answer errors with.
type Code uint16

// HTTP status codes as registered with IANA.
// See: https://www.iana.org/assignments/http-status-codes/http-status-codes.xhtml
const (
	Continue           Code = 100 // RFC 9110, 15.2.1
	SwitchingProtocols Code = 101 // RFC 9110, 15.2.2

	OK             Code = 200 // RFC 9110, 15.3.1
	Created        Code = 201 // RFC 9110, 15.3.2
	Accepted       Code = 202 // RFC 9110, 15.3.3
	NoContent      Code = 204 // RFC 9110, 15.3.5
	ResetContent   Code = 205 // RFC 9110, 15.3.6
	PartialContent Code = 206 // RFC 9110, 15.3.7

	MultipleChoices   Code = 300 // RFC 9110, 15.4.1
	MovedPermanently  Code = 301 // RFC 9110, 15.4.2
	Found             Code = 302 // RFC 9110, 15.4.3
	SeeOther          Code = 303 // RFC 9110, 15.4.4
	NotModified       Code = 304 // RFC 9110, 15.4.5
	TemporaryRedirect Code = 307 // RFC 9110, 15.4.8
	PermanentRedirect Code = 308 // RFC 9110, 15.4.9

	BadRequest                  Code = 400 // RFC 9110, 15.5.1
	Unauthorized                Code = 401 // RFC 9110, 15.5.2
	Forbidden                   Code = 403 // RFC 9110, 15.5.4
	NotFound                    Code = 404 // RFC 9110, 15.5.5
	MethodNotAllowed            Code = 405 // RFC 9110, 15.5.6
	RequestTimeout              Code = 408 // RFC 9110, 15.5.9
	Conflict                    Code = 409 // RFC 9110, 15.5.10
	Gone                        Code = 410 // RFC 9110, 15.5.11
	LengthRequired              Code = 411 // RFC 9110, 15.5.12
	RequestEntityTooLarge       Code = 413 // RFC 9110, 15.5.14
	RequestURITooLong           Code = 414 // RFC 9110, 15.5.15
	ExpectationFailed           Code = 417 // RFC 9110, 15.5.18
	UpgradeRequired             Code = 426 // RFC 9110, 15.5.22
	RequestHeaderFieldsTooLarge Code = 431 // RFC 6585, 5

	InternalServerError     Code = 500 // RFC 9110, 15.6.1
	NotImplemented          Code = 501 // RFC 9110, 15.6.2
	BadGateway              Code = 502 // RFC 9110, 15.6.3
	ServiceUnavailable      Code = 503 // RFC 9110, 15.6.4
	GatewayTimeout          Code = 504 // RFC 9110, 15.6.5
	HTTPVersionNotSupported Code = 505 // RFC 9110, 15.6.6
)
