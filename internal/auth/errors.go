package auth

import "errors"

var (
	// ErrInvalidCredentials means the API rejected the username or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrTokenMissing means login succeeded but the response carried no token.
	ErrTokenMissing = errors.New("auth: login response carried no token")
	// ErrTransient covers network, decode, server and session errors.
	ErrTransient = errors.New("auth: transient failure")

	// ErrMissingFields means a registration field was left empty.
	ErrMissingFields = errors.New("auth: all fields are required")
	// ErrPasswordMismatch means password and confirmation differ.
	ErrPasswordMismatch = errors.New("auth: password confirmation does not match")
	// ErrRegistrationFailed means the API answered registration with a non-success status.
	ErrRegistrationFailed = errors.New("auth: registration failed")
)

// RegistrationRejectedError is a registration the API answered successfully
// at the HTTP level but refused in its body, e.g. a taken username.
type RegistrationRejectedError struct {
	Message string
}

func (e *RegistrationRejectedError) Error() string {
	return "auth: registration rejected: " + e.Message
}

// User-facing copy.
const (
	MsgInvalidCredentials = "Username atau password salah"
	MsgTransient          = "Terjadi kesalahan. Silakan coba lagi."
	MsgMissingFields      = "Semua field harus diisi"
	MsgPasswordMismatch   = "Password dan konfirmasi password tidak cocok"
	MsgRegistrationFailed = "Registrasi gagal. Silakan coba lagi."
	MsgRegistered         = "Registrasi berhasil! Silakan login."
)

// Message maps an error from the gateway to the text shown to the user.
// Upstream details never leak through it.
func Message(err error) string {
	var rejected *RegistrationRejectedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return MsgInvalidCredentials
	case errors.Is(err, ErrMissingFields):
		return MsgMissingFields
	case errors.Is(err, ErrPasswordMismatch):
		return MsgPasswordMismatch
	case errors.Is(err, ErrRegistrationFailed):
		return MsgRegistrationFailed
	case errors.As(err, &rejected):
		if rejected.Message != "" {
			return rejected.Message
		}
		return MsgRegistrationFailed
	default:
		return MsgTransient
	}
}
