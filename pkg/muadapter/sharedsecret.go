package muadapter

import (
	"crypto/subtle"
	"net/http"
)

// VerifySharedSecret implements the shared-secret header verification
// scheme used by the in-editor surfaces (Neovim, VSCode): the caller
// presents the configured secret verbatim in X-Mu-Shared-Secret.
func VerifySharedSecret(r *http.Request, secret string) VerifyResult {
	got := r.Header.Get("X-Mu-Shared-Secret")
	if got == "" || secret == "" {
		return VerifyMalformed
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return VerifyMismatch
	}
	return VerifyOK
}
