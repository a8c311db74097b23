package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/warungku/backend/internal/entity"
)

// SignatureVerifier authenticates inbound gateway notifications. The gateway
// signs each notification with
// SHA-512(orderID + statusCode + grossAmount + serverKey); the server key
// never leaves the backend.
type SignatureVerifier struct {
	serverKey string
}

func NewSignatureVerifier(serverKey string) *SignatureVerifier {
	return &SignatureVerifier{serverKey: serverKey}
}

// Verify recomputes the expected signature and compares it in constant time.
// Any mismatch or missing signature returns entity.ErrSignature and the
// notification must not be processed further.
func (v *SignatureVerifier) Verify(n *Notification) error {
	if n.SignatureKey == "" {
		return fmt.Errorf("%w: missing signature", entity.ErrSignature)
	}

	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + v.serverKey))
	expected := hex.EncodeToString(sum[:])

	if subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) != 1 {
		return fmt.Errorf("%w: signature mismatch for order %s", entity.ErrSignature, n.OrderID)
	}
	return nil
}
