// ABOUTME: Shared JSON plumbing for the HTTP API: responses, errors and body decoding
// ABOUTME: Maps service error kinds to status codes and accepts tx bytes as hex, base64 or byte arrays

package gateway

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/2389/fundgate/internal/apperr"
)

const (
	maxRegistryBody = 64 << 10
	maxFundingBody  = 8 << 20
)

// sendJSON writes v with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]any{"success": false, "error": message})
}

// sendActionError maps err to its status. Client errors carry their message
// as-is; server errors are prefixed with the failing action.
func (g *Gateway) sendActionError(w http.ResponseWriter, action string, err error) {
	status := apperr.HTTPStatus(err)
	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("action failed", "action", action, "kind", apperr.KindOf(err).String(), "error", err)
		msg = fmt.Sprintf("%s failed: %s", action, msg)
	} else {
		g.logger.Debug("action rejected", "action", action, "status", status, "error", msg)
	}
	g.sendJSONError(w, status, msg)
}

func (g *Gateway) sendUnknownAction(w http.ResponseWriter, action string) {
	g.sendJSONError(w, http.StatusBadRequest, "Unknown action: "+action)
}

func (g *Gateway) sendMethodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	g.sendJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// decodeBody decodes a bounded JSON body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("Request body too large")
		}
		if errors.Is(err, io.EOF) {
			return apperr.Validation("Missing request body")
		}
		return apperr.Validation("Invalid JSON body")
	}
	return nil
}

// txBytes is transaction data supplied either as a hex (or base64) string or
// as a JSON array of byte values. A string that is valid hex is always read
// as hex; clients sending base64 that could pass for hex must name the
// encoding (see decodeTx).
type txBytes []byte

func (t *txBytes) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*t = nil
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if b, err := hex.DecodeString(s); err == nil {
			*t = b
			return nil
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return errors.New("tx string is neither hex nor base64")
		}
		*t = b
		return nil
	case strings.HasPrefix(trimmed, "["):
		var values []int
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		b := make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return fmt.Errorf("tx byte %d out of range: %d", i, v)
			}
			b[i] = byte(v)
		}
		*t = b
		return nil
	default:
		return errors.New("tx must be a hex string or an array of bytes")
	}
}

// Encodings a client may name in txEncoding.
const (
	txEncodingHex    = "hex"
	txEncodingBase64 = "base64"
)

// decodeTx resolves a tx field. With no encoding named it follows txBytes;
// otherwise raw must be a string in that encoding.
func decodeTx(raw json.RawMessage, encoding string) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding == "" {
		var t txBytes
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, apperr.Validationf("Invalid tx: %v", err)
		}
		return t, nil
	}
	if encoding != txEncodingHex && encoding != txEncodingBase64 {
		return nil, apperr.Validationf("Unknown txEncoding: %s", encoding)
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil, apperr.Validationf("Invalid tx: txEncoding %s requires a string", encoding)
	}
	str = strings.TrimSpace(str)
	var (
		b   []byte
		err error
	)
	if encoding == txEncodingHex {
		b, err = hex.DecodeString(str)
	} else {
		b, err = base64.StdEncoding.DecodeString(str)
	}
	if err != nil {
		return nil, apperr.Validationf("Invalid tx: not %s", encoding)
	}
	return b, nil
}
