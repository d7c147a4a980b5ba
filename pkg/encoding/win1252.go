package encoding

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// NormalizeBody returns a UTF-8 body for a broker reply. Oracle-backed meta replies may be
// tagged windows-1252 / cp1252 in the content encoding; anything else passes through
func NormalizeBody(contentEncoding string, body []byte) []byte {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "windows-1252", "cp1252", "win1252":
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(body)
		if err != nil {
			return body
		}
		return decoded
	default:
		return body
	}
}
