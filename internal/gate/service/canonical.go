package service

import "strings"

// OutsideZone is the sentinel zone code for "outside" in checkpoint
// reports and canonical payloads.
const OutsideZone = "OUT"

// CanonicalPayload produces the deterministic byte encoding a checkpoint
// signs: checkpointCode|timestamp|fromZone|toZone|userToken, UTF-8, joined
// with single '|' delimiters.  Signer and verifier must produce the exact
// same bytes; field contents are not escaped, so codes and tokens must
// never contain '|' (enforced at admin create time).
func CanonicalPayload(checkpointCode, timestamp, fromZone, toZone, userToken string) []byte {
	return []byte(strings.Join([]string{
		checkpointCode,
		timestamp,
		fromZone,
		toZone,
		userToken,
	}, "|"))
}
