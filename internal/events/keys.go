package events

import "strings"

const partyKeySep = "_"

// PartyKey joins a bulk id and transfer id into the key used by per-transfer
// party events.
func PartyKey(bulkID, transferID string) string {
	return bulkID + partyKeySep + transferID
}

// SplitPartyKey reverses PartyKey. Both ids are uuids, which never contain
// the separator.
func SplitPartyKey(key string) (bulkID, transferID string, ok bool) {
	bulkID, transferID, ok = strings.Cut(key, partyKeySep)
	if !ok || bulkID == "" || transferID == "" {
		return "", "", false
	}
	return bulkID, transferID, true
}
