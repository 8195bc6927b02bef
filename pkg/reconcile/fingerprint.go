package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/coherence/pkg/contracts"
)

// Fingerprint hashes an alert's identity: its rule id plus the sorted, unique
// set of clause and entity references. Ordering of the inputs never changes
// the result.
func Fingerprint(ruleID, sourceClauseID string, relatedClauseIDs []string, entities map[string][]string) string {
	parts := make([]string, 0, 1+len(relatedClauseIDs))
	add := func(s string) {
		s = norm.NFC.String(strings.TrimSpace(s))
		if s != "" {
			parts = append(parts, s)
		}
	}
	add(sourceClauseID)
	for _, id := range relatedClauseIDs {
		add(id)
	}
	for _, ids := range entities {
		for _, id := range ids {
			add(id)
		}
	}
	sort.Strings(parts)

	h := sha256.New()
	h.Write([]byte(norm.NFC.String(ruleID)))
	prev := ""
	for i, p := range parts {
		if i > 0 && p == prev {
			continue
		}
		h.Write([]byte{0x1f})
		h.Write([]byte(p))
		prev = p
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintCreate fingerprints an incoming alert payload.
func FingerprintCreate(a contracts.AlertCreate) string {
	return Fingerprint(a.RuleID, a.SourceClauseID, a.RelatedClauseIDs, a.AffectedEntities)
}

// FingerprintRecord fingerprints a stored alert from its content, ignoring
// any fingerprint already in its metadata.
func FingerprintRecord(a *contracts.AlertRecord) string {
	return Fingerprint(a.RuleID, a.SourceClauseID, a.RelatedClauseIDs, a.AffectedEntities)
}
