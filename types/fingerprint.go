package types

// FingerprintKind selects which deduplication namespace a fingerprint
// operation targets. One namespace per order-dependent exact check.
type FingerprintKind string

const (
	KindID         FingerprintKind = "id"
	KindHash       FingerprintKind = "hash"
	KindFuzzyTitle FingerprintKind = "fuzzyTitle"
	KindEntity     FingerprintKind = "entityFingerprint"
)

// FingerprintKinds lists every namespace, used by administrative resets.
var FingerprintKinds = []FingerprintKind{KindID, KindHash, KindFuzzyTitle, KindEntity}
