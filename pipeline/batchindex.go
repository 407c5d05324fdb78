package pipeline

import (
	"context"

	"newsbrief/types"
)

// twoTierIndex layers an ephemeral in-batch tier over the persistent
// fingerprint store for one kind. Stages 3-4 consult the cheap local
// tier first, then the recent corpus, so first-pass and corpus-pass
// matching share one rule instead of diverging copies.
type twoTierIndex struct {
	store    FingerprintStore
	kind     types.FingerprintKind
	limit    int
	local    []string
	localSet map[string]struct{}
}

func newTwoTierIndex(store FingerprintStore, kind types.FingerprintKind, limit int) *twoTierIndex {
	return &twoTierIndex{
		store:    store,
		kind:     kind,
		limit:    limit,
		localSet: make(map[string]struct{}),
	}
}

// containsExact checks key membership: local tier, then persistent store.
func (t *twoTierIndex) containsExact(ctx context.Context, key string) (bool, error) {
	if _, ok := t.localSet[key]; ok {
		return true, nil
	}
	return t.store.Exists(ctx, t.kind, key)
}

// matchFuzzy returns the first stored key that match() accepts, checking
// the local tier before the most recent corpus keys.
func (t *twoTierIndex) matchFuzzy(ctx context.Context, match func(stored string) bool) (string, bool, error) {
	for _, key := range t.local {
		if match(key) {
			return key, true, nil
		}
	}

	recent, err := t.store.ListRecent(ctx, t.kind, t.limit)
	if err != nil {
		return "", false, err
	}
	for _, key := range recent {
		if match(key) {
			return key, true, nil
		}
	}
	return "", false, nil
}

// accept persists the key (write-as-you-pass) and records it locally so
// later items in the same batch see it without a store round trip.
func (t *twoTierIndex) accept(ctx context.Context, key string) error {
	if err := t.store.Put(ctx, t.kind, key); err != nil {
		return err
	}
	if _, ok := t.localSet[key]; !ok {
		t.localSet[key] = struct{}{}
		t.local = append(t.local, key)
	}
	return nil
}
