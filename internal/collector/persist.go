package collector

import (
	"context"
	"sort"

	"github.com/jonathan/hirebot/internal/store"
)

// Storage keys.
const (
	KeyWaiting         = "boss_waiting_candidates"
	KeyProcessed       = "boss_processed_candidates"
	KeySentIntro       = "boss_sent_intro_candidates"
	KeyKeywordConfig   = "boss_keyword_config"
	KeyDownloadEnabled = "boss_download_enabled"
)

type idSet map[string]struct{}

func newIDSet(ids ...string) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

// sorted returns the members in a stable order for storage.
func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// persisted is everything the collector keeps between runs.
type persisted struct {
	waiting   []string
	processed []string
	sentIntro []string
	keyword   *KeywordConfig
	download  *bool
}

// loadState reads the persisted state. A stored keyword config is merged
// over base field by field.
func loadState(ctx context.Context, kv store.KV, base KeywordConfig) (persisted, error) {
	values, err := kv.Get(ctx, KeyWaiting, KeyProcessed, KeySentIntro, KeyKeywordConfig, KeyDownloadEnabled)
	if err != nil {
		return persisted{}, err
	}

	var p persisted
	if _, err := store.Decode(values, KeyWaiting, &p.waiting); err != nil {
		return persisted{}, err
	}
	if _, err := store.Decode(values, KeyProcessed, &p.processed); err != nil {
		return persisted{}, err
	}
	if _, err := store.Decode(values, KeySentIntro, &p.sentIntro); err != nil {
		return persisted{}, err
	}

	k := base
	if ok, err := store.Decode(values, KeyKeywordConfig, &k); err != nil {
		return persisted{}, err
	} else if ok {
		p.keyword = &k
	}

	var d bool
	if ok, err := store.Decode(values, KeyDownloadEnabled, &d); err != nil {
		return persisted{}, err
	} else if ok {
		p.download = &d
	}
	return p, nil
}
