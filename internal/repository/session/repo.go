package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/imagespace/iqrproxy/internal/db"
	domsession "github.com/imagespace/iqrproxy/internal/domain/session"
)

// DefaultKeyPrefix namespaces all record keys.
const DefaultKeyPrefix = "iqr:"

// store is the consumer interface for session records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements usecase/session.RecordRepository.
type Repo struct {
	store  store
	prefix string
}

// New creates a session record repository. An empty prefix selects DefaultKeyPrefix.
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: prefix}
}

// Save stores a record in its creator's folder. The folder needs no separate creation.
func (r *Repo) Save(ctx context.Context, rec domsession.Record) error {
	key := r.itemKey(rec.Creator(), rec.Folder(), rec.ID())
	if err := r.store.HSet(ctx, key, recordToHash(rec)); err != nil {
		return fmt.Errorf("hset session record %s: %w", rec.ID(), err)
	}
	return nil
}

// List returns the records of one user's folder sorted by creation time, then id.
func (r *Repo) List(ctx context.Context, user, folder string) ([]domsession.Record, error) {
	keys, err := r.store.Scan(ctx, r.itemPattern(user, folder))
	if err != nil {
		return nil, fmt.Errorf("scan session records: %w", err)
	}
	if len(keys) == 0 {
		return []domsession.Record{}, nil
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi session records: %w", err)
	}

	records := make([]domsession.Record, 0, len(results))
	for i, m := range results {
		if len(m) == 0 {
			continue
		}
		rec, err := recordFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("parse session record %s: %w", keys[i], err)
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		ci, cj := records[i].Created(), records[j].Created()
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return records[i].ID() < records[j].ID()
	})

	return records, nil
}

// Key layout: {prefix}folder:{user}:{folder}:item:{id}

func (r *Repo) itemKey(user, folder, id string) string {
	return fmt.Sprintf("%sfolder:%s:%s:item:%s", r.prefix, user, folder, id)
}

func (r *Repo) itemPattern(user, folder string) string {
	return fmt.Sprintf("%sfolder:%s:%s:item:*",
		db.EscapePattern(r.prefix), db.EscapePattern(user), db.EscapePattern(folder))
}
