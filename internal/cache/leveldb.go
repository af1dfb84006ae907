package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB stores entries in an embedded LevelDB database. Each value is an
// 8-byte big-endian expiry (unix nanoseconds) followed by the encoded entry.
type LevelDB struct {
	db  *leveldb.DB
	now func() time.Time
}

// NewLevelDB opens or creates the database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "leveldb: open %s", path)
	}
	return &LevelDB{db: db, now: time.Now}, nil
}

// Get implements Cache. Expired entries are deleted on read.
func (l *LevelDB) Get(_ context.Context, key string) (*Entry, bool, error) {
	v, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("leveldb", "get", err)
	}
	if len(v) < 8 {
		return nil, false, unavailable("leveldb", "decode", eris.New("short value"))
	}
	exp := int64(binary.BigEndian.Uint64(v[:8]))
	if l.now().UnixNano() >= exp {
		_ = l.db.Delete([]byte(key), nil)
		return nil, false, nil
	}
	e, err := decode(v[8:])
	if err != nil {
		return nil, false, unavailable("leveldb", "decode", err)
	}
	return e, true, nil
}

// Set implements Cache.
func (l *LevelDB) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	b, err := encode(entry)
	if err != nil {
		return unavailable("leveldb", "encode", err)
	}
	v := make([]byte, 8+len(b))
	binary.BigEndian.PutUint64(v[:8], uint64(l.now().Add(ttl).UnixNano()))
	copy(v[8:], b)
	if err := l.db.Put([]byte(key), v, nil); err != nil {
		return unavailable("leveldb", "set", err)
	}
	return nil
}

// Close implements Cache.
func (l *LevelDB) Close() error { return l.db.Close() }
