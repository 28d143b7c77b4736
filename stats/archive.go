package stats

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by archive lookups for missing records.
var ErrNotFound = errors.New("stats: record not found")

var (
	recordPrefix  = []byte("r:")
	hashPrefix    = []byte("h:")
	countKey      = []byte("meta:count")
	summaryKey    = []byte("meta:summary")
	seqKeyPadding = 8
)

// Archive persists the record stream to LevelDB so the serve command can
// browse a finished run without re-parsing CSV. Records are keyed by their
// emission sequence; a secondary index maps block hash to sequence.
type Archive struct {
	db    *leveldb.DB
	count uint64
}

// OpenArchive opens (or creates) the archive at dir. An archive written by a
// previous run can be reopened read-mostly for serving.
func OpenArchive(dir string) (*Archive, error) {
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(dir, opts)
	if err != nil {
		if ldberrors.IsCorrupted(err) {
			db, err = leveldb.RecoverFile(dir, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("stats: open archive %s: %w", dir, err)
		}
	}
	a := &Archive{db: db}
	if raw, err := db.Get(countKey, nil); err == nil && len(raw) == 8 {
		a.count = binary.BigEndian.Uint64(raw)
	}
	return a, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, len(recordPrefix)+seqKeyPadding)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], seq)
	return key
}

func (a *Archive) Record(r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("stats: marshal record: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(seqKey(a.count), data)
	batch.Put(append(append([]byte{}, hashPrefix...), r.BlockHash.Bytes()...), seqKey(a.count))
	a.count++
	var cnt [8]byte
	binary.BigEndian.PutUint64(cnt[:], a.count)
	batch.Put(countKey, cnt[:])
	return a.db.Write(batch, nil)
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Len is the number of archived records.
func (a *Archive) Len() uint64 {
	return a.count
}

// RecordAt returns the record with the given emission sequence.
func (a *Archive) RecordAt(seq uint64) (*Record, error) {
	raw, err := a.db.Get(seqKey(seq), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: seq %d", ErrNotFound, seq)
	}
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("stats: decode record %d: %w", seq, err)
	}
	return &r, nil
}

// RecordByHash resolves a block hash through the secondary index.
func (a *Archive) RecordByHash(hash common.Hash) (*Record, error) {
	key, err := a.db.Get(append(append([]byte{}, hashPrefix...), hash.Bytes()...), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, hash.Hex())
	}
	if err != nil {
		return nil, err
	}
	raw, err := a.db.Get(key, nil)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("stats: decode record for %s: %w", hash.Hex(), err)
	}
	return &r, nil
}

// Range returns up to limit records starting at sequence start, in order.
func (a *Archive) Range(start, limit uint64) ([]*Record, error) {
	iter := a.db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	defer iter.Release()
	out := make([]*Record, 0, limit)
	for ok := iter.Seek(seqKey(start)); ok && uint64(len(out)) < limit; ok = iter.Next() {
		var r Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("stats: decode record: %w", err)
		}
		out = append(out, &r)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// PutSummary stores the end-of-run summary alongside the records.
func (a *Archive) PutSummary(s *Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("stats: marshal summary: %w", err)
	}
	return a.db.Put(summaryKey, data, nil)
}

// Summary loads the stored summary, or ErrNotFound when the run never
// finished.
func (a *Archive) Summary() (*Summary, error) {
	raw, err := a.db.Get(summaryKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: summary", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("stats: decode summary: %w", err)
	}
	return &s, nil
}
