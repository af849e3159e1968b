package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/storage"
)

// Object store names of the index database. Internal contract, not
// externally versioned.
const (
	MetaDataOS    = "MetaDataObjectStore"
	GroupDataOS   = "GroupDataObjectStore"
	SearchIndexOS = "SearchIndexObjectStore"
	ElementDataOS = "ElementDataObjectStore"
)

// ObjectStores lists every object store the index uses, in the form the
// storage backends expect at creation time.
var ObjectStores = []string{MetaDataOS, GroupDataOS, SearchIndexOS, ElementDataOS}

// Metadata keys within MetaDataOS.
const (
	metaUserEncIndexKey      = "userEncIndexKey"
	metaLastEventIndexTimeMs = "lastEventIndexTimeMs"
	metaMailIndexingEnabled  = "mailIndexingEnabled"
	metaExcludedListIDs      = "excludedListIds"
)

// Index timestamps count backward: a group's IndexTimestamp is the point in
// time down to which its history has been indexed.
const (
	// FullIndexedTimestamp marks a group whose entire history is indexed.
	FullIndexedTimestamp int64 = 0
	// NothingIndexedTimestamp marks a group with no indexed history yet.
	NothingIndexedTimestamp int64 = math.MaxInt64
)

// GroupData is the per-group index metadata persisted in GroupDataOS under
// the group id.
type GroupData struct {
	// LastBatchIDs holds recently processed event batch ids, newest first.
	// The oldest retained id anchors the catch-up rescan start point.
	LastBatchIDs []string `json:"lastBatchIds"`
	// IndexTimestamp is how far back this group's history is indexed.
	IndexTimestamp int64               `json:"indexTimestamp"`
	GroupType      mailvault.GroupType `json:"groupType"`
}

// maxRetainedBatchIDs bounds LastBatchIDs growth.
const maxRetainedBatchIDs = 1000

// NewestBatchID returns the newest retained batch id, or "".
func (g *GroupData) NewestBatchID() string {
	if len(g.LastBatchIDs) == 0 {
		return ""
	}
	return g.LastBatchIDs[0]
}

// OldestBatchID returns the oldest retained batch id, or "".
func (g *GroupData) OldestBatchID() string {
	if len(g.LastBatchIDs) == 0 {
		return ""
	}
	return g.LastBatchIDs[len(g.LastBatchIDs)-1]
}

// AddBatchID prepends a processed batch id, trimming the tail.
func (g *GroupData) AddBatchID(batchID string) {
	g.LastBatchIDs = append([]string{batchID}, g.LastBatchIDs...)
	if len(g.LastBatchIDs) > maxRetainedBatchIDs {
		g.LastBatchIDs = g.LastBatchIDs[:maxRetainedBatchIDs]
	}
}

func putGroupData(tx storage.Transaction, groupID string, data *GroupData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding group data: %w", err)
	}
	return tx.Put(GroupDataOS, groupID, raw)
}

func getGroupData(tx storage.Transaction, groupID string) (*GroupData, error) {
	raw, err := tx.Get(GroupDataOS, groupID)
	if err != nil {
		return nil, err
	}
	var data GroupData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding group data for %s: %w", groupID, err)
	}
	return &data, nil
}

func getAllGroupData(tx storage.Transaction) (map[string]*GroupData, error) {
	records, err := tx.GetAll(GroupDataOS)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*GroupData, len(records))
	for _, rec := range records {
		var data GroupData
		if err := json.Unmarshal(rec.Value, &data); err != nil {
			return nil, fmt.Errorf("decoding group data for %s: %w", rec.Key, err)
		}
		result[rec.Key] = &data
	}
	return result, nil
}

func putMetaInt64(tx storage.Transaction, key string, value int64) error {
	return tx.Put(MetaDataOS, key, []byte(strconv.FormatInt(value, 10)))
}

func getMetaInt64(tx storage.Transaction, key string) (int64, bool, error) {
	raw, err := tx.Get(MetaDataOS, key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return v, true, nil
}

func putMetaBool(tx storage.Transaction, key string, value bool) error {
	v := []byte("0")
	if value {
		v = []byte("1")
	}
	return tx.Put(MetaDataOS, key, v)
}

func getMetaBool(tx storage.Transaction, key string) (bool, bool, error) {
	raw, err := tx.Get(MetaDataOS, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return string(raw) == "1", true, nil
}

func putMetaStrings(tx storage.Transaction, key string, values []string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return tx.Put(MetaDataOS, key, raw)
}

func getMetaStrings(tx storage.Transaction, key string) ([]string, error) {
	raw, err := tx.Get(MetaDataOS, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return values, nil
}
