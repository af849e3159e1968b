package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mailvault/client-go"
	"github.com/mailvault/client-go/internal/crypto"
	"github.com/mailvault/client-go/internal/logging"
	"github.com/mailvault/client-go/storage"
)

const (
	defaultCatchupThreshold = 60 * time.Second
	defaultRetentionWindow  = 45 * 24 * time.Hour
)

// Models names the type models of the indexable entity kinds. The server
// owns the models; the wiring layer supplies them.
type Models struct {
	Mail            *mailvault.TypeModel
	Contact         *mailvault.TypeModel
	GroupInfo       *mailvault.TypeModel
	WhitelabelChild *mailvault.TypeModel
}

// CacheInfo describes what a freshly provisioned persistent cache already
// holds, letting initialization skip redundant index builds.
type CacheInfo struct {
	// ContactsIndexed is set when the cache was bulk-loaded with the user's
	// contacts through another channel; the contact index build is then
	// skipped and the group marked fully indexed.
	ContactsIndexed bool
}

// Config wires an Indexer to its collaborators.
type Config struct {
	Entities   mailvault.EntityClient
	UserFacade mailvault.UserFacade
	ServerTime mailvault.ServerTimeSource
	Store      storage.Store
	Facade     *mailvault.CryptoFacade
	Mapper     *mailvault.InstanceMapper
	Models     Models

	// GroupInfoListID and WhitelabelChildrenListID locate the admin-side
	// lists indexed at initialization. Empty skips the respective build.
	GroupInfoListID          string
	WhitelabelChildrenListID string

	Logger logging.Logger

	// CatchupThreshold selects the catch-up rescan strategy: when the
	// oldest known batch of a group is younger than this, rescanning starts
	// there; otherwise it starts at the newest known batch, trading a small
	// gap risk for bounded catch-up cost. Defaults to 60s.
	CatchupThreshold time.Duration
	// RetentionWindow is how long the server retains event batches. A
	// watermark older than this makes the local index unrecoverable.
	// Defaults to 45 days.
	RetentionWindow time.Duration
}

// Indexer maintains the encrypted local search index: it owns the index key,
// the per-group watermarks, and the serial batch processing loop fed by both
// historical catch-up and realtime delivery.
type Indexer struct {
	entities   mailvault.EntityClient
	userFacade mailvault.UserFacade
	serverTime mailvault.ServerTimeSource
	store      storage.Store
	log        logging.Logger

	catchupThreshold time.Duration
	retentionWindow  time.Duration

	core    *IndexerCore
	contact *ContactIndexer
	mail    *MailIndexer
	routes  map[mailvault.TypeRef]EntityIndexer
	queue   *EventQueue

	cfg Config

	mu            sync.Mutex
	indexedGroups map[string]*GroupData
	initialized   bool
}

// New creates an uninitialized Indexer. Call Init before anything else;
// batches may already be added, they are buffered until initialization
// completes.
func New(cfg Config) (*Indexer, error) {
	if cfg.Entities == nil || cfg.UserFacade == nil || cfg.ServerTime == nil || cfg.Store == nil || cfg.Facade == nil {
		return nil, errors.New("search: incomplete indexer config")
	}
	if cfg.Mapper == nil {
		cfg.Mapper = mailvault.NewInstanceMapper()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.CatchupThreshold <= 0 {
		cfg.CatchupThreshold = defaultCatchupThreshold
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = defaultRetentionWindow
	}

	ix := &Indexer{
		entities:         cfg.Entities,
		userFacade:       cfg.UserFacade,
		serverTime:       cfg.ServerTime,
		store:            cfg.Store,
		log:              cfg.Logger,
		catchupThreshold: cfg.CatchupThreshold,
		retentionWindow:  cfg.RetentionWindow,
		cfg:              cfg,
		routes:           map[mailvault.TypeRef]EntityIndexer{},
		indexedGroups:    map[string]*GroupData{},
	}
	ix.queue = NewEventQueue(ix.processBatch, cfg.Logger)
	return ix, nil
}

// Init brings the index up: fresh initialization when no index key is
// stored, otherwise existing initialization with group diffing and catch-up
// load. On success the processing loop is running.
func (ix *Indexer) Init(ctx context.Context, cacheInfo *CacheInfo) error {
	tx, err := ix.store.OpenTransaction(false)
	if err != nil {
		return err
	}
	storedKey, err := tx.Get(MetaDataOS, metaUserEncIndexKey)
	notFound := errors.Is(err, storage.ErrNotFound)
	tx.Abort()
	if err != nil && !notFound {
		return err
	}

	if notFound {
		err = ix.initFresh(ctx, cacheInfo)
	} else {
		err = ix.initExisting(ctx, storedKey)
	}
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.initialized = true
	ix.mu.Unlock()
	ix.queue.Resume()
	return nil
}

// buildSubIndexers wires the concrete sub-indexers once the index key is
// known.
func (ix *Indexer) buildSubIndexers(indexKey []byte) {
	ix.core = NewIndexerCore(ix.store, indexKey)
	m := ix.cfg.Models
	if m.Contact != nil {
		ix.contact = NewContactIndexer(ix.core, ix.entities, ix.cfg.Facade, ix.cfg.Mapper, m.Contact, ix.log)
		ix.routes[m.Contact.Ref] = ix.contact
	}
	if m.Mail != nil {
		ix.mail = NewMailIndexer(ix.core, ix.entities, ix.cfg.Facade, ix.cfg.Mapper, m.Mail, ix.log)
		ix.routes[m.Mail.Ref] = ix.mail
	}
	if m.GroupInfo != nil {
		gi := NewGroupInfoIndexer(ix.core, ix.entities, ix.cfg.Facade, ix.cfg.Mapper, m.GroupInfo, ix.log)
		ix.routes[m.GroupInfo.Ref] = gi
	}
	if m.WhitelabelChild != nil {
		wl := NewWhitelabelChildIndexer(ix.core, ix.entities, ix.cfg.Facade, ix.cfg.Mapper, m.WhitelabelChild, ix.log)
		ix.routes[m.WhitelabelChild.Ref] = wl
	}
}

// indexableMemberships filters the user's memberships to the group types
// that carry indexed entities.
func (ix *Indexer) indexableMemberships() []mailvault.GroupMembership {
	var out []mailvault.GroupMembership
	for _, m := range ix.userFacade.User().Memberships {
		switch m.GroupType {
		case mailvault.GroupTypeMail, mailvault.GroupTypeContact, mailvault.GroupTypeCustomer:
			out = append(out, m)
		}
	}
	return out
}

// newestBatchID snapshots the current newest event batch id of a group, or
// "" when the group has no batches yet.
func (ix *Indexer) newestBatchID(ctx context.Context, groupID string) (string, error) {
	batches, err := ix.entities.LoadRange(ctx, mailvault.EventBatchTypeRef, groupID, mailvault.GeneratedMaxID, 1, true)
	if err != nil {
		if mailvault.IsNotAuthorized(err) {
			return "", nil
		}
		return "", err
	}
	if len(batches) == 0 {
		return "", nil
	}
	return literalElementID(batches[0]), nil
}

func (ix *Indexer) initFresh(ctx context.Context, cacheInfo *CacheInfo) error {
	ix.log.Info("initializing fresh search index")
	indexKey := crypto.Random128Key()
	userEncIndexKey, err := crypto.EncryptKey(ix.userFacade.GetUserGroupKey(), indexKey)
	if err != nil {
		return err
	}
	ix.buildSubIndexers(indexKey)

	memberships := ix.indexableMemberships()
	// snapshot watermarks before opening the write transaction: every load
	// is a suspension point
	groupData := map[string]*GroupData{}
	for _, m := range memberships {
		newest, err := ix.newestBatchID(ctx, m.Group)
		if err != nil {
			return err
		}
		data := &GroupData{IndexTimestamp: NothingIndexedTimestamp, GroupType: m.GroupType}
		if newest != "" {
			data.AddBatchID(newest)
		}
		groupData[m.Group] = data
	}

	now := ix.serverTime.ServerTimestampMs()
	tx, err := ix.store.OpenTransaction(true)
	if err != nil {
		return err
	}
	defer tx.Abort()
	if err := tx.Put(MetaDataOS, metaUserEncIndexKey, userEncIndexKey); err != nil {
		return err
	}
	if err := putMetaInt64(tx, metaLastEventIndexTimeMs, now); err != nil {
		return err
	}
	if err := putMetaBool(tx, metaMailIndexingEnabled, false); err != nil {
		return err
	}
	for groupID, data := range groupData {
		if err := putGroupData(tx, groupID, data); err != nil {
			return err
		}
	}
	if err := tx.Wait(); err != nil {
		return err
	}

	ix.mu.Lock()
	ix.indexedGroups = groupData
	ix.mu.Unlock()

	// bulk mail indexing is deliberately deferred; contacts and admin data
	// are built now
	for _, m := range memberships {
		if m.GroupType != mailvault.GroupTypeContact || ix.contact == nil {
			continue
		}
		if cacheInfo != nil && cacheInfo.ContactsIndexed {
			if err := ix.contact.MarkFullyIndexed(ctx, m.Group); err != nil {
				return err
			}
			continue
		}
		if err := ix.contact.IndexFullContactList(ctx, m.Group); err != nil {
			return err
		}
	}
	if err := ix.indexAdminData(ctx); err != nil {
		return err
	}
	return nil
}

func (ix *Indexer) indexAdminData(ctx context.Context) error {
	if ix.cfg.GroupInfoListID != "" && ix.cfg.Models.GroupInfo != nil {
		if gi, ok := ix.routes[ix.cfg.Models.GroupInfo.Ref].(*GroupInfoIndexer); ok {
			if err := gi.IndexAll(ctx, ix.cfg.GroupInfoListID); err != nil {
				return err
			}
		}
	}
	if ix.cfg.WhitelabelChildrenListID != "" && ix.cfg.Models.WhitelabelChild != nil {
		if wl, ok := ix.routes[ix.cfg.Models.WhitelabelChild.Ref].(*WhitelabelChildIndexer); ok {
			if err := wl.IndexAll(ctx, ix.cfg.WhitelabelChildrenListID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ix *Indexer) initExisting(ctx context.Context, userEncIndexKey []byte) error {
	indexKey, err := crypto.DecryptKey(ix.userFacade.GetUserGroupKey(), userEncIndexKey)
	if err != nil {
		return fmt.Errorf("decrypting index key: %w", err)
	}
	ix.buildSubIndexers(indexKey)

	// the out-of-sync check comes before any write: an unrecoverable index
	// must be left untouched for the caller to discard
	tx, err := ix.store.OpenTransaction(false)
	if err != nil {
		return err
	}
	watermark, haveWatermark, err := getMetaInt64(tx, metaLastEventIndexTimeMs)
	if err != nil {
		tx.Abort()
		return err
	}
	now := ix.serverTime.ServerTimestampMs()
	if haveWatermark && now-watermark > ix.retentionWindow.Milliseconds() {
		tx.Abort()
		return &mailvault.OutOfSyncError{Message: fmt.Sprintf("watermark %d is beyond the retention window", watermark)}
	}
	stored, err := getAllGroupData(tx)
	if err != nil {
		tx.Abort()
		return err
	}
	mailEnabled, _, err := getMetaBool(tx, metaMailIndexingEnabled)
	if err != nil {
		tx.Abort()
		return err
	}
	excluded, err := getMetaStrings(tx, metaExcludedListIDs)
	tx.Abort()
	if err != nil {
		return err
	}
	if ix.mail != nil {
		ix.mail.SetEnabled(mailEnabled)
		ix.mail.SetExcludedListIDs(excluded)
	}

	if err := ix.updateGroups(ctx, stored); err != nil {
		return err
	}
	if err := ix.buildUnindexedContacts(ctx); err != nil {
		return err
	}
	return ix.loadNewBatches(ctx)
}

// buildUnindexedContacts runs the full contact build for contact groups whose
// history was never indexed, recovering an initialization that was
// interrupted between the metadata commit and the contact build.
func (ix *Indexer) buildUnindexedContacts(ctx context.Context) error {
	if ix.contact == nil {
		return nil
	}
	ix.mu.Lock()
	var contactGroups []string
	for groupID, data := range ix.indexedGroups {
		if data.GroupType == mailvault.GroupTypeContact {
			contactGroups = append(contactGroups, groupID)
		}
	}
	ix.mu.Unlock()

	for _, groupID := range contactGroups {
		tx, err := ix.store.OpenTransaction(false)
		if err != nil {
			return err
		}
		needed, err := ix.contact.NeedsFullBuild(tx, groupID)
		tx.Abort()
		if err != nil {
			return err
		}
		if !needed {
			continue
		}
		ix.log.Info("contacts not indexed yet, building now", "group", groupID)
		if err := ix.contact.IndexFullContactList(ctx, groupID); err != nil {
			return err
		}
		ix.mu.Lock()
		if data, ok := ix.indexedGroups[groupID]; ok {
			updated := *data
			updated.IndexTimestamp = FullIndexedTimestamp
			ix.indexedGroups[groupID] = &updated
		}
		ix.mu.Unlock()
	}
	return nil
}

// updateGroups diffs current memberships against the indexed groups,
// initializing new ones and dropping removed ones. Losing a Mail or Contact
// membership invalidates continued mail indexing and surfaces as
// MembershipRemovedError after mail indexing has been disabled.
func (ix *Indexer) updateGroups(ctx context.Context, stored map[string]*GroupData) error {
	current := map[string]mailvault.GroupMembership{}
	for _, m := range ix.indexableMemberships() {
		current[m.Group] = m
	}

	for groupID, data := range stored {
		if _, still := current[groupID]; still {
			continue
		}
		if data.GroupType == mailvault.GroupTypeMail || data.GroupType == mailvault.GroupTypeContact {
			if err := ix.setMailIndexingEnabled(false); err != nil {
				ix.log.Warn("could not persist mail indexing state", "error", err)
			}
			return &mailvault.MembershipRemovedError{GroupID: groupID}
		}
		tx, err := ix.store.OpenTransaction(true)
		if err != nil {
			return err
		}
		if err := tx.Delete(GroupDataOS, groupID); err != nil {
			tx.Abort()
			return err
		}
		if err := tx.Wait(); err != nil {
			return err
		}
		delete(stored, groupID)
	}

	for groupID, m := range current {
		if _, known := stored[groupID]; known {
			continue
		}
		newest, err := ix.newestBatchID(ctx, groupID)
		if err != nil {
			return err
		}
		data := &GroupData{IndexTimestamp: NothingIndexedTimestamp, GroupType: m.GroupType}
		if newest != "" {
			data.AddBatchID(newest)
		}
		tx, err := ix.store.OpenTransaction(true)
		if err != nil {
			return err
		}
		if err := putGroupData(tx, groupID, data); err != nil {
			tx.Abort()
			return err
		}
		if err := tx.Wait(); err != nil {
			return err
		}
		stored[groupID] = data

		// new mail groups are storage-initialized but not bulk-indexed:
		// startup must not block on a large mailbox
		if m.GroupType == mailvault.GroupTypeContact && ix.contact != nil {
			if err := ix.contact.IndexFullContactList(ctx, groupID); err != nil {
				return err
			}
		}
	}

	ix.mu.Lock()
	ix.indexedGroups = stored
	ix.mu.Unlock()
	return nil
}

// loadNewBatches performs the catch-up load: for every indexed group,
// re-scan the event log from a safe start point and enqueue what the index
// has not seen, then advance the global watermark to server time.
func (ix *Indexer) loadNewBatches(ctx context.Context) error {
	tx, err := ix.store.OpenTransaction(false)
	if err != nil {
		return err
	}
	watermark, haveWatermark, err := getMetaInt64(tx, metaLastEventIndexTimeMs)
	tx.Abort()
	if err != nil {
		return err
	}
	now := ix.serverTime.ServerTimestampMs()
	if haveWatermark && now-watermark > ix.retentionWindow.Milliseconds() {
		return &mailvault.OutOfSyncError{Message: fmt.Sprintf("watermark %d is beyond the retention window", watermark)}
	}

	ix.mu.Lock()
	groups := make(map[string]*GroupData, len(ix.indexedGroups))
	for id, data := range ix.indexedGroups {
		groups[id] = data
	}
	ix.mu.Unlock()

	var pending []mailvault.QueuedBatch
	for groupID, data := range groups {
		startID := ix.catchupStartID(data, now)
		literals, err := ix.entities.LoadAll(ctx, mailvault.EventBatchTypeRef, groupID, startID)
		if err != nil {
			if mailvault.IsNotAuthorized(err) {
				ix.log.Debug("no access to event batches", "group", groupID)
				continue
			}
			return err
		}
		newest := data.NewestBatchID()
		for _, lit := range literals {
			batch := mailvault.EventBatchFromLiteral(lit)
			if newest != "" && !mailvault.FirstBiggerThanSecond(batch.ID.ElementID, newest) {
				continue
			}
			pending = append(pending, mailvault.QueuedBatch{
				GroupID: groupID,
				BatchID: batch.ID.ElementID,
				Events:  batch.Events,
			})
		}
	}
	ix.queue.Add(pending...)

	tx, err = ix.store.OpenTransaction(true)
	if err != nil {
		return err
	}
	defer tx.Abort()
	if err := putMetaInt64(tx, metaLastEventIndexTimeMs, now); err != nil {
		return err
	}
	return tx.Wait()
}

// catchupStartID picks the rescan start: one tick before the oldest known
// batch when it is recent, otherwise one tick before the newest known batch,
// bounding the duplicate work at the cost of a small gap-risk window.
func (ix *Indexer) catchupStartID(data *GroupData, nowMs int64) string {
	oldest := data.OldestBatchID()
	if oldest == "" {
		return mailvault.GeneratedMinID
	}
	oldestMs := mailvault.GeneratedIDToTimestamp(oldest)
	if nowMs-oldestMs < ix.catchupThreshold.Milliseconds() {
		return mailvault.TimestampToGeneratedID(oldestMs - 1)
	}
	newestMs := mailvault.GeneratedIDToTimestamp(data.NewestBatchID())
	return mailvault.TimestampToGeneratedID(newestMs - 1)
}

// AddBatches feeds realtime event batches into the processing queue. Safe
// before Init completes: batches are buffered and deduplicated against the
// catch-up load. Once initialized, batches for groups the indexer does not
// index are dropped before they reach the queue.
func (ix *Indexer) AddBatches(batches ...mailvault.QueuedBatch) {
	ix.mu.Lock()
	if ix.initialized {
		kept := make([]mailvault.QueuedBatch, 0, len(batches))
		for _, b := range batches {
			if _, indexed := ix.indexedGroups[b.GroupID]; !indexed {
				ix.log.Debug("dropping batch for unindexed group", "group", b.GroupID, "batch", b.BatchID)
				continue
			}
			kept = append(kept, b)
		}
		batches = kept
	}
	ix.mu.Unlock()
	ix.queue.Add(batches...)
}

// QueueLen reports the number of buffered batches, for drain observation.
func (ix *Indexer) QueueLen() int { return ix.queue.Len() }

// processBatch is the queue handler: route events to sub-indexers by entity
// type and commit the whole batch in one transaction.
func (ix *Indexer) processBatch(ctx context.Context, batch mailvault.QueuedBatch) error {
	ix.mu.Lock()
	data, indexed := ix.indexedGroups[batch.GroupID]
	ix.mu.Unlock()
	if !indexed {
		ix.log.Debug("skipping batch for unindexed group", "group", batch.GroupID)
		return nil
	}

	routed := map[mailvault.TypeRef][]mailvault.EntityUpdate{}
	var userEvents []mailvault.EntityUpdate
	for _, ev := range mailvault.ReduceEvents(batch.Events) {
		ref := mailvault.TypeRef{App: ev.Application, Type: ev.Type}
		if ref == mailvault.UserTypeRef {
			userEvents = append(userEvents, ev)
			continue
		}
		if _, known := ix.routes[ref]; known {
			routed[ref] = append(routed[ref], ev)
		}
	}

	if len(userEvents) > 0 {
		// membership changes feed back into the group diff
		ix.mu.Lock()
		stored := make(map[string]*GroupData, len(ix.indexedGroups))
		for id, d := range ix.indexedGroups {
			stored[id] = d
		}
		ix.mu.Unlock()
		if err := ix.updateGroups(ctx, stored); err != nil {
			return err
		}
	}

	tx, err := ix.store.OpenTransaction(true)
	if err != nil {
		return err
	}
	defer tx.Abort()
	for ref, events := range routed {
		if err := ix.routes[ref].ProcessEntityEvents(ctx, tx, batch.GroupID, events); err != nil {
			return err
		}
	}
	updated := *data
	updated.AddBatchID(batch.BatchID)
	if err := putGroupData(tx, batch.GroupID, &updated); err != nil {
		return err
	}
	if err := tx.Wait(); err != nil {
		return err
	}

	ix.mu.Lock()
	ix.indexedGroups[batch.GroupID] = &updated
	ix.mu.Unlock()
	return nil
}

// EnableMailIndexing turns mail event indexing on and persists the choice.
func (ix *Indexer) EnableMailIndexing() error {
	if ix.mail == nil {
		return errors.New("search: no mail indexer configured")
	}
	return ix.setMailIndexingEnabled(true)
}

// DisableMailIndexing turns mail event indexing off and persists the choice.
func (ix *Indexer) DisableMailIndexing() error {
	if ix.mail == nil {
		return nil
	}
	return ix.setMailIndexingEnabled(false)
}

func (ix *Indexer) setMailIndexingEnabled(enabled bool) error {
	tx, err := ix.store.OpenTransaction(true)
	if err != nil {
		return err
	}
	defer tx.Abort()
	if err := putMetaBool(tx, metaMailIndexingEnabled, enabled); err != nil {
		return err
	}
	if err := tx.Wait(); err != nil {
		return err
	}
	if ix.mail != nil {
		ix.mail.SetEnabled(enabled)
	}
	return nil
}

// SetExcludedListIDs persists and applies the mail lists excluded from
// indexing.
func (ix *Indexer) SetExcludedListIDs(listIDs []string) error {
	tx, err := ix.store.OpenTransaction(true)
	if err != nil {
		return err
	}
	defer tx.Abort()
	if err := putMetaStrings(tx, metaExcludedListIDs, listIDs); err != nil {
		return err
	}
	if err := tx.Wait(); err != nil {
		return err
	}
	if ix.mail != nil {
		ix.mail.SetExcludedListIDs(listIDs)
	}
	return nil
}

// Search returns the index entries recorded for one token.
func (ix *Indexer) Search(token string) ([]IndexEntry, error) {
	ix.mu.Lock()
	ready := ix.initialized
	ix.mu.Unlock()
	if !ready {
		return nil, errors.New("search: indexer not initialized")
	}
	tx, err := ix.store.OpenTransaction(false)
	if err != nil {
		return nil, err
	}
	defer tx.Abort()
	return ix.core.Lookup(tx, token)
}

// Stop shuts the processing loop down.
func (ix *Indexer) Stop() {
	ix.queue.Stop()
}
