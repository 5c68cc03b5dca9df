package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/dbx"
	"github.com/dmitrijs2005/ingestkeeper/internal/logging"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/extractions"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/outbox"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/preferences"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/repositories/uploads"
)

// memState is an in-memory database enforcing the same constraints as the
// PostgreSQL schema: unique external ids, one canonical per (owner, hash),
// unique (process, status) and a single terminal row per process.
type memState struct {
	uploads     map[string]*models.Upload
	outbox      []*models.OutboxEntry
	extractions map[string]*models.Extraction
	selected    map[string]string
	nextUpload  int
	nextEntry   int64
}

func (s *memState) clone() *memState {
	c := &memState{
		uploads:     make(map[string]*models.Upload, len(s.uploads)),
		outbox:      make([]*models.OutboxEntry, len(s.outbox)),
		extractions: make(map[string]*models.Extraction, len(s.extractions)),
		selected:    make(map[string]string, len(s.selected)),
		nextUpload:  s.nextUpload,
		nextEntry:   s.nextEntry,
	}
	for k, u := range s.uploads {
		cp := *u
		c.uploads[k] = &cp
	}
	for i, e := range s.outbox {
		cp := *e
		c.outbox[i] = &cp
	}
	for k, e := range s.extractions {
		cp := *e
		c.extractions[k] = &cp
	}
	for k, v := range s.selected {
		c.selected[k] = v
	}
	return c
}

// memDB implements repomanager.RepositoryManager. Its tx runner serializes
// transactions (standing in for row locks) and restores a snapshot on error.
// With concurrent set, transactions interleave and only LockProcess orders
// them, as in PostgreSQL at READ COMMITTED; a rollback then restores the
// whole state, so that mode is for transactions that commit.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *memState

	concurrent bool
	procLocks  map[string]*sync.Mutex

	clock time.Time

	// failure injection
	extractionErr error
	beforeClaim   func(m *memDB, u *models.Upload) error
	appendHook    func(e *models.OutboxEntry) error
	// afterRollback runs once after the next rollback; it models writes
	// committed by a concurrent transaction.
	afterRollback func(m *memDB)
	// currentHook runs before Current reads the log.
	currentHook func(processID string)

	commits   int
	rollbacks int
}

func newMemDB() *memDB {
	return &memDB{
		st: &memState{
			uploads:     map[string]*models.Upload{},
			extractions: map[string]*models.Extraction{},
			selected:    map[string]string{},
		},
		procLocks: map[string]*sync.Mutex{},
		clock:     time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// memTx holds the process locks of one transaction.
type memTx struct {
	locks []*sync.Mutex
}

type memTxKey struct{}

func (m *memDB) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

// advance moves the clock forward; callers must not hold mu.
func (m *memDB) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(d)
}

// tick must be called with mu held.
func (m *memDB) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *memDB) txFn(ctx context.Context, _ *sql.DB, _ *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	if !m.concurrent {
		m.txMu.Lock()
		defer m.txMu.Unlock()
	}

	tx := &memTx{}
	defer func() {
		for i := len(tx.locks) - 1; i >= 0; i-- {
			tx.locks[i].Unlock()
		}
	}()
	ctx = context.WithValue(ctx, memTxKey{}, tx)

	m.mu.Lock()
	snapshot := m.st.clone()
	m.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			m.restore(snapshot)
			panic(p)
		}
		if err != nil {
			m.restore(snapshot)
			if f := m.afterRollback; f != nil {
				m.afterRollback = nil
				f(m)
			}
			return
		}
		m.mu.Lock()
		m.commits++
		m.mu.Unlock()
	}()

	return fn(ctx, nil)
}

func (m *memDB) restore(s *memState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = s
	m.rollbacks++
}

func (m *memDB) txCounts() (commits, rollbacks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits, m.rollbacks
}

func (m *memDB) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *memDB) Uploads(dbx.DBTX) uploads.Repository         { return &memUploads{m} }
func (m *memDB) Outbox(dbx.DBTX) outbox.Repository           { return &memOutbox{m} }
func (m *memDB) Extractions(dbx.DBTX) extractions.Repository { return &memExtractions{m} }
func (m *memDB) Preferences(dbx.DBTX) preferences.Repository { return &memPreferences{m} }

// test accessors

func (m *memDB) upload(id string) *models.Upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.st.uploads[id]
	return &cp
}

func (m *memDB) uploadByExternal(externalID string) *models.Upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.st.uploads {
		if u.ExternalID == externalID {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (m *memDB) entries(processID string) []*models.OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.OutboxEntry
	for _, e := range m.st.outbox {
		if e.ProcessID == processID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

func (m *memDB) statuses(processID string) []models.OutboxStatus {
	var out []models.OutboxStatus
	for _, e := range m.entries(processID) {
		out = append(out, e.SequenceStatus)
	}
	return out
}

// validPath reports whether statuses, ordered by creation, form a legal
// history for one process.
func validPath(statuses []models.OutboxStatus) bool {
	if len(statuses) == 0 || statuses[0] != models.OutboxPending {
		return false
	}
	for i := 1; i < len(statuses); i++ {
		if !models.CanFollow(statuses[i-1], statuses[i]) {
			return false
		}
	}
	return true
}

func (m *memDB) canonicalCount(ownerID, hash string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.st.uploads {
		if u.IsCanonical && u.OwnerID == ownerID && u.ContentHash != nil && *u.ContentHash == hash {
			n++
		}
	}
	return n
}

func (m *memDB) extraction(uploadID string) *models.Extraction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.extractions[uploadID]
}

// seed inserts a record in any state, bypassing the lifecycle.
func (m *memDB) seed(u *models.Upload) *models.Upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		m.st.nextUpload++
		u.ID = fmt.Sprintf("upload-%d", m.st.nextUpload)
	}
	if u.ExternalID == "" {
		u.ExternalID = "ext-" + u.ID
	}
	if u.ProcessID == "" {
		u.ProcessID = "proc-" + u.ID
	}
	u.CreatedAt = m.tick()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.st.uploads[u.ID] = &cp
	return u
}

type memUploads struct{ m *memDB }

func (r *memUploads) Create(ctx context.Context, u *models.Upload) (*models.Upload, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, x := range r.m.st.uploads {
		if x.ExternalID == u.ExternalID {
			return nil, fmt.Errorf("%w: duplicate external id", common.ErrInvariantViolation)
		}
	}
	r.m.st.nextUpload++
	cp := *u
	cp.ID = fmt.Sprintf("upload-%d", r.m.st.nextUpload)
	cp.Status = models.UploadPending
	cp.CreatedAt = r.m.tick()
	cp.UpdatedAt = cp.CreatedAt
	r.m.st.uploads[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memUploads) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.uploads[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUploads) GetByExternalID(ctx context.Context, externalID string, forUpdate bool) (*models.Upload, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.st.uploads {
		if u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUploads) FindCanonical(ctx context.Context, ownerID, contentHash string) (*models.Upload, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.st.uploads {
		if u.IsCanonical && u.OwnerID == ownerID && u.ContentHash != nil && *u.ContentHash == contentHash {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

// checkRow enforces the CHECK constraints and the canonical partial index.
func (r *memUploads) checkRow(u *models.Upload) error {
	if u.IsCanonical && u.Status == models.UploadDeduplicated {
		return fmt.Errorf("%w: check uploads_dedup_not_canonical", common.ErrInvariantViolation)
	}
	if (u.CanonicalReference != nil) != (u.Status == models.UploadDeduplicated) {
		return fmt.Errorf("%w: check uploads_reference_iff_dedup", common.ErrInvariantViolation)
	}
	if !u.IsCanonical || u.ContentHash == nil {
		return nil
	}
	for _, x := range r.m.st.uploads {
		if x.ID != u.ID && x.IsCanonical && x.OwnerID == u.OwnerID && x.ContentHash != nil && *x.ContentHash == *u.ContentHash {
			return fmt.Errorf("%w: unique %s", common.ErrTransientConflict, uploads.CanonicalIndex)
		}
	}
	return nil
}

func (r *memUploads) update(id string, guard func(*models.Upload) bool, onZero error, apply func(*models.Upload)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.uploads[id]
	if !ok || !guard(u) {
		return onZero
	}
	next := *u
	apply(&next)
	if err := r.checkRow(&next); err != nil {
		return err
	}
	next.UpdatedAt = r.m.tick()
	r.m.st.uploads[id] = &next
	return nil
}

func isPending(u *models.Upload) bool { return u.Status == models.UploadPending }

func (r *memUploads) MarkUploaded(ctx context.Context, id, objectKey, contentHash string, size int64, extractedText *string) error {
	if hook := r.m.beforeClaim; hook != nil {
		r.m.mu.Lock()
		u := *r.m.st.uploads[id]
		r.m.mu.Unlock()
		if err := hook(r.m, &u); err != nil {
			return err
		}
	}
	return r.update(id, isPending, common.ErrInvalidStateTransition, func(u *models.Upload) {
		u.Status = models.UploadUploaded
		u.ObjectKey = objectKey
		u.ContentHash = &contentHash
		u.Size = size
		u.ExtractedText = extractedText
		u.IsCanonical = true
	})
}

func (r *memUploads) MarkDeduplicated(ctx context.Context, id, canonicalID, contentHash string, size int64, extractedText *string) error {
	return r.update(id, isPending, common.ErrInvalidStateTransition, func(u *models.Upload) {
		u.Status = models.UploadDeduplicated
		u.CanonicalReference = &canonicalID
		u.ContentHash = &contentHash
		u.Size = size
		u.ExtractedText = extractedText
		u.IsCanonical = false
	})
}

func (r *memUploads) MarkFailed(ctx context.Context, id string) error {
	return r.update(id, isPending, common.ErrInvalidStateTransition, func(u *models.Upload) {
		u.Status = models.UploadFailed
	})
}

func (r *memUploads) MarkDeletedByUser(ctx context.Context, id string) error {
	notDeleted := func(u *models.Upload) bool { return u.Status != models.UploadDeletedByUser }
	return r.update(id, notDeleted, common.ErrInvalidStateTransition, func(u *models.Upload) {
		u.Status = models.UploadDeletedByUser
		u.CanonicalReference = nil
	})
}

func (r *memUploads) RevokeCanonical(ctx context.Context, id string) error {
	canonical := func(u *models.Upload) bool { return u.IsCanonical }
	return r.update(id, canonical, common.ErrTransientConflict, func(u *models.Upload) {
		u.IsCanonical = false
	})
}

func (r *memUploads) List(ctx context.Context, ownerID string, filter models.UploadFilter) ([]*models.Upload, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Upload
	for _, u := range r.m.st.uploads {
		if u.OwnerID == ownerID && (filter.Status == "" || u.Status == filter.Status) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit := filter.Limit
	if limit == 0 {
		limit = 50
	}
	if filter.Offset >= uint64(len(out)) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memOutbox struct{ m *memDB }

func (r *memOutbox) appendLocked(e *models.OutboxEntry) (*models.OutboxEntry, error) {
	if r.m.appendHook != nil {
		if err := r.m.appendHook(e); err != nil {
			return nil, err
		}
	}
	for _, x := range r.m.st.outbox {
		if x.ProcessID != e.ProcessID {
			continue
		}
		if x.SequenceStatus == e.SequenceStatus {
			return nil, fmt.Errorf("%w: %s already recorded", common.ErrDuplicateTransition, e.SequenceStatus)
		}
		if x.SequenceStatus.IsTerminal() && e.SequenceStatus.IsTerminal() {
			return nil, fmt.Errorf("%w: process %s already terminal", common.ErrInvalidStateTransition, e.ProcessID)
		}
	}
	r.m.st.nextEntry++
	cp := *e
	cp.ID = r.m.st.nextEntry
	cp.CreatedAt = r.m.tick()
	r.m.st.outbox = append(r.m.st.outbox, &cp)
	out := cp
	return &out, nil
}

func (r *memOutbox) Append(ctx context.Context, e *models.OutboxEntry) (*models.OutboxEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.appendLocked(e)
}

func (r *memOutbox) currentLocked(processID string) *models.OutboxEntry {
	var cur *models.OutboxEntry
	for _, e := range r.m.st.outbox {
		if e.ProcessID == processID {
			cur = e
		}
	}
	return cur
}

func (r *memOutbox) AppendIfCurrent(ctx context.Context, processID string, expected, next models.OutboxStatus) (*models.OutboxEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur := r.currentLocked(processID)
	if cur == nil || cur.SequenceStatus != expected {
		return nil, nil
	}
	e, err := r.appendLocked(cur.Next(next, nil))
	if err != nil {
		// ON CONFLICT DO NOTHING
		return nil, nil
	}
	return e, nil
}

func (r *memOutbox) LockProcess(ctx context.Context, processID string) error {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	if !ok {
		return errors.New("LockProcess outside a transaction")
	}
	r.m.mu.Lock()
	l, ok := r.m.procLocks[processID]
	if !ok {
		l = &sync.Mutex{}
		r.m.procLocks[processID] = l
	}
	r.m.mu.Unlock()

	l.Lock()
	tx.locks = append(tx.locks, l)
	return nil
}

func (r *memOutbox) Current(ctx context.Context, processID string) (*models.OutboxEntry, error) {
	if hook := r.m.currentHook; hook != nil {
		hook(processID)
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur := r.currentLocked(processID)
	if cur == nil {
		return nil, common.ErrorNotFound
	}
	cp := *cur
	return &cp, nil
}

func (r *memOutbox) CurrentByUpload(ctx context.Context, uploadID string) (*models.OutboxEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var cur *models.OutboxEntry
	for _, e := range r.m.st.outbox {
		if e.UploadID == uploadID {
			cur = e
		}
	}
	if cur == nil {
		return nil, common.ErrorNotFound
	}
	cp := *cur
	return &cp, nil
}

func (r *memOutbox) History(ctx context.Context, processID string) ([]*models.OutboxEntry, error) {
	return r.m.entries(processID), nil
}

func (r *memOutbox) FindPending(ctx context.Context, limit int, createdBefore time.Time) ([]*models.OutboxEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	advanced := map[string]bool{}
	for _, e := range r.m.st.outbox {
		if e.SequenceStatus != models.OutboxPending {
			advanced[e.ProcessID] = true
		}
	}
	var out []*models.OutboxEntry
	for _, e := range r.m.st.outbox {
		if e.SequenceStatus == models.OutboxPending && !advanced[e.ProcessID] && !e.CreatedAt.After(createdBefore) {
			cp := *e
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type memExtractions struct{ m *memDB }

func (r *memExtractions) Insert(ctx context.Context, e *models.Extraction) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.extractionErr != nil {
		return r.m.extractionErr
	}
	if _, ok := r.m.st.uploads[e.UploadID]; !ok {
		return fmt.Errorf("%w: fk extractions_upload_id_fkey", common.ErrInvariantViolation)
	}
	if _, ok := r.m.st.extractions[e.UploadID]; ok {
		return fmt.Errorf("%w: extraction already stored", common.ErrDuplicateTransition)
	}
	cp := *e
	cp.CreatedAt = r.m.tick()
	r.m.st.extractions[e.UploadID] = &cp
	return nil
}

func (r *memExtractions) GetByUploadID(ctx context.Context, uploadID string) (*models.Extraction, error) {
	if e := r.m.extraction(uploadID); e != nil {
		return e, nil
	}
	return nil, common.ErrorNotFound
}

type memPreferences struct{ m *memDB }

func (r *memPreferences) SetSelectedUpload(ctx context.Context, ownerID, uploadID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.st.uploads[uploadID]; !ok {
		return common.ErrorNotFound
	}
	r.m.st.selected[ownerID] = uploadID
	return nil
}

func (r *memPreferences) ClearSelectedUpload(ctx context.Context, uploadID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for owner, id := range r.m.st.selected {
		if id == uploadID {
			delete(r.m.st.selected, owner)
			n++
		}
	}
	return n, nil
}

func (m *memDB) selectedFor(ownerID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.st.selected[ownerID]
	return id, ok
}

func nopLogger() logging.Logger {
	return logging.New(logging.BackendSlog, "error", io.Discard)
}

// recordingPublisher captures handed-off requests.
type recordingPublisher struct {
	mu   sync.Mutex
	reqs []models.ProcessingRequest
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, req models.ProcessingRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.reqs = append(p.reqs, req)
	return nil
}

func (p *recordingPublisher) published() []models.ProcessingRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ProcessingRequest(nil), p.reqs...)
}

// harness wires every service over one memDB.
type harness struct {
	db        *memDB
	pub       *recordingPublisher
	uploads   *UploadService
	finalizer *UploadFinalizer
	reporter  *OutboxStatusReporter
	reaper    *OutboxReaper
}

func newHarness() *harness {
	db := newMemDB()
	pub := &recordingPublisher{}
	logger := nopLogger()

	us := NewUploadService(nil, db, nil, logger)
	us.txFn = db.txFn
	us.now = db.now

	fin := NewUploadFinalizer(nil, db, pub, logger)
	fin.txFn = db.txFn

	rep := NewOutboxStatusReporter(nil, db, nil, logger)
	rep.txFn = db.txFn

	rea := NewOutboxReaper(nil, db, logger)
	rea.txFn = db.txFn
	rea.now = db.now

	return &harness{db: db, pub: pub, uploads: us, finalizer: fin, reporter: rep, reaper: rea}
}
