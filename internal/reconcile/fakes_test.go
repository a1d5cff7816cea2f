package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/db"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// fakeAudit is an in-memory ledger plus claim table. hasCalls counts dedup
// lookups so tests can assert the ignore short-circuit never reaches the
// ledger.
type fakeAudit struct {
	mu        sync.Mutex
	entries   []model.AuditEntry
	claims    map[string]bool
	lastApply time.Time
	nextID    int64

	hasCalls  int
	insertErr error
	claimErr  error
	dedupErr  error
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{claims: map[string]bool{}}
}

func (f *fakeAudit) Insert(ctx context.Context, entry *model.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	entry.ID = f.nextID
	f.entries = append(f.entries, *entry)
	if entry.Outcome == model.OutcomeSuccess && entry.Action.IsApply() && entry.ProcessedAt.After(f.lastApply) {
		f.lastApply = entry.ProcessedAt
	}
	return nil
}

func (f *fakeAudit) HasSuccessfulApply(ctx context.Context, fingerprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasCalls++
	if f.dedupErr != nil {
		return false, f.dedupErr
	}
	for _, e := range f.entries {
		if e.Fingerprint == fingerprint && e.Outcome == model.OutcomeSuccess && e.Action.IsApply() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAudit) LastSuccessfulApply(ctx context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastApply, nil
}

func (f *fakeAudit) FindByID(ctx context.Context, id int64) (*model.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, apperrors.ErrEntryNotFound
}

func (f *fakeAudit) Search(ctx context.Context, q db.AuditQuery) ([]model.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AuditEntry
	for _, e := range f.entries {
		if q.Email != "" && !strings.EqualFold(e.Email, q.Email) {
			continue
		}
		if q.GUID != "" && e.GUID != q.GUID {
			continue
		}
		if q.Fingerprint != "" && e.Fingerprint != q.Fingerprint {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeAudit) ClaimFingerprint(ctx context.Context, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return f.claimErr
	}
	if f.claims[fingerprint] {
		return apperrors.ErrFingerprintClaimed
	}
	f.claims[fingerprint] = true
	return nil
}

func (f *fakeAudit) ReleaseFingerprint(ctx context.Context, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, fingerprint)
	return nil
}

func (f *fakeAudit) lastEntry() model.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return model.AuditEntry{}
	}
	return f.entries[len(f.entries)-1]
}

func (f *fakeAudit) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// seedApply plants a successful apply row so dedup fires for the record.
func (f *fakeAudit) seedApply(rec model.IntakeRecord, action model.Action) {
	entry := model.NewAuditEntry(rec, rec.Fingerprint(), "seed-run")
	entry.Action = action
	entry.Outcome = model.OutcomeSuccess
	_ = f.Insert(context.Background(), &entry)
	_ = f.ClaimFingerprint(context.Background(), rec.Fingerprint())
}

type fakeLearners struct {
	byGUID    map[string]*model.Learner
	nextID    int64
	created   []model.Learner
	createErr error
}

func newFakeLearners(seed ...*model.Learner) *fakeLearners {
	f := &fakeLearners{byGUID: map[string]*model.Learner{}}
	for _, l := range seed {
		f.nextID++
		if l.ID == 0 {
			l.ID = f.nextID
		}
		f.byGUID[l.GUID] = l
	}
	return f
}

func (f *fakeLearners) FindByGUID(ctx context.Context, guid string) (*model.Learner, error) {
	l, ok := f.byGUID[guid]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLearners) FindByEmail(ctx context.Context, email string) (*model.Learner, error) {
	for _, l := range f.byGUID {
		if strings.EqualFold(l.Email, email) {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeLearners) Create(ctx context.Context, learner *model.Learner) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, l := range f.byGUID {
		if strings.EqualFold(l.Email, learner.Email) {
			return apperrors.ErrDuplicateEmail
		}
	}
	f.nextID++
	learner.ID = f.nextID
	cp := *learner
	f.byGUID[learner.GUID] = &cp
	f.created = append(f.created, cp)
	return nil
}

type fakeCourses struct {
	byELM   map[string]*model.Course
	findErr error
}

func newFakeCourses(seed ...*model.Course) *fakeCourses {
	f := &fakeCourses{byELM: map[string]*model.Course{}}
	for _, c := range seed {
		f.byELM[c.ELMCourseID] = c
	}
	return f
}

func (f *fakeCourses) FindByELMID(ctx context.Context, elmCourseID string) (*model.Course, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	c, ok := f.byELM[elmCourseID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

type fakeEnrolments struct {
	active       map[string]bool
	enrolErr     error
	suspendErr   error
	enrolCalls   int
	suspendCalls int
}

func newFakeEnrolments() *fakeEnrolments {
	return &fakeEnrolments{active: map[string]bool{}}
}

func enrolKey(learnerID, courseID int64) string {
	return fmt.Sprintf("%d:%d", learnerID, courseID)
}

func (f *fakeEnrolments) setActive(learnerID, courseID int64) {
	f.active[enrolKey(learnerID, courseID)] = true
}

func (f *fakeEnrolments) ActiveExists(ctx context.Context, learnerID, courseID int64) (bool, error) {
	return f.active[enrolKey(learnerID, courseID)], nil
}

func (f *fakeEnrolments) Enrol(ctx context.Context, learnerID, courseID int64) error {
	if f.enrolErr != nil {
		return f.enrolErr
	}
	f.enrolCalls++
	f.active[enrolKey(learnerID, courseID)] = true
	return nil
}

func (f *fakeEnrolments) Suspend(ctx context.Context, learnerID, courseID int64) error {
	if f.suspendErr != nil {
		return f.suspendErr
	}
	key := enrolKey(learnerID, courseID)
	if !f.active[key] {
		return apperrors.ErrNoActiveEnrolment
	}
	f.suspendCalls++
	f.active[key] = false
	return nil
}

type fakeNotifier struct {
	alerts     []string
	welcomes   int
	alertErr   error
	welcomeErr error
}

func (f *fakeNotifier) NotifyAdmins(ctx context.Context, subject, body string) error {
	if f.alertErr != nil {
		return f.alertErr
	}
	f.alerts = append(f.alerts, subject)
	return nil
}

func (f *fakeNotifier) SendWelcome(ctx context.Context, learner *model.Learner, course *model.Course) error {
	if f.welcomeErr != nil {
		return f.welcomeErr
	}
	f.welcomes++
	return nil
}

type fakeRuns struct {
	created []model.RunSummary
}

func (f *fakeRuns) Create(ctx context.Context, run *model.RunSummary) error {
	f.created = append(f.created, *run)
	return nil
}

func (f *fakeRuns) FindByID(ctx context.Context, id string) (*model.RunSummary, error) {
	for _, r := range f.created {
		if r.ID == id {
			cp := r
			return &cp, nil
		}
	}
	return nil, apperrors.ErrRunNotFound
}

func (f *fakeRuns) ListRecent(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 || limit > len(f.created) {
		limit = len(f.created)
	}
	out := make([]model.RunSummary, limit)
	copy(out, f.created[len(f.created)-limit:])
	return out, nil
}

type fakeLock struct {
	available  bool
	acquireErr error
	acquired   int
	released   int
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if !f.available {
		return false, nil
	}
	f.acquired++
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.released++
	return nil
}
