package emission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/dte-core/internal/domain"
	"github.com/jhoicas/dte-core/internal/domain/entity"
	infrasii "github.com/jhoicas/dte-core/internal/infrastructure/sii"
)

// ── fakes de repositorios ─────────────────────────────────────────────────────

type fakeDocRepo struct {
	mu    sync.Mutex
	docs  map[string]*entity.Document
	items map[string][]*entity.DocumentItem
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{
		docs:  make(map[string]*entity.Document),
		items: make(map[string][]*entity.DocumentItem),
	}
}

func (f *fakeDocRepo) Create(ctx context.Context, doc *entity.Document, items []*entity.DocumentItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.docs[doc.ID] = &cp
	f.items[doc.ID] = items
	return nil
}

func (f *fakeDocRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocRepo) GetItems(ctx context.Context, documentID string) ([]*entity.DocumentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[documentID], nil
}

func (f *fakeDocRepo) Update(ctx context.Context, doc *entity.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocRepo) ListByCompany(ctx context.Context, companyID string, limit int) ([]*entity.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Document
	for _, d := range f.docs {
		if d.CompanyID == companyID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) ListSubmittable(ctx context.Context, saleBefore time.Time, limit int) ([]*entity.Document, error) {
	return f.listByStatus(saleBefore, limit, entity.StatusPendingSubmit, entity.StatusError)
}

func (f *fakeDocRepo) ListSent(ctx context.Context, limit int) ([]*entity.Document, error) {
	return f.listByStatus(time.Time{}, limit, entity.StatusSent)
}

func (f *fakeDocRepo) listByStatus(saleBefore time.Time, limit int, statuses ...string) ([]*entity.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Document
	for _, d := range f.docs {
		for _, s := range statuses {
			if d.Status == s && (saleBefore.IsZero() || d.SaleAt.Before(saleBefore)) {
				cp := *d
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SaleAt.Before(out[j].SaleAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// statusOf lee el estado actual sin copiar el documento completo.
func (f *fakeDocRepo) statusOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		return d.Status
	}
	return ""
}

type fakeCompanyRepo struct {
	mu         sync.Mutex
	companies  map[string]*entity.Company
	delayReads int
}

func newFakeCompanyRepo(companies ...*entity.Company) *fakeCompanyRepo {
	m := make(map[string]*entity.Company)
	for _, c := range companies {
		m[c.ID] = c
	}
	return &fakeCompanyRepo{companies: m}
}

func (f *fakeCompanyRepo) Create(ctx context.Context, c *entity.Company) error { return nil }
func (f *fakeCompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.companies[id]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}
func (f *fakeCompanyRepo) List(ctx context.Context) ([]*entity.Company, error) { return nil, nil }
func (f *fakeCompanyRepo) Update(ctx context.Context, c *entity.Company) error { return nil }
func (f *fakeCompanyRepo) GetSubmitDelaySecs(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	f.delayReads++
	return c.SubmitDelaySecs, nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []*entity.SubmissionAttempt
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *entity.SubmissionAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeAttemptRepo) ListByDocument(ctx context.Context, documentID string) ([]*entity.SubmissionAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.SubmissionAttempt
	for _, a := range f.attempts {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ── fake del puerto de envío ──────────────────────────────────────────────────

type fakeSubmitter struct {
	mu          sync.Mutex
	submits     []string // IDs de documento en orden de envío
	submitErr   error
	statusCalls int
	estado      string
	glosa       string
	statusErr   error
	counter     int
}

func (f *fakeSubmitter) Submit(ctx context.Context, company *entity.Company, doc *entity.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submits = append(f.submits, doc.ID)
	f.counter++
	return fmt.Sprintf("TRACK-%d", f.counter), nil
}

func (f *fakeSubmitter) QueryStatus(ctx context.Context, company *entity.Company, trackID string) (*infrasii.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &infrasii.StatusResponse{Estado: f.estado, Glosa: f.glosa}, nil
}
