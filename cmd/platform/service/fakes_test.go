package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/clients"
	"github.com/exprsn/platform/common/gitrepo"
	"github.com/exprsn/platform/common/models"
	"github.com/exprsn/platform/common/ratelimit"
)

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// artifacts

type memArtifacts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Artifact
}

func newMemArtifacts(recs ...*models.Artifact) *memArtifacts {
	m := &memArtifacts{rows: make(map[uuid.UUID]models.Artifact)}
	for _, r := range recs {
		m.rows[r.ID] = *r
	}
	return m
}

func (m *memArtifacts) Get(_ context.Context, kind models.ArtifactKind, id uuid.UUID) (*models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Kind != kind {
		return nil, apperr.NotFound(string(kind), id)
	}
	return &r, nil
}

func (m *memArtifacts) ListByApplication(_ context.Context, appID uuid.UUID, kind models.ArtifactKind) ([]*models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Artifact
	for _, r := range m.rows {
		if r.Kind == kind && r.ApplicationID != nil && *r.ApplicationID == appID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memArtifacts) Create(_ context.Context, a *models.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[a.ID]; ok {
		return apperr.Conflict("artifact %s exists", a.ID)
	}
	m.rows[a.ID] = *a
	return nil
}

func (m *memArtifacts) Update(_ context.Context, a *models.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[a.ID]; !ok {
		return apperr.NotFound(string(a.Kind), a.ID)
	}
	m.rows[a.ID] = *a
	return nil
}

func (m *memArtifacts) byKind(kind models.ArtifactKind) []models.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Artifact
	for _, r := range m.rows {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// git

type memGit struct {
	mu        sync.Mutex
	repos     map[uuid.UUID]*models.Repository
	branches  map[string]models.Branch
	commits   []models.Commit
	prs       map[uuid.UUID][]models.PullRequest
	pipelines []*models.Pipeline
}

func newMemGit(repos ...*models.Repository) *memGit {
	g := &memGit{
		repos:    make(map[uuid.UUID]*models.Repository),
		branches: make(map[string]models.Branch),
		prs:      make(map[uuid.UUID][]models.PullRequest),
	}
	for _, r := range repos {
		g.repos[r.ID] = r
	}
	return g
}

func branchKey(repoID uuid.UUID, name string) string { return repoID.String() + "/" + name }

func (g *memGit) GetRepository(_ context.Context, id uuid.UUID) (*models.Repository, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.repos[id]
	if !ok {
		return nil, apperr.NotFound("repository", id)
	}
	c := *r
	return &c, nil
}

func (g *memGit) GetBranch(_ context.Context, repoID uuid.UUID, name string) (*models.Branch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.branches[branchKey(repoID, name)]
	if !ok {
		return nil, apperr.NotFound("branch", name)
	}
	return &b, nil
}

func (g *memGit) UpsertBranch(_ context.Context, b *models.Branch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.branches[branchKey(b.RepositoryID, b.Name)] = *b
	return nil
}

func (g *memGit) CreateCommit(_ context.Context, c *models.Commit) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commits = append(g.commits, *c)
	return nil
}

func (g *memGit) CreatePullRequest(_ context.Context, pr *models.PullRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	max := 0
	for _, p := range g.prs[pr.RepositoryID] {
		if p.Number > max {
			max = p.Number
		}
	}
	pr.Number = max + 1
	g.prs[pr.RepositoryID] = append(g.prs[pr.RepositoryID], *pr)
	if pr.State == models.PRStateOpen {
		g.repos[pr.RepositoryID].OpenPRsCount++
	}
	return nil
}

func (g *memGit) GetPullRequest(_ context.Context, repoID uuid.UUID, number int) (*models.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.prs[repoID] {
		if p.Number == number {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("pull request", number)
}

func (g *memGit) ListPullRequests(_ context.Context, repoID uuid.UUID, state models.PRState) ([]*models.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.PullRequest
	for _, p := range g.prs[repoID] {
		if state == "" || p.State == state {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (g *memGit) UpdatePullRequest(_ context.Context, pr *models.PullRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.prs[pr.RepositoryID]
	for i := range list {
		if list[i].Number == pr.Number {
			list[i] = *pr
			return nil
		}
	}
	return apperr.NotFound("pull request", pr.Number)
}

func (g *memGit) TransitionPullRequest(_ context.Context, pr *models.PullRequest, prior models.PRState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.prs[pr.RepositoryID]
	for i := range list {
		if list[i].Number != pr.Number {
			continue
		}
		if list[i].State != prior {
			return apperr.Conflict("pull request #%d changed state", pr.Number)
		}
		repo := g.repos[pr.RepositoryID]
		switch {
		case prior == models.PRStateOpen && pr.State != models.PRStateOpen:
			repo.OpenPRsCount--
		case prior != models.PRStateOpen && pr.State == models.PRStateOpen:
			repo.OpenPRsCount++
		}
		list[i] = *pr
		return nil
	}
	return apperr.NotFound("pull request", pr.Number)
}

func (g *memGit) ListPipelines(_ context.Context, repoID uuid.UUID) ([]*models.Pipeline, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.Pipeline
	for _, p := range g.pipelines {
		if p.RepositoryID == repoID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *memGit) openCount(repoID uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.repos[repoID].OpenPRsCount
}

// credentials

type memCredentials struct {
	mu     sync.Mutex
	keys   map[uuid.UUID]models.SSHKey
	tokens map[uuid.UUID]models.PersonalAccessToken
	apps   map[uuid.UUID]models.OAuthApplication
	audit  []models.AuditLog
}

func newMemCredentials() *memCredentials {
	return &memCredentials{
		keys:   make(map[uuid.UUID]models.SSHKey),
		tokens: make(map[uuid.UUID]models.PersonalAccessToken),
		apps:   make(map[uuid.UUID]models.OAuthApplication),
	}
}

func (m *memCredentials) CreateSSHKey(_ context.Context, k *models.SSHKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[k.ID] = *k
	return nil
}

func (m *memCredentials) GetSSHKey(_ context.Context, id uuid.UUID) (*models.SSHKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, apperr.NotFound("ssh key", id)
	}
	return &k, nil
}

func (m *memCredentials) GetSSHKeyByFingerprint(_ context.Context, fp string) (*models.SSHKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.Fingerprint == fp {
			return &k, nil
		}
	}
	return nil, apperr.NotFound("ssh key", fp)
}

func (m *memCredentials) ListSSHKeys(_ context.Context, userID string) ([]*models.SSHKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SSHKey
	for _, k := range m.keys {
		if k.UserID == userID {
			k := k
			out = append(out, &k)
		}
	}
	return out, nil
}

func (m *memCredentials) DeleteSSHKey(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, id)
	return nil
}

func (m *memCredentials) TouchSSHKey(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.keys[id]
	k.LastUsedAt = &at
	m.keys[id] = k
	return nil
}

func (m *memCredentials) CreateToken(_ context.Context, t *models.PersonalAccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = *t
	return nil
}

func (m *memCredentials) GetToken(_ context.Context, id uuid.UUID) (*models.PersonalAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil, apperr.NotFound("token", id)
	}
	return &t, nil
}

func (m *memCredentials) ListTokens(_ context.Context, userID string) ([]*models.PersonalAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PersonalAccessToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			t := t
			out = append(out, &t)
		}
	}
	return out, nil
}

func (m *memCredentials) ListTokensByPrefix(_ context.Context, prefix string) ([]*models.PersonalAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PersonalAccessToken
	for _, t := range m.tokens {
		if t.TokenPrefix == prefix {
			t := t
			out = append(out, &t)
		}
	}
	return out, nil
}

func (m *memCredentials) RevokeToken(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tokens[id]
	t.Revoked = true
	t.RevokedAt = &at
	m.tokens[id] = t
	return nil
}

func (m *memCredentials) TouchToken(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tokens[id]
	t.LastUsedAt = &at
	m.tokens[id] = t
	return nil
}

func (m *memCredentials) CreateOAuthApp(_ context.Context, a *models.OAuthApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[a.ID] = *a
	return nil
}

func (m *memCredentials) GetOAuthApp(_ context.Context, id uuid.UUID) (*models.OAuthApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, apperr.NotFound("oauth application", id)
	}
	return &a, nil
}

func (m *memCredentials) GetOAuthAppByClientID(_ context.Context, clientID string) (*models.OAuthApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.apps {
		if a.ClientID == clientID {
			return &a, nil
		}
	}
	return nil, apperr.NotFound("oauth application", clientID)
}

func (m *memCredentials) ListOAuthApps(_ context.Context, userID string) ([]*models.OAuthApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.OAuthApplication
	for _, a := range m.apps {
		if a.UserID == userID {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

func (m *memCredentials) UpdateOAuthApp(_ context.Context, a *models.OAuthApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[a.ID] = *a
	return nil
}

func (m *memCredentials) DeleteOAuthApp(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.apps, id)
	return nil
}

func (m *memCredentials) TouchOAuthApp(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.apps[id]
	a.LastUsedAt = &at
	m.apps[id] = a
	return nil
}

func (m *memCredentials) InsertAudit(_ context.Context, e *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *e)
	return nil
}

func (m *memCredentials) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.audit))
	for _, e := range m.audit {
		out = append(out, e.Action)
	}
	return out
}

// reports

type memReports struct {
	mu         sync.Mutex
	reports    map[uuid.UUID]models.Report
	schedules  map[uuid.UUID]models.ReportSchedule
	executions map[uuid.UUID]models.ReportExecution
}

func newMemReports(reports ...*models.Report) *memReports {
	m := &memReports{
		reports:    make(map[uuid.UUID]models.Report),
		schedules:  make(map[uuid.UUID]models.ReportSchedule),
		executions: make(map[uuid.UUID]models.ReportExecution),
	}
	for _, r := range reports {
		m.reports[r.ID] = *r
	}
	return m
}

func (m *memReports) GetReport(_ context.Context, id uuid.UUID) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.NotFound("report", id)
	}
	return &r, nil
}

func (m *memReports) TouchReport(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.reports[id]
	r.ExecutionCount++
	r.LastExecutedAt = &at
	m.reports[id] = r
	return nil
}

func (m *memReports) CreateSchedule(_ context.Context, s *models.ReportSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = *s
	return nil
}

func (m *memReports) GetSchedule(_ context.Context, id uuid.UUID) (*models.ReportSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, apperr.NotFound("schedule", id)
	}
	return &s, nil
}

func (m *memReports) ListSchedules(_ context.Context, ownerID string) ([]*models.ReportSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ReportSchedule
	for _, s := range m.schedules {
		if s.OwnerID == ownerID {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

func (m *memReports) ListActiveSchedules(_ context.Context) ([]*models.ReportSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ReportSchedule
	for _, s := range m.schedules {
		if s.Active {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

func (m *memReports) UpdateSchedule(_ context.Context, s *models.ReportSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[s.ID]; !ok {
		return apperr.NotFound("schedule", s.ID)
	}
	m.schedules[s.ID] = *s
	return nil
}

func (m *memReports) DeleteSchedule(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

func (m *memReports) RecordScheduleSuccess(_ context.Context, id uuid.UUID, ranAt time.Time, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.schedules[id]
	s.LastRunAt = &ranAt
	s.ExecutionCount++
	s.NextRunAt = next
	s.LastError = nil
	m.schedules[id] = s
	return nil
}

func (m *memReports) RecordScheduleFailure(_ context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.schedules[id]
	s.FailureCount++
	s.LastError = &message
	m.schedules[id] = s
	return nil
}

func (m *memReports) CreateExecution(_ context.Context, e *models.ReportExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[e.ID] = *e
	return nil
}

func (m *memReports) UpdateExecution(_ context.Context, e *models.ReportExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[e.ID] = *e
	return nil
}

func (m *memReports) GetExecution(_ context.Context, id uuid.UUID) (*models.ReportExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, apperr.NotFound("execution", id)
	}
	return &e, nil
}

func (m *memReports) ListExpiredExports(_ context.Context, now time.Time) ([]*models.ReportExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ReportExecution
	for _, e := range m.executions {
		if e.ExportPath != nil && e.ExportExpiresAt != nil && e.ExportExpiresAt.Before(now) {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (m *memReports) schedule(id uuid.UUID) models.ReportSchedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[id]
}

func (m *memReports) execution(id uuid.UUID) models.ReportExecution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions[id]
}

// migrations

type memMigrations struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Migration
}

func newMemMigrations(ms ...*models.Migration) *memMigrations {
	m := &memMigrations{rows: make(map[uuid.UUID]models.Migration)}
	for _, x := range ms {
		m.rows[x.ID] = *x
	}
	return m
}

func (m *memMigrations) Create(_ context.Context, x *models.Migration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.MigrationName == x.MigrationName {
			return apperr.Conflict("migration %s exists", x.MigrationName)
		}
	}
	m.rows[x.ID] = *x
	return nil
}

func (m *memMigrations) Get(_ context.Context, id uuid.UUID) (*models.Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("migration", id)
	}
	return &r, nil
}

func (m *memMigrations) GetByName(_ context.Context, name string) (*models.Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.MigrationName == name {
			return &r, nil
		}
	}
	return nil, apperr.NotFound("migration", name)
}

func (m *memMigrations) sorted(filter func(models.Migration) bool) []*models.Migration {
	var out []*models.Migration
	for _, r := range m.rows {
		if filter(r) {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExecutionOrder != out[j].ExecutionOrder {
			return out[i].ExecutionOrder < out[j].ExecutionOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *memMigrations) List(_ context.Context) ([]*models.Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(models.Migration) bool { return true }), nil
}

func (m *memMigrations) ListPending(_ context.Context) ([]*models.Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(r models.Migration) bool { return r.Status == models.MigrationPending }), nil
}

func (m *memMigrations) Save(_ context.Context, x *models.Migration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[x.ID] = *x
	return nil
}

func (m *memMigrations) SetOrders(_ context.Context, orders map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if o, ok := orders[r.MigrationName]; ok {
			r.ExecutionOrder = o
			m.rows[id] = r
		}
	}
	return nil
}

func (m *memMigrations) CompareAndSetStatus(_ context.Context, id uuid.UUID, from []models.MigrationStatus, next models.MigrationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return false, apperr.NotFound("migration", id)
	}
	for _, f := range from {
		if r.Status == f {
			r.Status = next
			m.rows[id] = r
			return true, nil
		}
	}
	return false, nil
}

func (m *memMigrations) status(id uuid.UUID) models.MigrationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

// scriptExec fails every script listed in failures
type scriptExec struct {
	mu       sync.Mutex
	failures map[string]error
	ran      []string
}

func (e *scriptExec) ExecScript(_ context.Context, sql string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ran = append(e.ran, sql)
	return e.failures[sql]
}

// tasks

type memTasks struct {
	mu      sync.Mutex
	tasks   []models.Task
	flagged map[uuid.UUID]bool
}

func (m *memTasks) ListProjectTasks(_ context.Context, projectID uuid.UUID) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		if t.ProjectID != nil && *t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) ListTasksForUsers(_ context.Context, userIDs []string, _, _ time.Time) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		for _, a := range t.Assignees {
			if contains(userIDs, a.UserID) {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (m *memTasks) SetCriticalPath(_ context.Context, flags map[uuid.UUID]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagged = flags
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// documents

type memDocs struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]models.Document
	versions []models.DocumentVersion
}

func newMemDocs(docs ...*models.Document) *memDocs {
	m := &memDocs{docs: make(map[uuid.UUID]models.Document)}
	for _, d := range docs {
		m.docs[d.ID] = *d
	}
	return m
}

func (m *memDocs) GetDocument(_ context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.NotFound("document", id)
	}
	return &d, nil
}

func (m *memDocs) UpdateMetadata(_ context.Context, id uuid.UUID, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docs[id]
	d.Metadata = metadata
	m.docs[id] = d
	return nil
}

func (m *memDocs) AddVersion(_ context.Context, doc *models.Document, v *models.DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.versions {
		if m.versions[i].DocumentID == doc.ID {
			m.versions[i].IsCurrentVersion = false
		}
	}
	m.versions = append(m.versions, *v)
	d := m.docs[doc.ID]
	d.Version = v.VersionNumber
	d.Content = v.Content
	d.Title = v.Title
	d.Filename = v.Filename
	d.MimeType = v.MimeType
	d.Size = v.Size
	m.docs[doc.ID] = d
	return nil
}

func (m *memDocs) ListVersions(_ context.Context, docID uuid.UUID) ([]*models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DocumentVersion
	for _, v := range m.versions {
		if v.DocumentID == docID {
			v := v
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (m *memDocs) GetVersion(_ context.Context, docID uuid.UUID, number int) (*models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.DocumentID == docID && v.VersionNumber == number {
			return &v, nil
		}
	}
	return nil, apperr.NotFound("document version", number)
}

func (m *memDocs) DeleteVersion(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range m.versions {
		if v.ID == id {
			m.versions = append(m.versions[:i], m.versions[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("document version", id)
}

// outbound collaborators

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []clients.Notification
	emails []clients.Email
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, n clients.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) SendEmail(_ context.Context, e clients.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, e)
	return r.err
}

// Send lets the recorder stand in for NotificationSender
func (r *recordingNotifier) Send(ctx context.Context, n clients.Notification) {
	_ = r.Notify(ctx, n)
}

func (r *recordingNotifier) notifications() []clients.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]clients.Notification(nil), r.sent...)
}

type event struct {
	Channel string
	Event   string
	Data    any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event
}

func (p *recordingPublisher) Publish(_ context.Context, channel, name string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event{Channel: channel, Event: name, Data: data})
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

type fakeCI struct {
	mu        sync.Mutex
	triggers  []clients.PipelineTrigger
	pipelines []string
}

func (c *fakeCI) TriggerPipeline(_ context.Context, pipelineID string, t clients.PipelineTrigger) (*clients.PipelineRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.triggers = append(c.triggers, t)
	c.pipelines = append(c.pipelines, pipelineID)
	return &clients.PipelineRun{}, nil
}

type fakeMerger struct {
	check  *gitrepo.MergeResult
	err    error
	sha    string
	merged int
}

func (m *fakeMerger) MergeCheck(context.Context, *models.Repository, string, string) (*gitrepo.MergeResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.check, nil
}

func (m *fakeMerger) Merge(context.Context, *models.Repository, string, string, string, gitrepo.Signature) (string, error) {
	m.merged++
	return m.sha, nil
}

type fakeThrottle struct {
	allowed bool
	err     error
}

func (f fakeThrottle) Allow(context.Context, ratelimit.Scope, string) (*ratelimit.RateLimitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ratelimit.RateLimitResult{Allowed: f.allowed, RetryAfterSeconds: 30}, nil
}
