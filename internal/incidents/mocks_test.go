package incidents

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bissquit/incident-bot/internal/chat"
	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/bissquit/incident-bot/internal/reminders"
)

// mockRepository is an in-memory Repository.
type mockRepository struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
	audit     []*domain.AuditEntry
	createErr error
	updateErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{incidents: make(map[string]*domain.Incident)}
}

func clone(inc *domain.Incident) *domain.Incident {
	c := *inc
	c.Roles = maps.Clone(inc.Roles)
	c.ExternalRefs = slices.Clone(inc.ExternalRefs)
	return &c
}

func (m *mockRepository) Create(_ context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.incidents[inc.ID]; ok {
		return ErrIncidentExists
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now()
	}
	inc.UpdatedAt = inc.CreatedAt
	m.incidents[inc.ID] = clone(inc)
	return nil
}

func (m *mockRepository) Get(_ context.Context, id string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	return clone(inc), nil
}

func (m *mockRepository) GetByChannel(_ context.Context, channelID string) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inc := range m.incidents {
		if inc.ChannelID == channelID {
			return clone(inc), nil
		}
	}
	return nil, ErrIncidentNotFound
}

func (m *mockRepository) ListOpen(_ context.Context) ([]*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Incident
	for _, inc := range m.incidents {
		if inc.Status != "resolved" {
			out = append(out, clone(inc))
		}
	}
	return out, nil
}

func (m *mockRepository) List(_ context.Context, filter ListFilter) ([]*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Incident
	for _, inc := range m.incidents {
		if filter.Status != nil && inc.Status != *filter.Status {
			continue
		}
		out = append(out, clone(inc))
	}
	return out, nil
}

func (m *mockRepository) UpdateField(_ context.Context, id string, field Field, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	inc, ok := m.incidents[id]
	if !ok {
		return ErrIncidentNotFound
	}

	switch field {
	case FieldStatus:
		inc.Status = value.(domain.Status)
	case FieldSeverity:
		inc.Severity = value.(domain.Severity)
	case FieldLastUpdateSent:
		t := value.(time.Time)
		inc.LastUpdateSent = &t
	case FieldBoilerplateMessage:
		ref := value.(domain.MessageRef)
		inc.BoilerplateMessage = &ref
	case FieldDigestMessage:
		ref := value.(domain.MessageRef)
		inc.DigestMessage = &ref
	case FieldRCALink:
		inc.RCALink = value.(string)
	default:
		return ErrInvalidFieldValue
	}
	inc.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepository) AssignRole(_ context.Context, id string, role domain.RoleName, assignee string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return ErrIncidentNotFound
	}
	if inc.Roles == nil {
		inc.Roles = make(map[domain.RoleName]string)
	}
	inc.Roles[role] = assignee
	return nil
}

func (m *mockRepository) AddExternalRef(_ context.Context, id string, ref domain.ExternalRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return ErrIncidentNotFound
	}
	inc.ExternalRefs = append(inc.ExternalRefs, ref)
	return nil
}

func (m *mockRepository) AppendAudit(_ context.Context, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = int64(len(m.audit) + 1)
	entry.CreatedAt = time.Now()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *mockRepository) ListAudit(_ context.Context, incidentID string) ([]*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AuditEntry
	for _, e := range m.audit {
		if e.IncidentID == incidentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockRepository) events(incidentID string) []string {
	entries, _ := m.ListAudit(context.Background(), incidentID)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Event)
	}
	return out
}

// sentMessage is a message captured by mockNotifier.
type sentMessage struct {
	Channel string
	Msg     chat.Message
}

// mockNotifier records every call.
type mockNotifier struct {
	mu        sync.Mutex
	seq       int
	channels  []string
	posted    []sentMessage
	replies   []sentMessage
	updated   []domain.MessageRef
	pinned    []domain.MessageRef
	invited   []string
	direct    []sentMessage
	members   map[string]bool
	createErr error
	postErr   error
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{members: make(map[string]bool)}
}

func (m *mockNotifier) CreateChannel(_ context.Context, name string) (chat.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return chat.Channel{}, m.createErr
	}
	m.channels = append(m.channels, name)
	return chat.Channel{ID: fmt.Sprintf("C%03d", len(m.channels)), Name: name}, nil
}

func (m *mockNotifier) PostMessage(_ context.Context, channelID string, msg chat.Message) (domain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return domain.MessageRef{}, m.postErr
	}
	m.seq++
	m.posted = append(m.posted, sentMessage{Channel: channelID, Msg: msg})
	return domain.MessageRef{ChannelID: channelID, Timestamp: fmt.Sprintf("1700000000.%06d", m.seq)}, nil
}

func (m *mockNotifier) PostThreadReply(_ context.Context, parent domain.MessageRef, msg chat.Message) (domain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.replies = append(m.replies, sentMessage{Channel: parent.ChannelID, Msg: msg})
	return domain.MessageRef{ChannelID: parent.ChannelID, Timestamp: fmt.Sprintf("1700000000.%06d", m.seq)}, nil
}

func (m *mockNotifier) UpdateMessage(_ context.Context, ref domain.MessageRef, _ chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, ref)
	return nil
}

func (m *mockNotifier) DeleteMessage(_ context.Context, _ domain.MessageRef) error {
	return nil
}

func (m *mockNotifier) PinMessage(_ context.Context, ref domain.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned = append(m.pinned, ref)
	return nil
}

func (m *mockNotifier) InviteUser(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invited = append(m.invited, userID)
	m.members[channelID+"/"+userID] = true
	return nil
}

func (m *mockNotifier) IsMember(_ context.Context, channelID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[channelID+"/"+userID], nil
}

func (m *mockNotifier) SendDirect(_ context.Context, userID string, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direct = append(m.direct, sentMessage{Channel: userID, Msg: msg})
	return nil
}

func (m *mockNotifier) postedTexts(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.posted {
		if p.Channel == channelID {
			out = append(out, p.Msg.Text)
		}
	}
	return out
}

// mockScheduler keeps jobs in a map.
type mockScheduler struct {
	mu          sync.Mutex
	jobs        map[string]domain.ReminderJob
	scheduleErr error
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{jobs: make(map[string]domain.ReminderJob)}
}

func (m *mockScheduler) Schedule(_ context.Context, id string, interval time.Duration, payload domain.ReminderPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduleErr != nil {
		return m.scheduleErr
	}
	m.jobs[id] = domain.ReminderJob{ID: id, IncidentID: payload.IncidentID, ChannelID: payload.ChannelID, Interval: interval}
	return nil
}

func (m *mockScheduler) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return reminders.ErrJobNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *mockScheduler) List(_ context.Context) ([]domain.ReminderJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Collect(maps.Values(m.jobs)), nil
}

func (m *mockScheduler) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[id]
	return ok
}

func (m *mockScheduler) job(id string) (domain.ReminderJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// mockEnqueuer records enqueued tasks.
type mockEnqueuer struct {
	mu    sync.Mutex
	tasks []any
	err   error
}

func (m *mockEnqueuer) Enqueue(_ context.Context, kind string, payload any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.tasks = append(m.tasks, payload)
	return fmt.Sprintf("%s-%d", kind, len(m.tasks)), nil
}

// testEnv bundles a service with its mocks.
type testEnv struct {
	repo      *mockRepository
	notifier  *mockNotifier
	scheduler *mockScheduler
	tasks     *mockEnqueuer
	service   *Service
	now       time.Time
}

func newTestEnv(adapters Adapters) *testEnv {
	env := &testEnv{
		repo:      newMockRepository(),
		notifier:  newMockNotifier(),
		scheduler: newMockScheduler(),
		tasks:     &mockEnqueuer{},
		now:       time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC),
	}
	cfg := DefaultConfig()
	cfg.DigestChannel = "CDIGEST"
	env.service = NewService(env.repo, env.notifier, env.scheduler, env.tasks, adapters, cfg)
	env.service.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) create(t interface{ Fatalf(string, ...any) }, description string, severity domain.Severity) *domain.Incident {
	input := CreateIncidentInput{Description: description, RequestedBy: "U1"}
	if severity != "" {
		input.Severity = &severity
	}
	inc, err := e.service.CreateIncident(context.Background(), input)
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	return inc
}
