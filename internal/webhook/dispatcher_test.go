package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmate/conversations/internal/audit"
	"github.com/realmate/conversations/internal/models"
	"github.com/realmate/conversations/internal/store"
	"github.com/realmate/conversations/internal/webhook"
)

const scenarioConversationID = "11111111-1111-1111-1111-111111111111"

type fixture struct {
	store      *store.Memory
	sink       *audit.MemorySink
	dispatcher *webhook.Dispatcher
}

func newFixture(t *testing.T, opts ...webhook.Option) *fixture {
	t.Helper()
	mem := store.NewMemory()
	sink := audit.NewMemorySink()
	return &fixture{
		store:      mem,
		sink:       sink,
		dispatcher: webhook.NewDispatcher(mem, audit.NewLogger(sink, nil), opts...),
	}
}

func (f *fixture) logs(t *testing.T) []models.WebhookLog {
	t.Helper()
	entries, err := f.sink.List(context.Background(), audit.Filter{Limit: 1000})
	require.NoError(t, err)
	return entries
}

func (f *fixture) messageCount(t *testing.T, conversationID string) int {
	t.Helper()
	conv, err := f.store.GetConversation(context.Background(), conversationID)
	require.NoError(t, err)
	return len(conv.Messages)
}

func newConversation(id string) webhook.Envelope {
	return webhook.Envelope{Type: "NEW_CONVERSATION", Data: map[string]any{"id": id}}
}

func closeConversation(id string) webhook.Envelope {
	return webhook.Envelope{Type: "CLOSE_CONVERSATION", Data: map[string]any{"id": id}}
}

func newMessage(id, conversationID, direction, content string, ts any) webhook.Envelope {
	return webhook.Envelope{
		Type: "NEW_MESSAGE",
		Data: map[string]any{
			"id":              id,
			"conversation_id": conversationID,
			"direction":       direction,
			"content":         content,
		},
		Timestamp: ts,
	}
}

func TestNewConversationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.dispatcher.ProcessJSON(ctx, []byte(`{"type":"NEW_CONVERSATION","data":{"id":"11111111-1111-1111-1111-111111111111"}}`))
	assert.True(t, out.Success)
	assert.Equal(t, http.StatusCreated, out.StatusCode)
	assert.Equal(t, "conversation processed successfully", out.Message)

	conv, err := f.store.Get(ctx, scenarioConversationID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationOpen, conv.Status)

	again := f.dispatcher.ProcessJSON(ctx, []byte(`{"type":"NEW_CONVERSATION","data":{"id":"11111111-1111-1111-1111-111111111111"}}`))
	assert.Equal(t, out.Success, again.Success)
	assert.Equal(t, out.StatusCode, again.StatusCode)
	assert.Equal(t, out.Message, again.Message)

	_, total, err := f.store.ListConversations(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	logs := f.logs(t)
	require.Len(t, logs, 2)
	assert.Equal(t, "conversation "+scenarioConversationID+" already exists", logs[0].Message)
	assert.Equal(t, "conversation "+scenarioConversationID+" created", logs[1].Message)
}

func TestNewConversationReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.NewString()

	const replays = 7
	for i := 0; i < replays; i++ {
		out := f.dispatcher.Process(ctx, newConversation(id))
		require.True(t, out.Success)
		require.Equal(t, http.StatusCreated, out.StatusCode)
	}

	_, total, err := f.store.ListConversations(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	logs := f.logs(t)
	assert.Len(t, logs, replays)
	for _, entry := range logs {
		assert.Equal(t, models.LogSuccess, entry.Status)
		require.NotNil(t, entry.ConversationID)
		assert.Equal(t, id, *entry.ConversationID)
	}
}

func TestNewConversationConcurrentReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := f.dispatcher.Process(ctx, newConversation(id))
			assert.True(t, out.Success)
		}()
	}
	wg.Wait()

	_, total, err := f.store.ListConversations(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, 20, f.sink.Len())
}

func TestNewConversationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := f.dispatcher.Process(ctx, webhook.Envelope{Type: "NEW_CONVERSATION", Data: map[string]any{}})
	assert.False(t, missing.Success)
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)
	assert.Equal(t, webhook.KindValidation, missing.Kind)
	assert.Equal(t, "missing required field: id", missing.Description)

	invalid := f.dispatcher.Process(ctx, newConversation("not-a-uuid"))
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
	assert.Equal(t, webhook.KindInvalidValue, invalid.Kind)

	logs := f.logs(t)
	require.Len(t, logs, 2)
	require.NotNil(t, logs[0].ConversationID, "raw id is still extracted for the audit entry")
	assert.Equal(t, "not-a-uuid", *logs[0].ConversationID)
	assert.Nil(t, logs[1].ConversationID)
}

func TestCloseConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.NewString()

	require.True(t, f.dispatcher.Process(ctx, newConversation(id)).Success)

	out := f.dispatcher.Process(ctx, closeConversation(id))
	assert.True(t, out.Success)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, "conversation closed successfully", out.Message)

	first, err := f.store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, first.Status)

	time.Sleep(5 * time.Millisecond)
	replay := f.dispatcher.Process(ctx, closeConversation(id))
	assert.Equal(t, out, replay)

	second, err := f.store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, second, "a replayed close must not change the conversation")

	logs := f.logs(t)
	require.Len(t, logs, 3)
	assert.Equal(t, "conversation "+id+" was already closed", logs[0].Message)
	assert.Equal(t, "conversation "+id+" closed", logs[1].Message)
}

func TestCloseConversationNotFound(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	out := f.dispatcher.Process(context.Background(), closeConversation(id))
	assert.False(t, out.Success)
	assert.Equal(t, http.StatusNotFound, out.StatusCode)
	assert.Equal(t, webhook.KindNotFound, out.Kind)
	assert.Equal(t, "conversation with id "+id+" not found", out.Description)

	logs := f.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogError, logs[0].Status)
	assert.Equal(t, "CLOSE_CONVERSATION", logs[0].Event)
}

func TestCloseConversationMissingID(t *testing.T) {
	f := newFixture(t)
	out := f.dispatcher.Process(context.Background(), webhook.Envelope{Type: "CLOSE_CONVERSATION"})
	assert.Equal(t, http.StatusBadRequest, out.StatusCode)
	assert.Equal(t, webhook.KindValidation, out.Kind)
}

func TestNewMessageRoundTripsTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := uuid.NewString()
	msgID := uuid.NewString()
	require.True(t, f.dispatcher.Process(ctx, newConversation(convID)).Success)

	raw := "2024-03-10T14:25:36.123456+02:00"
	want, err := time.Parse(time.RFC3339Nano, raw)
	require.NoError(t, err)

	out := f.dispatcher.Process(ctx, newMessage(msgID, convID, "RECEIVED", "olá", raw))
	require.True(t, out.Success, out.Description)
	assert.Equal(t, http.StatusCreated, out.StatusCode)
	assert.Equal(t, "message created successfully", out.Message)
	assert.Equal(t, convID, out.ConversationID)

	conv, err := f.store.GetConversation(ctx, convID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	stored := conv.Messages[0]
	assert.Equal(t, msgID, stored.ID)
	assert.Equal(t, models.DirectionReceived, stored.Direction)
	assert.Equal(t, "olá", stored.Content)
	assert.True(t, stored.Timestamp.Equal(want))

	logs := f.logs(t)
	assert.Equal(t, "message "+msgID+" created in conversation "+convID, logs[0].Message)
}

func TestNewMessageUnknownConversationScenario(t *testing.T) {
	f := newFixture(t)
	unknown := uuid.NewString()

	body := `{"type":"NEW_MESSAGE","data":{"id":"m1","conversation_id":"` + unknown +
		`","direction":"SENT","content":"hi"},"timestamp":"2024-01-01T00:00:00Z"}`
	out := f.dispatcher.ProcessJSON(context.Background(), []byte(body))
	assert.False(t, out.Success)
	assert.Equal(t, http.StatusNotFound, out.StatusCode)

	_, total, err := f.store.ListConversations(context.Background(), store.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)

	logs := f.logs(t)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].ConversationID)
	assert.Equal(t, unknown, *logs[0].ConversationID)
}

func TestNewMessageIntoClosedConversationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.dispatcher.Process(ctx, newConversation(scenarioConversationID)).Success)
	require.True(t, f.dispatcher.Process(ctx, newMessage(uuid.NewString(), scenarioConversationID, "SENT", "before", "2024-01-01T00:00:00Z")).Success)
	require.True(t, f.dispatcher.Process(ctx, closeConversation(scenarioConversationID)).Success)
	before := f.messageCount(t, scenarioConversationID)

	out := f.dispatcher.Process(ctx, newMessage(uuid.NewString(), scenarioConversationID, "SENT", "after", "2024-01-01T00:01:00Z"))
	assert.False(t, out.Success)
	assert.Equal(t, http.StatusBadRequest, out.StatusCode)
	assert.Equal(t, webhook.KindBusinessRule, out.Kind)
	assert.Equal(t, "cannot add message to closed conversation "+scenarioConversationID, out.Description)
	assert.Equal(t, before, f.messageCount(t, scenarioConversationID))
}

func TestNewMessageMissingFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := uuid.NewString()
	require.True(t, f.dispatcher.Process(ctx, newConversation(convID)).Success)

	full := newMessage(uuid.NewString(), convID, "SENT", "hi", "2024-01-01T00:00:00Z")
	for _, field := range []string{"conversation_id", "id", "direction", "content"} {
		t.Run(field, func(t *testing.T) {
			env := full
			env.Data = map[string]any{}
			for k, v := range full.Data {
				if k != field {
					env.Data[k] = v
				}
			}
			out := f.dispatcher.Process(ctx, env)
			assert.Equal(t, http.StatusBadRequest, out.StatusCode)
			assert.Equal(t, webhook.KindValidation, out.Kind)
			assert.Equal(t, "missing required field: "+field, out.Description)
		})
	}

	t.Run("timestamp", func(t *testing.T) {
		env := full
		env.Timestamp = nil
		out := f.dispatcher.Process(ctx, env)
		assert.Equal(t, webhook.KindValidation, out.Kind)
		assert.Equal(t, "missing required field: timestamp", out.Description)
	})

	for name, ts := range map[string]any{"empty timestamp": "", "blank timestamp": "   "} {
		t.Run(name, func(t *testing.T) {
			env := full
			env.Timestamp = ts
			out := f.dispatcher.Process(ctx, env)
			assert.Equal(t, webhook.KindValidation, out.Kind)
			assert.Equal(t, "missing required field: timestamp", out.Description)
		})
	}

	t.Run("blank content", func(t *testing.T) {
		env := newMessage(uuid.NewString(), convID, "SENT", "   ", "2024-01-01T00:00:00Z")
		out := f.dispatcher.Process(ctx, env)
		assert.Equal(t, "missing required field: content", out.Description)
	})

	assert.Zero(t, f.messageCount(t, convID))
}

func TestNewMessageInvalidValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := uuid.NewString()
	require.True(t, f.dispatcher.Process(ctx, newConversation(convID)).Success)

	cases := map[string]webhook.Envelope{
		"timestamp format":  newMessage(uuid.NewString(), convID, "SENT", "hi", "yesterday"),
		"timestamp type":    newMessage(uuid.NewString(), convID, "SENT", "hi", 1704067200.0),
		"direction":         newMessage(uuid.NewString(), convID, "SIDEWAYS", "hi", "2024-01-01T00:00:00Z"),
		"message id":        newMessage("m1", convID, "SENT", "hi", "2024-01-01T00:00:00Z"),
		"conversation id":   newMessage(uuid.NewString(), "nope", "SENT", "hi", "2024-01-01T00:00:00Z"),
		"non-string fields": {Type: "NEW_MESSAGE", Data: map[string]any{"id": 12, "conversation_id": convID, "direction": "SENT", "content": "x"}, Timestamp: "2024-01-01T00:00:00Z"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			out := f.dispatcher.Process(ctx, env)
			assert.False(t, out.Success)
			assert.Equal(t, http.StatusBadRequest, out.StatusCode)
			assert.Equal(t, webhook.KindInvalidValue, out.Kind)
			assert.Contains(t, out.Description, "invalid value: ")
		})
	}
	assert.Zero(t, f.messageCount(t, convID))
}

func TestNewMessageDuplicateIDIsIntegrityFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := uuid.NewString()
	msgID := uuid.NewString()
	require.True(t, f.dispatcher.Process(ctx, newConversation(convID)).Success)

	env := newMessage(msgID, convID, "SENT", "hi", "2024-01-01T00:00:00Z")
	require.True(t, f.dispatcher.Process(ctx, env).Success)

	out := f.dispatcher.Process(ctx, env)
	assert.False(t, out.Success)
	assert.Equal(t, http.StatusBadRequest, out.StatusCode)
	assert.Equal(t, webhook.KindIntegrity, out.Kind)
	assert.Equal(t, "duplicate id detected: the id already exists", out.Description)
	assert.Equal(t, 1, f.messageCount(t, convID))

	logs := f.logs(t)
	assert.Contains(t, logs[0].Message, "integrity error: ")
}

func TestMissingEventType(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{"data":{"id":"x"}}`, `{"type":"","data":{}}`, `null`} {
		out := f.dispatcher.ProcessJSON(context.Background(), []byte(body))
		assert.False(t, out.Success)
		assert.Equal(t, http.StatusBadRequest, out.StatusCode)
		assert.Equal(t, "event type is required", out.Description)
	}

	logs := f.logs(t)
	require.Len(t, logs, 3)
	for _, entry := range logs {
		assert.Equal(t, models.UnknownEvent, entry.Event)
		assert.Equal(t, models.LogError, entry.Status)
	}
}

func TestUnknownEventTypeScenario(t *testing.T) {
	f := newFixture(t)

	out := f.dispatcher.ProcessJSON(context.Background(), []byte(`{"type":"BOGUS"}`))
	assert.False(t, out.Success)
	assert.Equal(t, http.StatusBadRequest, out.StatusCode)
	assert.Equal(t, "unknown event type: BOGUS", out.Description)

	logs := f.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, "BOGUS", logs[0].Event)
	assert.Equal(t, models.LogError, logs[0].Status)
}

func TestMalformedBodies(t *testing.T) {
	f := newFixture(t)

	notJSON := f.dispatcher.ProcessJSON(context.Background(), []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, notJSON.StatusCode)
	assert.Equal(t, webhook.KindInvalidValue, notJSON.Kind)

	badData := f.dispatcher.ProcessJSON(context.Background(), []byte(`{"type":"NEW_CONVERSATION","data":[1,2]}`))
	assert.Equal(t, http.StatusBadRequest, badData.StatusCode)
	assert.Equal(t, "invalid value: data must be a JSON object", badData.Description)

	logs := f.logs(t)
	require.Len(t, logs, 2)
	assert.Equal(t, "NEW_CONVERSATION", logs[0].Event)
	assert.Equal(t, models.UnknownEvent, logs[1].Event)
}

func TestOversizedValuesAreAuditedIntact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	longType := "NOT_A_REAL_EVENT_" + strings.Repeat("Z", 120)
	out := f.dispatcher.Process(ctx, webhook.Envelope{Type: longType})
	assert.Equal(t, http.StatusBadRequest, out.StatusCode)

	longConversation := strings.Repeat("c", 300)
	out = f.dispatcher.Process(ctx, newMessage(uuid.NewString(), longConversation, "SENT", "hi", "2024-01-01T00:00:00Z"))
	assert.Equal(t, webhook.KindInvalidValue, out.Kind)

	logs := f.logs(t)
	require.Len(t, logs, 2)
	require.NotNil(t, logs[0].ConversationID)
	assert.Equal(t, longConversation, *logs[0].ConversationID)
	assert.Equal(t, longType, logs[1].Event)
}

type panickingHandler struct{}

func (panickingHandler) Apply(ctx context.Context, data map[string]any, timestamp any) (webhook.Result, error) {
	panic("boom")
}

type failingHandler struct{ err error }

func (h failingHandler) Apply(ctx context.Context, data map[string]any, timestamp any) (webhook.Result, error) {
	return webhook.Result{}, h.err
}

func TestUnexpectedFailuresAreClientErrors(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, webhook.WithHandler(webhook.EventNewConversation, panickingHandler{}))
	out := f.dispatcher.Process(ctx, newConversation(scenarioConversationID))
	assert.False(t, out.Success)
	assert.Equal(t, http.StatusBadRequest, out.StatusCode)
	assert.Equal(t, webhook.KindUnexpected, out.Kind)

	f = newFixture(t, webhook.WithHandler(webhook.EventCloseConversation, failingHandler{err: errors.New("connection reset")}))
	out = f.dispatcher.Process(ctx, closeConversation(scenarioConversationID))
	assert.Equal(t, http.StatusBadRequest, out.StatusCode)
	assert.Equal(t, "an error occurred while processing the request: connection reset", out.Description)

	logs := f.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, "unexpected error: connection reset", logs[0].Message)
	require.NotNil(t, logs[0].ConversationID)
	assert.Equal(t, scenarioConversationID, *logs[0].ConversationID)
}

type brokenStore struct {
	store.Store
	err error
}

func (b brokenStore) CreateIfAbsent(ctx context.Context, id string) (*models.Conversation, bool, error) {
	return nil, false, b.err
}

func TestStoreErrorsMapToKinds(t *testing.T) {
	cases := map[error]webhook.Kind{
		store.ErrIntegrity:           webhook.KindIntegrity,
		store.ErrDuplicateMessage:    webhook.KindIntegrity,
		store.ErrNotFound:            webhook.KindNotFound,
		errors.New("pool exhausted"): webhook.KindUnexpected,
	}
	for storeErr, kind := range cases {
		sink := audit.NewMemorySink()
		d := webhook.NewDispatcher(brokenStore{err: storeErr}, audit.NewLogger(sink, nil))
		out := d.Process(context.Background(), newConversation(uuid.NewString()))
		assert.Equal(t, kind, out.Kind, storeErr.Error())
		assert.Less(t, out.StatusCode, http.StatusInternalServerError)
		assert.Equal(t, 1, sink.Len())
	}
}

type auditFailure struct{}

func (auditFailure) Append(ctx context.Context, entry *models.WebhookLog) error {
	return errors.New("audit store offline")
}

func (auditFailure) List(ctx context.Context, filter audit.Filter) ([]models.WebhookLog, error) {
	return nil, nil
}

func TestAuditFailureDoesNotChangeOutcome(t *testing.T) {
	mem := store.NewMemory()
	d := webhook.NewDispatcher(mem, audit.NewLogger(auditFailure{}, nil))

	out := d.Process(context.Background(), newConversation(scenarioConversationID))
	assert.True(t, out.Success)
	assert.Equal(t, http.StatusCreated, out.StatusCode)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []webhook.Outcome
}

func (r *recordingObserver) ObserveOutcome(ctx context.Context, outcome webhook.Outcome, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestObserversSeeEveryOutcome(t *testing.T) {
	obs := &recordingObserver{}
	f := newFixture(t, webhook.WithObserver(obs))
	ctx := context.Background()

	f.dispatcher.Process(ctx, newConversation(scenarioConversationID))
	f.dispatcher.Process(ctx, webhook.Envelope{Type: "BOGUS"})

	require.Len(t, obs.outcomes, 2)
	assert.True(t, obs.outcomes[0].Success)
	assert.Equal(t, "NEW_CONVERSATION", obs.outcomes[0].Event)
	assert.Equal(t, scenarioConversationID, obs.outcomes[0].ConversationID)
	assert.False(t, obs.outcomes[1].Success)
}
