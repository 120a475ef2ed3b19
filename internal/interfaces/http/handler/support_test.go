package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	supportapp "github.com/shopfront/backend/internal/application/support"
	"github.com/shopfront/backend/internal/domain/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupportRouter(app *testApp, userID uuid.UUID, role identity.Role) *gin.Engine {
	h := NewSupportHandler(app.chat, time.Hour, nil)
	r := gin.New()
	r.Use(as(userID, role))
	conv := r.Group("/support/conversations")
	conv.POST("", h.StartConversation)
	conv.GET("", h.ListConversations)
	conv.GET("/:id/messages", h.ListMessages)
	conv.POST("/:id/messages", h.SendMessage)
	conv.POST("/:id/read", h.MarkRead)
	conv.POST("/:id/close", h.CloseConversation)
	conv.GET("/:id/stream", h.Stream)
	return r
}

func TestSupportHandler_Conversation(t *testing.T) {
	app := newTestApp(t)
	customerID := app.signup(t, "help@example.com")
	customer := newSupportRouter(app, customerID, identity.RoleCustomer)
	staff := newSupportRouter(app, uuid.New(), identity.RoleAdmin)
	stranger := newSupportRouter(app, app.signup(t, "nosy@example.com"), identity.RoleCustomer)

	resp := doRequest(t, customer, http.MethodPost, "/support/conversations", map[string]string{
		"subject": "Where is my parcel?",
		"message": "Order SF-1 has not arrived",
	})
	require.Equal(t, http.StatusCreated, resp.Code, string(resp.Body))
	var conv supportapp.ConversationResponse
	resp.data(t, &conv)
	assert.Equal(t, "OPEN", conv.Status)
	assert.Equal(t, 1, conv.UnreadCountStaff)

	resp = doRequest(t, customer, http.MethodPost, "/support/conversations", map[string]string{})
	require.Equal(t, http.StatusOK, resp.Code, "an open conversation is reused")
	var again supportapp.ConversationResponse
	resp.data(t, &again)
	assert.Equal(t, conv.ID, again.ID)

	resp = doRequest(t, staff, http.MethodPost, "/support/conversations", map[string]string{"subject": "hi"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "CUSTOMER_ONLY", resp.errorCode())

	base := "/support/conversations/" + conv.ID.String()

	resp = doRequest(t, staff, http.MethodPost, base+"/messages", map[string]string{"body": "Let me check that for you"})
	require.Equal(t, http.StatusCreated, resp.Code, string(resp.Body))
	var reply supportapp.MessageResponse
	resp.data(t, &reply)
	assert.Equal(t, "STAFF", reply.SenderRole)

	resp = doRequest(t, customer, http.MethodGet, base+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(2), resp.Envelop.Meta.Total)

	resp = doRequest(t, customer, http.MethodPost, base+"/read", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	resp.data(t, &conv)
	assert.Zero(t, conv.UnreadCountCustomer)

	resp = doRequest(t, stranger, http.MethodGet, base+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doRequest(t, staff, http.MethodGet, "/support/conversations", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(1), resp.Envelop.Meta.Total)

	resp = doRequest(t, staff, http.MethodPost, base+"/close", nil)
	require.Equal(t, http.StatusOK, resp.Code, string(resp.Body))

	resp = doRequest(t, customer, http.MethodPost, base+"/messages", map[string]string{"body": "hello?"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "CONVERSATION_CLOSED", resp.errorCode())
}

func TestSupportHandler_Stream(t *testing.T) {
	app := newTestApp(t)
	customerID := app.signup(t, "live@example.com")
	conv, _, err := app.chat.StartConversation(context.Background(),
		supportapp.Actor{UserID: customerID}, supportapp.StartConversationRequest{Subject: "Sizing"})
	require.NoError(t, err)

	srv := httptest.NewServer(newSupportRouter(app, customerID, identity.RoleCustomer))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/support/conversations/"+conv.ID.String()+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, _ := readEvent(t, reader)
	require.Equal(t, "connected", event)

	_, err = app.chat.SendMessage(context.Background(), supportapp.Actor{UserID: uuid.New(), IsStaff: true},
		conv.ID, supportapp.SendMessageRequest{Body: "Size M runs large"})
	require.NoError(t, err)

	event, data := readEvent(t, reader)
	require.Equal(t, "message", event)
	var msg supportapp.MessageResponse
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.Equal(t, "Size M runs large", msg.Body)
	assert.Equal(t, conv.ID, msg.ConversationID)
}

func TestSupportHandler_StreamRejectsStrangers(t *testing.T) {
	app := newTestApp(t)
	customerID := app.signup(t, "owner-stream@example.com")
	conv, _, err := app.chat.StartConversation(context.Background(),
		supportapp.Actor{UserID: customerID}, supportapp.StartConversationRequest{Subject: "Returns"})
	require.NoError(t, err)

	r := newSupportRouter(app, uuid.New(), identity.RoleCustomer)
	resp := doRequest(t, r, http.MethodGet, "/support/conversations/"+conv.ID.String()+"/stream", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

// readEvent reads one SSE event, skipping comment lines
func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" || data != "" {
				return event, data
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}
