package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uagent/toolcore/pkg/access"
	"github.com/uagent/toolcore/pkg/balancer"
	"github.com/uagent/toolcore/pkg/catalog"
	"github.com/uagent/toolcore/pkg/executor"
	"github.com/uagent/toolcore/pkg/interaction"
	"github.com/uagent/toolcore/pkg/provider"
)

type echoCaller struct{}

func (echoCaller) Call(ctx context.Context, tool string, params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"echo": tool}, nil
}

func (echoCaller) Ping(ctx context.Context) error { return nil }

type testGateway struct {
	server     *Server
	http       *httptest.Server
	correlator *interaction.Correlator
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	reg := provider.NewRegistry(func(provider.Handle) provider.Caller { return echoCaller{} })
	t.Cleanup(reg.Close)
	require.NoError(t, reg.Register(context.Background(), provider.Handle{ID: "p1", MinConns: 1, MaxConns: 4}))

	cat := catalog.New()
	require.NoError(t, cat.Register(catalog.Descriptor{
		Name:            "web_services:http_get",
		ProviderIDs:     []string{"p1"},
		ConcurrencySafe: true,
	}))
	require.NoError(t, cat.Register(catalog.Descriptor{
		Name:        "user_interaction:ask_user",
		Interactive: true,
	}))

	pipeline := access.NewPipeline(
		access.NewPermissionChecker(map[string][]string{"admin": {"*:*"}}, nil),
		access.NewRateLimiter(nil),
		access.NewParamValidator(access.DefaultSafetyRules()),
	)

	hub := NewHub(zerolog.Nop())
	correlator := interaction.New(hub)
	t.Cleanup(correlator.Close)

	coordinator := executor.New(executor.Config{
		Catalog:    cat,
		Pipeline:   pipeline,
		Registry:   reg,
		Balancer:   balancer.New(balancer.LeastActive{}),
		Correlator: correlator,
	})

	s, err := NewServer(Config{
		Host:        "127.0.0.1",
		Port:        7411,
		Hub:         hub,
		Coordinator: coordinator,
		Correlator:  correlator,
		Catalog:     cat,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	httpSrv := httptest.NewServer(s.Handler())
	t.Cleanup(httpSrv.Close)

	return &testGateway{server: s, http: httpSrv, correlator: correlator}
}

func (g *testGateway) postJSON(t *testing.T, path string, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(g.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestServer_Call(t *testing.T) {
	t.Run("should execute a tool call over http", func(t *testing.T) {
		g := newTestGateway(t)

		resp, body := g.postJSON(t, "/call",
			`{"role":"admin","tool":"web_services:http_get","params":{}}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, map[string]interface{}{"echo": "web_services:http_get"}, body["payload"])
	})

	t.Run("should map error kinds to http statuses", func(t *testing.T) {
		g := newTestGateway(t)

		resp, body := g.postJSON(t, "/call",
			`{"role":"admin","tool":"web_services:does_not_exist"}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, string(executor.KindInvalidParameters), body["error_kind"])
	})

	t.Run("should reject requests without role or tool", func(t *testing.T) {
		g := newTestGateway(t)

		resp, _ := g.postJSON(t, "/call", `{"tool":"web_services:http_get"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_Tools(t *testing.T) {
	t.Run("should list registered tools", func(t *testing.T) {
		g := newTestGateway(t)

		resp, err := http.Get(g.http.URL + "/tools")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body struct {
			Tools []catalog.Descriptor `json:"tools"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Len(t, body.Tools, 2)
	})
}

func TestServer_Interactions(t *testing.T) {
	t.Run("should expose pending questions and accept answers over http", func(t *testing.T) {
		g := newTestGateway(t)

		answerCh := make(chan string, 1)
		go func() {
			answer, err := g.correlator.Ask(context.Background(), "Proceed?", nil, 2*time.Second)
			if err != nil {
				answerCh <- "error: " + err.Error()
				return
			}
			answerCh <- answer
		}()

		var pending []interaction.Question
		require.Eventually(t, func() bool {
			resp, err := http.Get(g.http.URL + "/interactions")
			if err != nil {
				return false
			}
			defer resp.Body.Close()

			var body struct {
				Pending []interaction.Question `json:"pending"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return false
			}
			pending = body.Pending
			return len(pending) == 1
		}, 2*time.Second, 10*time.Millisecond)

		resp, body := g.postJSON(t, "/interactions/answer",
			`{"id":"`+pending[0].ID+`","value":"go ahead"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["accepted"])

		select {
		case answer := <-answerCh:
			assert.Equal(t, "go ahead", answer)
		case <-time.After(time.Second):
			t.Fatal("asker never received the answer")
		}
	})

	t.Run("should return 404 for answers to unknown questions", func(t *testing.T) {
		g := newTestGateway(t)

		resp, _ := g.postJSON(t, "/interactions/answer", `{"id":"ghost","value":"x"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServer_WebSocket(t *testing.T) {
	t.Run("should broadcast questions and accept answers over the socket", func(t *testing.T) {
		g := newTestGateway(t)

		wsURL := "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Wait for the hub to register the client before asking.
		require.Eventually(t, func() bool {
			return g.server.Hub().Count() == 1
		}, time.Second, 10*time.Millisecond)

		answerCh := make(chan string, 1)
		go func() {
			answer, _ := g.correlator.Ask(context.Background(), "Deploy?", []string{"yes", "no"}, 2*time.Second)
			answerCh <- answer
		}()

		// The question arrives as a broadcast event.
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var event struct {
			Event string               `json:"event"`
			Data  interaction.Question `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, "interaction.question", event.Event)
		assert.Equal(t, "Deploy?", event.Data.Text)

		require.NoError(t, conn.WriteJSON(AnswerRequest{ID: event.Data.ID, Value: "yes"}))

		var ack struct {
			Event string `json:"event"`
			Data  struct {
				Accepted bool `json:"accepted"`
			} `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&ack))
		assert.Equal(t, "interaction.answered", ack.Event)
		assert.True(t, ack.Data.Accepted)

		select {
		case answer := <-answerCh:
			assert.Equal(t, "yes", answer)
		case <-time.After(time.Second):
			t.Fatal("asker never received the answer")
		}
	})
}

func TestServer_Healthz(t *testing.T) {
	t.Run("should report ok", func(t *testing.T) {
		g := newTestGateway(t)

		resp, err := http.Get(g.http.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
