// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// End-to-end test of the editing flow over the HTTP and WebSocket API:
// project creation, script import, generation with a placeholder,
// resolution, explicit save, and reopening from the store.

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StoryloomAI/storyloom/services/editor"
	"github.com/StoryloomAI/storyloom/services/editor/generate"
	"github.com/StoryloomAI/storyloom/services/editor/graph"
	"github.com/StoryloomAI/storyloom/services/editor/persist"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// gatedGenerator blocks until released, so tests can observe the
// loading state before the result lands.
type gatedGenerator struct {
	gate   chan struct{}
	result generate.Result
	err    error

	mu      sync.Mutex
	lastReq generate.Request
}

func newGatedGenerator(result generate.Result, err error) *gatedGenerator {
	return &gatedGenerator{gate: make(chan struct{}), result: result, err: err}
}

func (g *gatedGenerator) Generate(ctx context.Context, req generate.Request) (generate.Result, error) {
	g.mu.Lock()
	g.lastReq = req
	g.mu.Unlock()

	select {
	case <-g.gate:
	case <-ctx.Done():
		return generate.Result{}, ctx.Err()
	}
	return g.result, g.err
}

func (g *gatedGenerator) release() { close(g.gate) }

func (g *gatedGenerator) request() generate.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastReq
}

// newEditorServer starts an in-process editor on an in-memory store
// with the given generators.
func newEditorServer(t *testing.T, registry *generate.Registry) *httptest.Server {
	t.Helper()
	if registry == nil {
		registry = generate.NewRegistry()
	}
	svc, err := editor.New(editor.InMemoryConfig(), &editor.Options{Registry: registry})
	require.NoError(t, err)

	srv := httptest.NewServer(svc.Router())
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Close()
	})
	return srv
}

// do performs one JSON request and returns the status and raw body.
func do(t *testing.T, srv *httptest.Server, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func createProject(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	status, raw := do(t, srv, http.MethodPost, "/v1/projects", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, status, string(raw))

	var project persist.Project
	require.NoError(t, json.Unmarshal(raw, &project))
	require.NotEmpty(t, project.ID)
	return project.ID
}

func getGraph(t *testing.T, srv *httptest.Server, projectID string) graph.Snapshot {
	t.Helper()
	status, raw := do(t, srv, http.MethodGet, "/v1/projects/"+projectID+"/graph", nil)
	require.Equal(t, http.StatusOK, status, string(raw))

	var snap graph.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	return snap
}

func findNode(snap graph.Snapshot, id string) (graph.Node, bool) {
	for _, n := range snap.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return graph.Node{}, false
}

// dialEvents connects to the project's event feed and consumes the
// welcome message.
func dialEvents(t *testing.T, srv *httptest.Server, projectID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/projects/" + projectID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var welcome map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "connected", welcome["type"])
	return conn
}

// readEventUntil drains the feed until match accepts an event.
func readEventUntil(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var ev map[string]any
		require.NoError(t, conn.ReadJSON(&ev), "expected event did not arrive in time")
		if match(ev) {
			return ev
		}
	}
}

func eventTouches(ev map[string]any, op, nodeID string) bool {
	if ev["op"] != op {
		return false
	}
	ids, _ := ev["nodeIds"].([]any)
	for _, id := range ids {
		if id == nodeID {
			return true
		}
	}
	return false
}

// TestStoryboardFlow walks the full editing lifecycle a canvas client
// would drive.
func TestStoryboardFlow(t *testing.T) {
	gen := newGatedGenerator(generate.Result{ImageURL: "https://cdn.test/generated/scene-1.png"}, nil)
	registry := generate.NewRegistry()
	registry.Register(graph.KindTextToImage, gen)
	srv := newEditorServer(t, registry)

	t.Log("Creating and opening a project...")
	projectID := createProject(t, srv, "Episode 1")

	status, raw := do(t, srv, http.MethodPost, "/v1/projects/"+projectID+"/open", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var opened struct {
		Project  persist.Project `json:"project"`
		Snapshot graph.Snapshot  `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(raw, &opened))
	assert.Equal(t, "Episode 1", opened.Project.Name)
	assert.Empty(t, opened.Snapshot.Nodes)

	conn := dialEvents(t, srv, projectID)

	t.Log("Importing a two-scene script...")
	script := "A lighthouse keeper climbs the tower at dusk.\n\nThe beam sweeps across a stormy sea."
	status, raw = do(t, srv, http.MethodPost, "/v1/projects/"+projectID+"/script/import", map[string]any{
		"script": script,
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var imported struct {
		Nodes []graph.Node `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(raw, &imported))
	require.Len(t, imported.Nodes, 2)
	sceneNode := imported.Nodes[0]

	t.Log("Triggering a generation from the first scene...")
	status, raw = do(t, srv, http.MethodPost, "/v1/projects/"+projectID+"/generations", map[string]any{
		"source_node_id": sceneNode.ID,
		"kind":           "textToImage",
	})
	require.Equal(t, http.StatusAccepted, status, string(raw))
	var accepted struct {
		PlaceholderID string `json:"placeholder_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &accepted))
	require.NotEmpty(t, accepted.PlaceholderID)

	// While the generator is gated, the canvas shows a loading
	// placeholder wired to its source.
	snap := getGraph(t, srv, projectID)
	placeholder, ok := findNode(snap, accepted.PlaceholderID)
	require.True(t, ok, "placeholder should be on the canvas immediately")
	assert.Equal(t, true, placeholder.Data[graph.FieldIsLoading])

	edgeID := "e-" + accepted.PlaceholderID
	foundEdge := false
	for _, e := range snap.Edges {
		if e.ID == edgeID {
			foundEdge = true
			assert.Equal(t, sceneNode.ID, e.Source)
			assert.Equal(t, accepted.PlaceholderID, e.Target)
			assert.True(t, e.Animated)
		}
	}
	require.True(t, foundEdge, "placeholder should be connected to its source")

	t.Log("Releasing the generator and waiting for the result...")
	gen.release()
	require.Eventually(t, func() bool {
		node, ok := findNode(getGraph(t, srv, projectID), accepted.PlaceholderID)
		return ok && node.Data[graph.FieldIsLoading] == false
	}, waitFor, tick)

	node, _ := findNode(getGraph(t, srv, projectID), accepted.PlaceholderID)
	assert.Equal(t, "https://cdn.test/generated/scene-1.png", node.Data[graph.FieldOutputImage])

	// The generator saw the scene text as its prompt.
	assert.Equal(t, "A lighthouse keeper climbs the tower at dusk.", gen.request().Prompt())

	// The event feed reported the resolution.
	readEventUntil(t, conn, func(ev map[string]any) bool {
		return eventTouches(ev, "update_node", accepted.PlaceholderID)
	})

	t.Log("Saving and closing the session...")
	status, raw = do(t, srv, http.MethodPost, "/v1/projects/"+projectID+"/save", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), `"saved":true`)

	conn.Close()
	status, raw = do(t, srv, http.MethodPost, "/v1/projects/"+projectID+"/close", nil)
	require.Equal(t, http.StatusOK, status, string(raw))

	t.Log("Reopening and verifying the persisted workflow...")
	status, raw = do(t, srv, http.MethodPost, "/v1/projects/"+projectID+"/open", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	require.NoError(t, json.Unmarshal(raw, &opened))
	require.Len(t, opened.Snapshot.Nodes, 3)

	restored, ok := findNode(opened.Snapshot, accepted.PlaceholderID)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.test/generated/scene-1.png", restored.Data[graph.FieldOutputImage])
}

// TestGenerationFailureStaysVisible verifies a failed generation marks
// the placeholder rather than removing it.
func TestGenerationFailureStaysVisible(t *testing.T) {
	gen := newGatedGenerator(generate.Result{}, fmt.Errorf("upstream rejected the prompt"))
	registry := generate.NewRegistry()
	registry.Register(graph.KindTextToImage, gen)
	srv := newEditorServer(t, registry)

	projectID := createProject(t, srv, "Failure case")
	status, raw := do(t, srv, http.MethodPost, "/v1/projects/"+projectID+"/generations", map[string]any{
		"kind":   "textToImage",
		"prompt": "a doomed render",
	})
	require.Equal(t, http.StatusAccepted, status, string(raw))
	var accepted struct {
		PlaceholderID string `json:"placeholder_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &accepted))

	gen.release()
	require.Eventually(t, func() bool {
		node, ok := findNode(getGraph(t, srv, projectID), accepted.PlaceholderID)
		return ok && node.Data[graph.FieldIsLoading] == false
	}, waitFor, tick)

	node, ok := findNode(getGraph(t, srv, projectID), accepted.PlaceholderID)
	require.True(t, ok, "failed placeholder must stay on the canvas")
	progress, _ := node.Data[graph.FieldLoadingProgress].(string)
	assert.Contains(t, progress, "upstream rejected the prompt")
}

// TestBatchGeneration fans one request out to several placeholders.
func TestBatchGeneration(t *testing.T) {
	gen := newGatedGenerator(generate.Result{ImageURL: "https://cdn.test/batch.png"}, nil)
	registry := generate.NewRegistry()
	registry.Register(graph.KindTextToImage, gen)
	srv := newEditorServer(t, registry)

	projectID := createProject(t, srv, "Storyboard")
	status, raw := do(t, srv, http.MethodPost, "/v1/projects/"+projectID+"/generations/batch", map[string]any{
		"generations": []map[string]any{
			{"kind": "textToImage", "prompt": "scene one"},
			{"kind": "textToImage", "prompt": "scene two"},
			{"kind": "textToImage", "prompt": "scene three"},
		},
	})
	require.Equal(t, http.StatusAccepted, status, string(raw))
	var accepted struct {
		PlaceholderIDs []string `json:"placeholder_ids"`
	}
	require.NoError(t, json.Unmarshal(raw, &accepted))
	require.Len(t, accepted.PlaceholderIDs, 3)

	gen.release()
	require.Eventually(t, func() bool {
		snap := getGraph(t, srv, projectID)
		for _, id := range accepted.PlaceholderIDs {
			node, ok := findNode(snap, id)
			if !ok || node.Data[graph.FieldIsLoading] != false {
				return false
			}
		}
		return true
	}, waitFor, tick)
}

// TestInputResolution verifies a node sees joined prompts and upstream
// media through its incoming edges.
func TestInputResolution(t *testing.T) {
	srv := newEditorServer(t, nil)
	projectID := createProject(t, srv, "Inputs")
	base := "/v1/projects/" + projectID

	for _, node := range []map[string]any{
		{"id": "p1", "kind": "prompt", "position": map[string]float64{"x": 0, "y": 0},
			"data": map[string]any{"prompt": "wide shot of a harbor"}},
		{"id": "p2", "kind": "prompt", "position": map[string]float64{"x": 0, "y": 120},
			"data": map[string]any{"prompt": "golden hour light"}},
		{"id": "u1", "kind": "upload", "position": map[string]float64{"x": 0, "y": 240},
			"data": map[string]any{"imageUrl": "https://cdn.test/reference.jpg"}},
		{"id": "gen", "kind": "imageToImage", "position": map[string]float64{"x": 300, "y": 120}},
	} {
		status, raw := do(t, srv, http.MethodPost, base+"/nodes", node)
		require.Equal(t, http.StatusCreated, status, string(raw))
	}
	for i, edge := range []map[string]any{
		{"id": "e1", "source": "p1", "target": "gen"},
		{"id": "e2", "source": "p2", "target": "gen"},
		{"id": "e3", "source": "u1", "target": "gen"},
	} {
		status, raw := do(t, srv, http.MethodPost, base+"/edges", edge)
		require.Equal(t, http.StatusCreated, status, "edge %d: %s", i, string(raw))
	}

	status, raw := do(t, srv, http.MethodGet, base+"/nodes/gen/inputs", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var resolved struct {
		Prompts []string `json:"prompts"`
		Images  []string `json:"images"`
	}
	require.NoError(t, json.Unmarshal(raw, &resolved))
	assert.ElementsMatch(t, []string{"wide shot of a harbor", "golden hour light"}, resolved.Prompts)
	assert.Equal(t, []string{"https://cdn.test/reference.jpg"}, resolved.Images)
}

// TestBeaconReplacesGraph verifies the unload path swaps the whole
// snapshot in immediately.
func TestBeaconReplacesGraph(t *testing.T) {
	srv := newEditorServer(t, nil)
	projectID := createProject(t, srv, "Unload")
	base := "/v1/projects/" + projectID

	status, raw := do(t, srv, http.MethodPost, base+"/nodes", map[string]any{
		"id": "will-vanish", "kind": "prompt",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, raw = do(t, srv, http.MethodPost, base+"/beacon", graph.Snapshot{
		Nodes: []graph.Node{
			{ID: "final-1", Kind: graph.KindPrompt, Data: graph.Data{graph.FieldPrompt: "the end"}},
			{ID: "final-2", Kind: graph.KindAnnotation},
		},
		Edges: []graph.Edge{{ID: "fe", Source: "final-1", Target: "final-2"}},
	})
	require.Equal(t, http.StatusAccepted, status, string(raw))

	snap := getGraph(t, srv, projectID)
	assert.Len(t, snap.Nodes, 2)
	_, gone := findNode(snap, "will-vanish")
	assert.False(t, gone, "beacon must replace, not merge")

	// The replaced state survives a close and reopen.
	status, raw = do(t, srv, http.MethodPost, base+"/close", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	status, raw = do(t, srv, http.MethodPost, base+"/open", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var opened struct {
		Snapshot graph.Snapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(raw, &opened))
	require.Len(t, opened.Snapshot.Nodes, 2)
	_, ok := findNode(opened.Snapshot, "final-1")
	assert.True(t, ok)
}

// TestConcurrentEditors exercises parallel mutation of one project the
// way several canvas tabs would.
func TestConcurrentEditors(t *testing.T) {
	srv := newEditorServer(t, nil)
	projectID := createProject(t, srv, "Shared")
	base := "/v1/projects/" + projectID

	// Raw requests here: the helpers fail the test from the wrong
	// goroutine.
	const writers = 8
	statuses := make(chan int, writers)
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{
				"id": fmt.Sprintf("n%d", i), "kind": "prompt",
				"data": map[string]any{"prompt": fmt.Sprintf("shot %d", i)},
			})
			resp, err := srv.Client().Post(srv.URL+base+"/nodes", "application/json", bytes.NewReader(body))
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(statuses)
	for status := range statuses {
		assert.Equal(t, http.StatusCreated, status)
	}

	snap := getGraph(t, srv, projectID)
	assert.Len(t, snap.Nodes, writers)
}
