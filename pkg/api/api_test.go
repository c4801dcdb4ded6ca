package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"anonboard/pkg/bbs"
	"anonboard/pkg/cache"
	"anonboard/pkg/config"
	"anonboard/pkg/models"
	"anonboard/pkg/moderation"
	"anonboard/pkg/ratelimit"
	"anonboard/pkg/store"
)

const adminKey = "test-admin-key"

func newTestServer(t *testing.T) (*httptest.Server, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	if err := st.SaveBoard(models.Board{ID: "b1", Name: "Board One", Status: models.BoardActive}); err != nil {
		t.Fatal(err)
	}
	svc := bbs.NewService(bbs.Params{
		Store:   st,
		Limiter: ratelimit.New(st),
		Limits: config.LimitsConfig{
			Post:         config.ActionLimit{Limit: 100, Window: config.Duration(time.Minute)},
			Thread:       config.ActionLimit{Limit: 100, Window: config.Duration(time.Minute)},
			Report:       config.ActionLimit{Limit: 100, Window: config.Duration(time.Minute)},
			MaxPostBytes: 4096,
			MaxTitleLen:  120,
		},
		Inv:          cache.Nop{},
		IdentitySalt: "salt",
	})
	srv := NewServer(Params{
		Service:    svc,
		Moderation: moderation.New(st, cache.Nop{}),
		AdminKeys:  []string{adminKey},
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, out.Bytes()
}

func TestThreadLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	// create a thread
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/threads", map[string]string{
		"board": "b1", "title": "first thread", "content": "opening post",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create thread: %d %s", resp.StatusCode, body)
	}
	var created models.Thread
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}

	// reply, with an anchor back at the opener
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/threads/"+created.ID+"/posts", map[string]string{
		"content": "replying to >>1",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create post: %d %s", resp.StatusCode, body)
	}
	var postOut struct {
		Position int `json:"position"`
	}
	if err := json.Unmarshal(body, &postOut); err != nil {
		t.Fatal(err)
	}
	if postOut.Position != 2 {
		t.Fatalf("position = %d, want 2", postOut.Position)
	}

	// fetch the thread and check the resolved anchor
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/threads/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get thread: %d", resp.StatusCode)
	}
	var view struct {
		Thread models.Thread `json:"thread"`
		Posts  []struct {
			models.Post
			Position int `json:"position"`
			Refs     []struct {
				Position int    `json:"position"`
				Broken   bool   `json:"broken"`
				PostID   string `json:"post_id"`
			} `json:"refs"`
		} `json:"posts"`
	}
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Posts) != 2 {
		t.Fatalf("posts = %d", len(view.Posts))
	}
	refs := view.Posts[1].Refs
	if len(refs) != 1 || refs[0].Broken || refs[0].PostID != view.Posts[0].ID {
		t.Fatalf("refs = %+v", refs)
	}
	if view.Thread.Views != 1 {
		t.Fatalf("views = %d", view.Thread.Views)
	}

	// board listing carries the thread
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/boards/b1", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get board: %d", resp.StatusCode)
	}
	var boardOut struct {
		Listing struct {
			Total int `json:"total"`
		} `json:"listing"`
	}
	if err := json.Unmarshal(body, &boardOut); err != nil {
		t.Fatal(err)
	}
	if boardOut.Listing.Total != 1 {
		t.Fatalf("board total = %d", boardOut.Listing.Total)
	}
}

func TestValidationAndMissingMapToStatusCodes(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/threads", map[string]string{"board": "b1", "title": "", "content": "x"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty title: %d, want 400", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/threads/does-not-exist", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing thread: %d, want 404", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/generate", map[string]string{"url": "https://example.com"}, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("generate without ingester: %d, want 503", resp.StatusCode)
	}
}

func TestAdminEndpointsRequireKey(t *testing.T) {
	ts, st := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/threads", map[string]string{"board": "b1", "title": "t", "content": "c"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	var created models.Thread
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	posts, _ := st.ListPosts(created.ID)
	target := fmt.Sprintf("%s/v1/admin/posts/%s", ts.URL, posts[0].ID)

	// no key
	resp, _ = doJSON(t, http.MethodPatch, target, statusBody{Status: models.PostDeleted}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key: %d, want 401", resp.StatusCode)
	}
	// wrong key
	resp, _ = doJSON(t, http.MethodPatch, target, statusBody{Status: models.PostDeleted}, map[string]string{"X-Admin-Key": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key: %d, want 401", resp.StatusCode)
	}
	// right key soft-deletes
	resp, _ = doJSON(t, http.MethodPatch, target, statusBody{Status: models.PostDeleted}, map[string]string{"X-Admin-Key": adminKey})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with key: %d, want 200", resp.StatusCode)
	}
	p, _ := st.GetPost(posts[0].ID)
	if p.Status != models.PostDeleted {
		t.Fatalf("post status = %s", p.Status)
	}
}

func TestReportFlowOverHTTP(t *testing.T) {
	ts, st := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/threads", map[string]string{"board": "b1", "title": "t", "content": "c"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d", resp.StatusCode)
	}
	var created models.Thread
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	posts, _ := st.ListPosts(created.ID)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/reports", map[string]string{
		"post_id": posts[0].ID, "reason": "spam",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("report: %d %s", resp.StatusCode, body)
	}
	var rep models.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		t.Fatal(err)
	}

	// pending reports visible to admins only
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/admin/reports", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reports without key: %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/admin/reports", nil, map[string]string{"X-Admin-Key": adminKey})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reports with key: %d", resp.StatusCode)
	}
	var out struct {
		Reports []models.Report `json:"reports"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Reports) != 1 || out.Reports[0].ID != rep.ID {
		t.Fatalf("reports = %+v", out.Reports)
	}

	// resolve it
	resp, _ = doJSON(t, http.MethodPatch, ts.URL+"/v1/admin/reports/"+rep.ID, statusBody{Status: models.ReportResolved}, map[string]string{"X-Admin-Key": adminKey})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d", resp.StatusCode)
	}
	got, _ := st.GetReport(rep.ID)
	if got.Status != models.ReportResolved {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestDocsServed(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/openapi.yaml", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("openapi: %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("/v1/threads")) {
		t.Fatal("served contract is missing the thread routes")
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/docs/index.html", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("docs ui: %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "ok" {
		t.Fatalf("body = %s", body)
	}
}
