package immich_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"retake/internal/immich"
)

type stubDoer struct {
	requests []*http.Request
	handler  func(req *http.Request) (*http.Response, error)
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	return d.handler(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newClient(doer *stubDoer) *immich.Client {
	return immich.NewWithDoer("https://photos.example.net/", "key-123", 5*time.Second, doer)
}

func TestClientSendsAPIKey(t *testing.T) {
	doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"res":"pong"}`), nil
	}}
	client := newClient(doer)

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	req := doer.requests[0]
	if req.Header.Get("x-api-key") != "key-123" {
		t.Fatalf("missing api key header: %v", req.Header)
	}
	if req.URL.String() != "https://photos.example.net/api/server/ping" {
		t.Fatalf("trailing slash not trimmed: %s", req.URL)
	}
}

func TestListAssetsFollowsPagination(t *testing.T) {
	pages := []string{
		`{"assets":{"items":[{"id":"a1","checksum":"c1"}],"nextPage":"2"}}`,
		`{"assets":{"items":[{"id":"a2","checksum":"c2"}],"nextPage":""}}`,
	}
	call := 0
	doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
		resp := jsonResponse(200, pages[call])
		call++
		return resp, nil
	}}

	assets, err := newClient(doer).ListAssets(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListAssets failed: %v", err)
	}
	if len(assets) != 2 || assets[0].ID != "a1" || assets[1].ID != "a2" {
		t.Fatalf("unexpected assets: %+v", assets)
	}
	if call != 2 {
		t.Fatalf("expected 2 pages fetched, got %d", call)
	}
}

func TestSearchByFileNameFiltersExact(t *testing.T) {
	doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"assets":{"items":[
			{"id":"a1","originalFileName":"IMG_0001.JPG"},
			{"id":"a2","originalFileName":"IMG_00012.JPG"}
		],"nextPage":""}}`), nil
	}}

	assets, err := newClient(doer).SearchByFileName(context.Background(), "IMG_0001.JPG")
	if err != nil {
		t.Fatalf("SearchByFileName failed: %v", err)
	}
	if len(assets) != 1 || assets[0].ID != "a1" {
		t.Fatalf("fuzzy result not filtered: %+v", assets)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{401, immich.ErrAuth},
		{403, immich.ErrAuth},
		{404, immich.ErrNotFound},
		{400, immich.ErrValidation},
		{429, immich.ErrTransient},
		{500, immich.ErrTransient},
		{503, immich.ErrTransient},
	}
	for _, tc := range cases {
		doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, `{"message":"nope"}`), nil
		}}
		err := newClient(doer).Ping(context.Background())
		if !errors.Is(err, tc.marker) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	err := newClient(doer).Ping(context.Background())
	if !immich.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestBulkUploadCheck(t *testing.T) {
	doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
		payload, _ := io.ReadAll(req.Body)
		if !bytes.Contains(payload, []byte(`"checksum":"sum1"`)) {
			t.Fatalf("payload missing checksum: %s", payload)
		}
		return jsonResponse(200, `{"results":[{"id":"/p/a.jpg","assetId":"r1","action":"reject","reason":"duplicate"}]}`), nil
	}}

	results, err := newClient(doer).BulkUploadCheck(context.Background(), []immich.CheckItem{{ID: "/p/a.jpg", Checksum: "sum1"}})
	if err != nil {
		t.Fatalf("BulkUploadCheck failed: %v", err)
	}
	if len(results) != 1 || results[0].AssetID != "r1" || results[0].Reason != immich.ReasonDuplicate {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestBulkUploadCheckEmptyIsNoop(t *testing.T) {
	doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected for empty input")
		return nil, nil
	}}
	if _, err := newClient(doer).BulkUploadCheck(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUploadSendsMultipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "IMG_0001.JPG")
	if err := os.WriteFile(path, []byte("image bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
		if ct := req.Header.Get("Content-Type"); ct == "" || ct == "application/json" {
			t.Fatalf("expected multipart content type, got %q", ct)
		}
		body, _ := io.ReadAll(req.Body)
		for _, want := range []string{"assetData", "IMG_0001.JPG", "deviceId", "retake", "image bytes"} {
			if !bytes.Contains(body, []byte(want)) {
				t.Fatalf("upload body missing %q", want)
			}
		}
		return jsonResponse(201, `{"id":"new-1","status":"created"}`), nil
	}}

	captured := time.Date(2023, 7, 14, 12, 1, 2, 0, time.UTC)
	result, err := newClient(doer).Upload(context.Background(), path, captured)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.ID != "new-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCreateStackRequiresTwoAssets(t *testing.T) {
	doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}}
	if _, err := newClient(doer).CreateStack(context.Background(), []string{"only-one"}); !errors.Is(err, immich.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateStackPrimaryFirst(t *testing.T) {
	doer := &stubDoer{handler: func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		want := `{"assetIds":["primary","child"]}`
		if string(body) != want {
			t.Fatalf("got body %s, want %s", body, want)
		}
		return jsonResponse(201, `{"id":"stack-1","primaryAssetId":"primary"}`), nil
	}}
	stack, err := newClient(doer).CreateStack(context.Background(), []string{"primary", "child"})
	if err != nil {
		t.Fatalf("CreateStack failed: %v", err)
	}
	if stack.PrimaryAssetID != "primary" {
		t.Fatalf("unexpected stack: %+v", stack)
	}
}
