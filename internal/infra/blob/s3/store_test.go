package s3

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"immunocore/internal/blob/core"
)

type fakeObject struct {
	body        []byte
	contentType string
	meta        map[string]string
}

// fakeS3 serves the path-style subset of the S3 REST API the store uses.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]fakeObject
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(req.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		return respond(http.StatusNotFound, "<Error><Code>NoSuchBucket</Code></Error>", nil), nil
	}
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;e&quot;</ETag><LastModified>2026-01-01T00:00:00.000Z</LastModified></Contents>", k, len(f.objects[k].body))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}}), nil
	case req.Method == http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body = decodeChunked(body)
		}
		meta := map[string]string{}
		for name, values := range req.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
				meta[strings.TrimPrefix(strings.ToLower(name), "x-amz-meta-")] = values[0]
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), meta: meta}
		return respond(http.StatusOK, "", http.Header{"Etag": {`"etag-` + key + `"`}}), nil
	case req.Method == http.MethodHead || req.Method == http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			if req.Method == http.MethodHead {
				return respond(http.StatusNotFound, "", nil), nil
			}
			return respond(http.StatusNotFound, "<Error><Code>NoSuchKey</Code></Error>", http.Header{"Content-Type": {"application/xml"}}), nil
		}
		h := http.Header{
			"Content-Type":   {obj.contentType},
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Etag":           {`"etag-` + key + `"`},
			"Last-Modified":  {"Thu, 01 Jan 2026 00:00:00 GMT"},
		}
		for k, v := range obj.meta {
			h.Set("X-Amz-Meta-"+k, v)
		}
		body := string(obj.body)
		if req.Method == http.MethodHead {
			body = ""
		}
		resp := respond(http.StatusOK, body, h)
		resp.ContentLength = int64(len(obj.body))
		return resp, nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func respond(status int, body string, h http.Header) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader(body)), ContentLength: int64(len(body))}
}

func decodeChunked(b []byte) []byte {
	var out bytes.Buffer
	r := bufio.NewReader(bytes.NewReader(b))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return out.Bytes()
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil || n == 0 {
			return out.Bytes()
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return out.Bytes()
		}
		out.Write(chunk)
		_, _ = r.ReadString('\n')
	}
}

func newFakeStore(t *testing.T) *Store {
	t.Helper()
	fake := &fakeS3{bucket: "reports", objects: map[string]fakeObject{}}
	store, err := New(context.Background(), Config{
		Bucket:          "reports",
		Endpoint:        "http://s3.test",
		PathStyle:       true,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
	}, func(o *s3.Options) { o.HTTPClient = &http.Client{Transport: fake} })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore(t)
	if s.Driver() != core.DriverS3 || s.Bucket() != "reports" {
		t.Fatalf("unexpected store %s %s", s.Driver(), s.Bucket())
	}
	info, err := s.Put(ctx, "exp-1/summary.csv", strings.NewReader("a,b\n1,2\n"), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"filter": "all"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != 8 || info.ETag != "etag-exp-1/summary.csv" {
		t.Fatalf("unexpected put info %+v", info)
	}
	head, err := s.Head(ctx, "exp-1/summary.csv")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Size != 8 || head.ContentType != "text/csv" || head.Metadata["filter"] != "all" {
		t.Fatalf("unexpected head %+v", head)
	}
	got, rc, err := s.Get(ctx, "exp-1/summary.csv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "a,b\n1,2\n" || got.ContentType != "text/csv" {
		t.Fatalf("unexpected body %q %+v", body, got)
	}
	if _, err := s.Put(ctx, "exp-2/chart.png", bytes.NewReader([]byte{1, 2, 3}), core.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	list, err := s.List(ctx, "exp-")
	if err != nil || len(list) != 2 || list[1].Key != "exp-2/chart.png" || list[1].Size != 3 {
		t.Fatalf("List = %+v (%v)", list, err)
	}
	if err := s.Delete(ctx, "exp-2/chart.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "exp-2/chart.png"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
}

func TestSignedURL(t *testing.T) {
	s := newFakeStore(t)
	u, err := s.SignedURL(context.Background(), "exp-1/summary.csv", 0)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.Contains(u, "/reports/exp-1/summary.csv") || !strings.Contains(u, "X-Amz-Signature=") || !strings.Contains(u, "X-Amz-Expires=900") {
		t.Fatalf("unexpected signed url %q", u)
	}
}

func TestNewRequiresBucketAndRejectsBadKeys(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
	s := newFakeStore(t)
	if _, err := s.Put(context.Background(), "../x", strings.NewReader(""), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
