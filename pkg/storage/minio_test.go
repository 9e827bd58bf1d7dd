package storage

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the path-style S3 calls minio-go makes for bucket listing
// and purging.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string][]string
	denied   map[string]bool
	removed  []string
	batches  int
	listings int
}

type s3DeleteRequest struct {
	Objects []struct {
		Key string `xml:"Key"`
	} `xml:"Object"`
}

func newFakeS3(t *testing.T) (*fakeS3, ObjectStore) {
	t.Helper()

	f := &fakeS3{buckets: make(map[string][]string), denied: make(map[string]bool)}

	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	s, err := NewMinioStore(MinioConfig{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:     "access",
		SecretAccessKey: "secret",
		Region:          "hel1",
	})
	require.NoError(t, err)

	return f, s
}

// serve routes path-style requests: "/" lists buckets, "/bucket/" addresses
// the bucket and "/bucket/key" a single object.
func (f *fakeS3) serve(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	switch {
	case bucket == "" && r.Method == http.MethodGet:
		f.listBuckets(w)
	case key == "" && r.Method == http.MethodGet:
		f.listObjects(w, bucket)
	case key == "" && r.Method == http.MethodPost:
		f.deleteObjects(w, r, bucket)
	case key != "" && r.Method == http.MethodDelete:
		f.deleteObject(w, bucket, key)
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.String(), http.StatusNotImplemented)
	}
}

func writeS3XML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, xml.Header+body)
}

func (f *fakeS3) listBuckets(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.buckets))
	for name := range f.buckets {
		names = append(names, name)
	}

	sort.Strings(names)

	var b strings.Builder

	b.WriteString(`<ListAllMyBucketsResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	b.WriteString(`<Owner><ID>tools-api</ID><DisplayName>tools-api</DisplayName></Owner><Buckets>`)

	for _, name := range names {
		fmt.Fprintf(&b, `<Bucket><Name>%s</Name><CreationDate>2026-03-01T12:00:00.000Z</CreationDate></Bucket>`, name)
	}

	b.WriteString(`</Buckets></ListAllMyBucketsResult>`)

	writeS3XML(w, b.String())
}

func (f *fakeS3) listObjects(w http.ResponseWriter, bucket string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listings++

	var b strings.Builder

	fmt.Fprintf(&b, `<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>%s</Name><Prefix></Prefix>`, bucket)
	fmt.Fprintf(&b, `<KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>`, len(f.buckets[bucket]))

	for _, key := range f.buckets[bucket] {
		fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>2026-03-01T12:00:00.000Z</LastModified>`, key)
		b.WriteString(`<ETag>"d41d8cd98f00b204e9800998ecf8427e"</ETag><Size>3</Size><StorageClass>STANDARD</StorageClass></Contents>`)
	}

	b.WriteString(`</ListBucketResult>`)

	writeS3XML(w, b.String())
}

func (f *fakeS3) deleteObjects(w http.ResponseWriter, r *http.Request, bucket string) {
	var req s3DeleteRequest
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches++

	var b strings.Builder

	b.WriteString(`<DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)

	for _, obj := range req.Objects {
		if f.denied[obj.Key] {
			fmt.Fprintf(&b, `<Error><Key>%s</Key><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`, obj.Key)

			continue
		}

		f.remove(bucket, obj.Key)
	}

	b.WriteString(`</DeleteResult>`)

	writeS3XML(w, b.String())
}

func (f *fakeS3) deleteObject(w http.ResponseWriter, bucket, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.remove(bucket, key)

	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeS3) remove(bucket, key string) {
	kept := f.buckets[bucket][:0]

	for _, k := range f.buckets[bucket] {
		if k != key {
			kept = append(kept, k)
		}
	}

	f.buckets[bucket] = kept
	f.removed = append(f.removed, bucket+"/"+key)
}

func TestMinioListBuckets(t *testing.T) {
	f, s := newFakeS3(t)
	f.buckets["foorocks-tempo-ab12c"] = nil
	f.buckets["foorocks-loki-ab12c"] = nil

	names, err := s.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"foorocks-loki-ab12c", "foorocks-tempo-ab12c"}, names)
}

func TestMinioPurgeBucket(t *testing.T) {
	f, s := newFakeS3(t)
	f.buckets["foorocks-loki-ab12c"] = []string{"chunks/1", "chunks/2", "index/3"}
	f.buckets["foorocks-tempo-ab12c"] = []string{"blocks/1"}

	require.NoError(t, s.PurgeBucket(context.Background(), "foorocks-loki-ab12c"))

	assert.Empty(t, f.buckets["foorocks-loki-ab12c"])
	assert.Equal(t, []string{"blocks/1"}, f.buckets["foorocks-tempo-ab12c"])
	assert.ElementsMatch(t, []string{
		"foorocks-loki-ab12c/chunks/1",
		"foorocks-loki-ab12c/chunks/2",
		"foorocks-loki-ab12c/index/3",
	}, f.removed)
	assert.Positive(t, f.listings)
}

func TestMinioPurgeEmptyBucket(t *testing.T) {
	f, s := newFakeS3(t)
	f.buckets["foorocks-thanos-ab12c"] = nil

	require.NoError(t, s.PurgeBucket(context.Background(), "foorocks-thanos-ab12c"))
	assert.Empty(t, f.removed)
	assert.Zero(t, f.batches)
}

func TestMinioPurgeBucketReportsFailures(t *testing.T) {
	f, s := newFakeS3(t)
	f.buckets["foorocks-loki-ab12c"] = []string{"chunks/1", "chunks/2", "locked"}
	f.denied["locked"] = true

	err := s.PurgeBucket(context.Background(), "foorocks-loki-ab12c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	assert.Equal(t, []string{"locked"}, f.buckets["foorocks-loki-ab12c"])
}
