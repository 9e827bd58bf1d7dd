// Package storage keeps one generation of observability buckets per tenant
// on S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"github.com/glueops/tools-api/pkg/metrics"
	"github.com/glueops/tools-api/pkg/tenant"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// maxBucketNameLen is the S3 bucket name limit.
const maxBucketNameLen = 63

// BucketKinds are created in this order for every generation.
var BucketKinds = []string{"tempo", "loki", "thanos"}

// ObjectStore is the subset of an S3 API used to manage buckets.
type ObjectStore interface {
	ListBuckets(ctx context.Context) ([]string, error)
	MakeBucket(ctx context.Context, name string) error
	RemoveBucket(ctx context.Context, name string) error
	// PurgeBucket deletes every object in the bucket.
	PurgeBucket(ctx context.Context, name string) error
}

// StoreFactory returns an ObjectStore for a region.
type StoreFactory func(region string) (ObjectStore, error)

// ResetRequest asks for a fresh bucket generation.
type ResetRequest struct {
	Tenant string
	Region string
}

// ResetResult describes what a reset did.
type ResetResult struct {
	Config  string
	Prefix  string
	Created []string
	Deleted []string
}

// Options configure the manager.
type Options struct {
	DefaultRegion   string
	Regions         []string
	SuffixLength    int
	PurgeObjects    bool
	LegacyMatch     bool
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint renders the host for a region, e.g. "fsn1.your-objectstorage.com".
	Endpoint func(region string) string
}

// Manager resets tenant bucket generations.
type Manager struct {
	log     logrus.FieldLogger
	stores  StoreFactory
	opts    Options
	locker  *tenant.Locker
	metrics *metrics.Metrics
}

// NewManager creates a new bucket manager.
func NewManager(
	log logrus.FieldLogger,
	stores StoreFactory,
	opts Options,
	locker *tenant.Locker,
	m *metrics.Metrics,
) *Manager {
	if locker == nil {
		locker = tenant.NewLocker()
	}

	if opts.SuffixLength <= 0 {
		opts.SuffixLength = 4
	}

	return &Manager{
		log:     log.WithField("component", "storage"),
		stores:  stores,
		opts:    opts,
		locker:  locker,
		metrics: m,
	}
}

// BaseName derives the bucket prefix for a tenant, shortened so that the
// longest bucket of a generation still fits the S3 name limit.
func (m *Manager) BaseName(captainDomain string) string {
	base := tenant.CompliantName(captainDomain)

	// "-" + suffix + "-" + longest kind.
	limit := maxBucketNameLen - m.opts.SuffixLength - 2 - len("thanos")
	if len(base) > limit {
		base = strings.TrimRight(base[:limit], "-")
	}

	return base
}

// Matches reports whether bucket belongs to the tenant whose base name is base.
func (m *Manager) Matches(base, bucket string) bool {
	if m.opts.LegacyMatch {
		return strings.Contains(bucket, base)
	}

	pattern := fmt.Sprintf(`^%s-[0-9a-f]{%d}-(%s)$`,
		regexp.QuoteMeta(base), m.opts.SuffixLength, strings.Join(BucketKinds, "|"))

	return regexp.MustCompile(pattern).MatchString(bucket)
}

// NewPrefix returns "{base}-{random hex}".
func (m *Manager) NewPrefix(base string) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")

	return base + "-" + hex[:m.opts.SuffixLength]
}

// Reset deletes the tenant's previous bucket generation, creates a fresh one
// and returns the storage configuration block that points at it.
func (m *Manager) Reset(ctx context.Context, req ResetRequest) (*ResetResult, error) {
	name, err := tenant.Normalize(req.Tenant)
	if err != nil {
		return nil, err
	}

	region := strings.TrimSpace(req.Region)
	if region == "" {
		region = m.opts.DefaultRegion
	}

	if !slices.Contains(m.opts.Regions, region) {
		return nil, trace.BadParameter("unsupported object storage region %q, supported: %s",
			region, strings.Join(m.opts.Regions, ", "))
	}

	store, err := m.stores(region)
	if err != nil {
		return nil, trace.Wrap(err, "creating object storage client")
	}

	base := m.BaseName(name)

	log := m.log.WithFields(logrus.Fields{
		"tenant": name,
		"base":   base,
		"region": region,
	})

	// Tenants that differ only in case or punctuation share a bucket set.
	unlock, err := m.locker.Lock(ctx, base)
	if err != nil {
		return nil, trace.Wrap(err, "waiting for tenant lock")
	}
	defer unlock()

	buckets, err := store.ListBuckets(ctx)
	m.recordVendorCall("list_buckets", err)

	if err != nil {
		return nil, trace.Wrap(err, "listing buckets")
	}

	result := &ResetResult{}

	for _, bucket := range buckets {
		if !m.Matches(base, bucket) {
			continue
		}

		if m.opts.PurgeObjects {
			err := store.PurgeBucket(ctx, bucket)
			m.recordVendorCall("purge_bucket", err)

			if err != nil {
				return nil, trace.Wrap(err, "purging bucket %s", bucket)
			}
		}

		err := store.RemoveBucket(ctx, bucket)
		m.recordVendorCall("remove_bucket", err)

		if err != nil {
			return nil, trace.Wrap(err, "removing bucket %s", bucket)
		}

		result.Deleted = append(result.Deleted, bucket)

		log.WithField("bucket", bucket).Info("Deleted bucket")
	}

	if m.metrics != nil {
		m.metrics.RecordBucketsDeleted(len(result.Deleted))
	}

	result.Prefix = m.NewPrefix(base)

	for _, kind := range BucketKinds {
		bucket := result.Prefix + "-" + kind

		err := store.MakeBucket(ctx, bucket)
		m.recordVendorCall("make_bucket", err)

		if err != nil {
			return nil, trace.Wrap(err, "creating bucket %s", bucket)
		}

		if m.metrics != nil {
			m.metrics.RecordBucketsCreated(1)
		}

		result.Created = append(result.Created, bucket)

		log.WithField("bucket", bucket).Info("Created bucket")
	}

	cfg, err := RenderConfig(ConfigParams{
		Prefix:          result.Prefix,
		Endpoint:        m.opts.Endpoint(region),
		AccessKeyID:     m.opts.AccessKeyID,
		SecretAccessKey: m.opts.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	result.Config = cfg

	return result, nil
}

func (m *Manager) recordVendorCall(operation string, err error) {
	if m.metrics != nil {
		m.metrics.RecordVendorCall("object_storage", operation, err)
	}
}

// ConfigParams fill the storage configuration block.
type ConfigParams struct {
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

var configTemplate = template.Must(template.New("storage").Parse(`
      loki_storage         = <<EOT
bucketNames:
        chunks: {{ .Prefix }}-loki
        ruler: {{ .Prefix }}-loki
        admin: {{ .Prefix }}-loki
   type: s3
   s3:
      s3: {{ .Prefix }}-loki
      endpoint: https://{{ .Endpoint }}
      region: us-east-1
      accessKeyId: {{ .AccessKeyID }}
      secretAccessKey: {{ .SecretAccessKey }}
      s3ForcePathStyle: false
      insecure: false
    EOT
      thanos_storage       = <<EOT
type: s3
    config:
        bucket: {{ .Prefix }}-thanos
        endpoint: {{ .Endpoint }}
        access_key: {{ .AccessKeyID }}
        secret_key: {{ .SecretAccessKey }}
EOT
      tempo_storage        = <<EOT
backend: s3
    s3:
        access_key: {{ .AccessKeyID }}
        secret_key: {{ .SecretAccessKey }}
        bucket:  {{ .Prefix }}-tempo
        endpoint: {{ .Endpoint }}
        insecure: false
EOT
    `))

// RenderConfig renders the loki/thanos/tempo storage heredocs.
func RenderConfig(p ConfigParams) (string, error) {
	var buf bytes.Buffer

	if err := configTemplate.Execute(&buf, p); err != nil {
		return "", trace.Wrap(err, "rendering storage config")
	}

	return buf.String(), nil
}
