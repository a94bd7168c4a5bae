package core

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/tablefile"
	"github.com/huangsam/epss/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Partitioner splits a changelog into one blob per distinct key value.
type Partitioner struct {
	store   contract.BlobStore
	format  schema.FileFormat
	logger  *zap.Logger
	metrics *Metrics
}

// NewPartitioner builds a partitioner writing to store in format.
func NewPartitioner(store contract.BlobStore, format schema.FileFormat, logger *zap.Logger, metrics *Metrics) *Partitioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Partitioner{store: store, format: format, logger: logger, metrics: metrics}
}

// DirFor returns the default directory for partitions by key.
func DirFor(key schema.PartitionKey) string {
	if key == schema.PartitionByCVE {
		return schema.ChangelogsByCVEDir
	}
	return schema.ChangelogsByDateDir
}

// PartitionName returns the escaped blob name for a partition value. Names
// made only of dots are escaped so they never address a parent directory.
func PartitionName(value string) string {
	name := url.PathEscape(value)
	if name == "" {
		return "%00"
	}
	if strings.Trim(name, ".") == "" {
		return strings.Repeat("%2E", len(name))
	}
	return name
}

// Partition writes one blob per distinct value of key under dir. Rows keep
// their input order within a partition. Without overwrite, partitions that
// already exist are skipped whole.
func (p *Partitioner) Partition(ctx context.Context, records []schema.ChangeRecord, dir string, key schema.PartitionKey, overwrite bool) (result schema.PartitionResult, err error) {
	if len(records) == 0 {
		return result, nil
	}

	ctx, span := p.metrics.tracer.Start(ctx, "Partitioner.Partition")
	span.SetAttributes(
		attribute.String("key", string(key)),
		attribute.Int("records", len(records)))
	defer func() { endSpan(span, err) }()

	groups := make(map[string][]schema.ChangeRecord)
	for _, r := range records {
		var value string
		switch key {
		case schema.PartitionByCVE:
			value = r.CVE
		case schema.PartitionByDate:
			value = schema.FormatDate(r.Date)
		default:
			return result, fmt.Errorf("invalid partition key '%s'. must be cve or date", key)
		}
		groups[value] = append(groups[value], r)
	}

	values := make([]string, 0, len(groups))
	for v := range groups {
		values = append(values, v)
	}
	slices.Sort(values)

	for _, value := range values {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		blobKey := contract.CacheKey(dir, PartitionName(value), p.format)

		if !overwrite {
			exists, err := p.store.Exists(ctx, blobKey)
			if err != nil {
				return result, &schema.CacheIOError{Op: "exists", Key: blobKey, Err: err}
			}
			if exists {
				result.Skipped = append(result.Skipped, blobKey)
				p.metrics.partitions.WithLabelValues("skipped").Inc()
				continue
			}
		}

		data, err := tablefile.EncodeChanges(p.format, groups[value])
		if err != nil {
			return result, &schema.CacheIOError{Op: "encode", Key: blobKey, Err: err}
		}
		if err := p.store.Put(ctx, blobKey, data); err != nil {
			return result, &schema.CacheIOError{Op: "write", Key: blobKey, Err: err}
		}
		result.Written = append(result.Written, blobKey)
		p.metrics.partitions.WithLabelValues("written").Inc()
	}

	p.logger.Info("partitioned changelog",
		zap.String("key", string(key)),
		zap.String("dir", dir),
		zap.Int("written", len(result.Written)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}
