package engine

import (
	"context"
	"fmt"

	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/operation"
)

const listDelimiter = "/"

// StartList lists one level of bucket under prefix, starting at continuation.
// Pages are assembled into a single result; cancellation is checked between pages.
func (e *Engine) StartList(bucket, prefix, continuation string) string {
	h := operation.New(operation.KindList, bucket, fmt.Sprintf("Listing %s/%s", bucket, prefix))
	h.SetTotal(1, true)
	return e.start(h, "list", func(ctx context.Context, r *run) {
		e.runList(ctx, r, prefix, continuation)
	})
}

func (e *Engine) runList(ctx context.Context, r *run, prefix, token string) {
	h := r.h
	bucket := h.Bucket()
	result := &operation.ListResult{
		Bucket:   bucket,
		Prefix:   prefix,
		Objects:  []gateway.ObjectEntry{},
		Prefixes: []string{},
	}
	h.SetCurrentItem(bucket + "/" + prefix)

	for {
		if h.CancelRequested() {
			e.interrupt(r)
			return
		}

		var page *gateway.ObjectPage
		err := e.withRetry(ctx, "ListObjects", func() error {
			var err error
			page, err = e.gw.ListObjects(ctx, &gateway.ListObjectsInput{
				Bucket:            bucket,
				Prefix:            prefix,
				Delimiter:         listDelimiter,
				ContinuationToken: token,
				MaxKeys:           e.cfg.listPageSize,
			})
			return err
		})
		if err != nil {
			e.abort(r, operation.NewErrorEntry(bucket, err))
			return
		}

		for _, obj := range page.Objects {
			// the folder placeholder of the listed prefix itself
			if obj.Key == prefix {
				continue
			}
			result.Objects = append(result.Objects, obj)
		}
		result.Prefixes = append(result.Prefixes, page.CommonPrefixes...)

		token = page.NextToken
		if token == "" {
			break
		}
		if limit := e.cfg.maxListEntries; limit > 0 && len(result.Objects)+len(result.Prefixes) >= limit {
			result.NextToken = token
			break
		}
	}

	h.SetListResult(result)
	h.AddCompleted(1)
}
