package registry

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/louisbranch/accord/internal/platform/errors"
	"github.com/louisbranch/accord/internal/registry/filter"
	"github.com/louisbranch/accord/internal/runtime"
	"github.com/louisbranch/accord/internal/storage/cursor"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// listModules answers ModulesQuery: filter, order by registration
// sequence, paginate with an opaque cursor bound to the filter.
func (r *Registry) listModules(deps runtime.Deps, query ModulesQuery) ([]byte, error) {
	pred, err := filter.Parse(query.Filter)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidFilter,
			fmt.Sprintf("invalid filter %q", query.Filter), err)
	}

	var afterSeq uint64
	if query.PageToken != "" {
		c, err := cursor.Decode(query.PageToken)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInvalidCursor, "invalid page token", err)
		}
		if err := cursor.ValidateFilterHash(c, query.Filter); err != nil {
			return nil, errors.Wrap(errors.CodeInvalidCursor, "page token does not match filter", err)
		}
		afterSeq = c.Seq
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var matched []Record
	err = deps.Store.Iterate([]byte(modPrefix), func(key, value []byte) (bool, error) {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return false, fmt.Errorf("unmarshal record at %q: %w", key, err)
		}
		if rec.Seq <= afterSeq {
			return true, nil
		}
		fields := map[string]string{
			"namespace": rec.Info.Namespace,
			"name":      rec.Info.Name,
			"version":   rec.Info.Version,
			"status":    string(rec.Status),
		}
		if pred(fields) {
			matched = append(matched, rec)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Seq < matched[j].Seq })

	resp := ModulesResponse{}
	for i, rec := range matched {
		if i == pageSize {
			token, err := cursor.Encode(cursor.NextPage(matched[i-1].Seq, query.Filter))
			if err != nil {
				return nil, err
			}
			resp.NextPageToken = token
			break
		}
		resp.Records = append(resp.Records, RecordView{
			Info:      rec.Info,
			Status:    rec.Status,
			Reference: rec.Reference,
		})
	}
	return json.Marshal(resp)
}
