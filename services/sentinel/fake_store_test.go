// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import "context"

// fakeReadOnlyStore implements datastore.ReadOnlyStore with a pluggable
// query function so stage tests can script database behavior.
type fakeReadOnlyStore struct {
	QueryFunc func(ctx context.Context, sqlText string) ([]map[string]any, error)

	// Queries records every SQL text passed to Query, in order.
	Queries []string
}

func (f *fakeReadOnlyStore) Query(ctx context.Context, sqlText string) ([]map[string]any, error) {
	f.Queries = append(f.Queries, sqlText)
	if f.QueryFunc == nil {
		return nil, nil
	}
	return f.QueryFunc(ctx, sqlText)
}

func (f *fakeReadOnlyStore) Ping(ctx context.Context) error { return nil }

func (f *fakeReadOnlyStore) Close() error { return nil }
