package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"feedscroll/internal/model"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		item  model.Item
		query model.Query
		want  bool
	}{
		{
			name:  "empty query passes everything",
			item:  model.Item{Title: "anything", Description: "whatever"},
			query: model.Query{},
			want:  true,
		},
		{
			name:  "search matches title",
			item:  model.Item{Title: "Kubernetes 1.32 released", Description: "New features"},
			query: model.Query{Search: "kubernetes"},
			want:  true,
		},
		{
			name:  "search matches description",
			item:  model.Item{Title: "Release notes", Description: "Kubernetes sidecar support"},
			query: model.Query{Search: "sidecar"},
			want:  true,
		},
		{
			name:  "search is case insensitive",
			item:  model.Item{Title: "KUBERNETES release"},
			query: model.Query{Search: "kubeRNetes"},
			want:  true,
		},
		{
			name:  "search no match",
			item:  model.Item{Title: "Python update", Description: "New features"},
			query: model.Query{Search: "kubernetes"},
			want:  false,
		},
		{
			name:  "trailing space is part of the search",
			item:  model.Item{Title: "Helm chart"},
			query: model.Query{Search: "helm "},
			want:  true,
		},
		{
			name:  "trailing space requires a word break",
			item:  model.Item{Title: "foox"},
			query: model.Query{Search: "foo "},
			want:  false,
		},
		{
			name:  "blank search passes everything",
			item:  model.Item{Title: "anything"},
			query: model.Query{Search: "   "},
			want:  true,
		},
		{
			name:  "unicode search",
			item:  model.Item{Title: "Деплой в Kubernetes"},
			query: model.Query{Search: "деплой"},
			want:  true,
		},
		{
			name:  "tag intersection: one of many",
			item:  model.Item{Title: "x", Tags: []string{"go", "db"}},
			query: model.Query{Tags: []string{"rust", "db"}},
			want:  true,
		},
		{
			name:  "tag intersection: none",
			item:  model.Item{Title: "x", Tags: []string{"go"}},
			query: model.Query{Tags: []string{"rust"}},
			want:  false,
		},
		{
			name:  "item without tags fails tag filter",
			item:  model.Item{Title: "x"},
			query: model.Query{Tags: []string{"go"}},
			want:  false,
		},
		{
			name:  "search and tags must both match",
			item:  model.Item{Title: "Go generics", Tags: []string{"go"}},
			query: model.Query{Search: "rust", Tags: []string{"go"}},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.item, tt.query)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyPreservesOrder(t *testing.T) {
	items := []model.Item{
		{ID: "1", Title: "alpha", Tags: []string{"a"}},
		{ID: "2", Title: "beta", Tags: []string{"b"}},
		{ID: "3", Title: "alphabet", Tags: []string{"b"}},
		{ID: "4", Title: "gamma", Tags: []string{"a"}},
	}

	tests := []struct {
		name    string
		query   model.Query
		wantIDs []string
	}{
		{name: "no query", query: model.Query{}, wantIDs: []string{"1", "2", "3", "4"}},
		{name: "search", query: model.Query{Search: "alpha"}, wantIDs: []string{"1", "3"}},
		{name: "tag", query: model.Query{Tags: []string{"a"}}, wantIDs: []string{"1", "4"}},
		{name: "search and tag", query: model.Query{Search: "alpha", Tags: []string{"b"}}, wantIDs: []string{"3"}},
		{name: "nothing", query: model.Query{Search: "zzz"}, wantIDs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, it := range Apply(items, tt.query) {
				got = append(got, it.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, got); diff != "" {
				t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
