package response

import "testing"

func TestBuildPagination(t *testing.T) {
	got := BuildPagination(2, 20, 41)
	if got.TotalPage != 3 || got.Page != 2 || got.PageSize != 20 || got.Total != 41 {
		t.Fatalf("unexpected pagination: %+v", got)
	}
	if empty := BuildPagination(1, 0, 10); empty.TotalPage != 0 {
		t.Fatalf("zero page size should yield zero pages, got %+v", empty)
	}
}
