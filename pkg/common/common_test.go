package common

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginateResponse(t *testing.T) {
	data := []string{"item1", "item2"}

	res := PaginateResponse(data, 100, 1, 10, "")
	assert.Equal(t, "success", res.Message)
	assert.Equal(t, 1, res.CurrentPage)
	assert.Equal(t, 10, res.LastPage)
	assert.Equal(t, 2, res.NextPage)
	assert.Equal(t, 0, res.PrevPage)
	assert.Equal(t, int64(100), res.Count)

	// Last page
	res = PaginateResponse(data, 100, 10, 10, "")
	assert.Equal(t, 0, res.NextPage)

	// Middle page
	res = PaginateResponse(data, 100, 5, 10, "")
	assert.Equal(t, 4, res.PrevPage)
	assert.Equal(t, 6, res.NextPage)
}

func TestPageBounds(t *testing.T) {
	cases := []struct {
		total, page, limit int
		start, end         int
	}{
		{total: 25, page: 1, limit: 10, start: 0, end: 10},
		{total: 25, page: 3, limit: 10, start: 20, end: 25},
		{total: 25, page: 4, limit: 10, start: 25, end: 25},
		{total: 25, page: 0, limit: 10, start: 0, end: 0},
		{total: 0, page: 1, limit: 10, start: 0, end: 0},
	}
	for _, c := range cases {
		start, end := PageBounds(c.total, c.page, c.limit)
		assert.Equal(t, c.start, start, "start of %+v", c)
		assert.Equal(t, c.end, end, "end of %+v", c)
	}
}

func TestResponses(t *testing.T) {
	ok := NewSuccessResponse([]int{1}, "done")
	assert.True(t, ok.Success)
	assert.Equal(t, http.StatusOK, ok.Status)

	bad := NewErrorResponse("missing", nil, http.StatusNotFound)
	assert.False(t, bad.Success)
	assert.Equal(t, http.StatusNotFound, bad.Status)
}
