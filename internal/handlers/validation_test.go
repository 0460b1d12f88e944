package handlers

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest_ReportsJSONPaths(t *testing.T) {
	req := ImportTasksRequest{
		Tasks: []ImportTaskRequest{
			{ClientID: "c1", Title: "ok"},
			{ClientID: "c2", Title: "", Status: "archived"},
		},
	}

	err := ValidateRequest(req)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Fields, 2)
	assert.Equal(t, FieldError{Field: "tasks[1].title", Message: "this field is required"}, ve.Fields[0])
	assert.Equal(t, "tasks[1].status", ve.Fields[1].Field)
	assert.Equal(t, "must be one of: todo in_progress done", ve.Fields[1].Message)
	assert.True(t, strings.HasPrefix(err.Error(), "validation failed: tasks[1].title"))
}

func TestValidateRequest_ListLimits(t *testing.T) {
	tags := make([]string, 21)
	for i := range tags {
		tags[i] = "t"
	}

	err := ValidateRequest(CreateTaskRequest{Title: "a", Tags: tags})

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "tags", ve.Fields[0].Field)
	assert.Equal(t, "must contain at most 20 items", ve.Fields[0].Message)
}

func TestValidateRequest_Valid(t *testing.T) {
	assert.NoError(t, ValidateRequest(CreateTaskRequest{Title: "Water plants", Priority: "low"}))
}
