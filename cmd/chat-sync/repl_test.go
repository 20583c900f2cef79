package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREPLUsageErrors(t *testing.T) {
	var out bytes.Buffer
	r := newREPL(nil, nil, &out)
	ctx := context.Background()

	for _, line := range []string{"/open", "/open abc", "/react 5", "/edit x hi", "/delete -1", "/bogus"} {
		err := r.exec(ctx, line)
		var usage usageError
		assert.ErrorAs(t, err, &usage, line)
	}
}

func TestREPLHelpAndQuit(t *testing.T) {
	var out bytes.Buffer
	r := newREPL(nil, nil, &out)

	require.NoError(t, r.exec(context.Background(), "/help"))
	assert.Contains(t, out.String(), "/open <id>")
	assert.ErrorIs(t, r.exec(context.Background(), "/quit"), errQuit)
	assert.NoError(t, r.exec(context.Background(), ""))
}
