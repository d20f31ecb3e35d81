package template

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Substitution(t *testing.T) {
	got := Render("Order #{{workOrderNumber}}: {{title}}", map[string]string{
		"workOrderNumber": "42",
		"title":           "Fix elevator",
	})
	assert.Equal(t, "Order #42: Fix elevator", got)
}

func TestRender_UnknownTokenStaysVerbatim(t *testing.T) {
	got := Render("Hello {{foo}}, order {{workOrderNumber}}", map[string]string{
		"workOrderNumber": "7",
	})
	assert.Equal(t, "Hello {{foo}}, order 7", got)
}

func TestRender_NoTokens(t *testing.T) {
	assert.Equal(t, "plain text", Render("plain text", nil))
}

func TestRender_UnterminatedToken(t *testing.T) {
	assert.Equal(t, "broken {{title", Render("broken {{title", map[string]string{"title": "x"}))
}

func TestRender_AdjacentTokens(t *testing.T) {
	got := Render("{{a}}{{b}}{{a}}", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, "121", got)
}

func TestStaticSource_Lookup(t *testing.T) {
	src := StaticSource{
		"wo_stuck": {Subject: "Stuck: {{title}}", Body: "Order {{workOrderNumber}} needs attention"},
	}

	tpl, err := src.Lookup(context.Background(), "wo_stuck")
	require.NoError(t, err)
	assert.Equal(t, "Stuck: {{title}}", tpl.Subject)

	_, err = src.Lookup(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}
