package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/tallysync/internal/config"
)

func TestResolveTarget(t *testing.T) {
	base := config.BigQueryConfig{ProjectID: "proj", Dataset: "ds", Table: "exports"}

	got, err := resolveTarget(base, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, base, got)

	got, err = resolveTarget(base, "other", "", "audit")
	require.NoError(t, err)
	assert.Equal(t, config.BigQueryConfig{ProjectID: "other", Dataset: "ds", Table: "audit"}, got)
}

func TestResolveTarget_DefaultDataset(t *testing.T) {
	got, err := resolveTarget(config.BigQueryConfig{Table: "exports"}, "proj", "", "")
	require.NoError(t, err)
	assert.Equal(t, "tallysync", got.Dataset)
}

func TestResolveTarget_NoProject(t *testing.T) {
	_, err := resolveTarget(config.BigQueryConfig{}, "", "ds", "")
	assert.ErrorIs(t, err, errNoProject)
}
