package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

func TestDSNFromURL(t *testing.T) {
	got, err := dsn(models.DatabaseConfig{
		URL:  "postgresql://app:pw@db:6432/pipeline",
		Host: "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgresql://app:pw@db:6432/pipeline", got)
}

func TestDSNFromFields(t *testing.T) {
	got, err := dsn(models.DatabaseConfig{
		Host:     "db.internal",
		Port:     6432,
		User:     "app",
		Password: "pw",
		Name:     "pipeline",
		SSLMode:  "require",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgresql://app:pw@db.internal:6432/pipeline?sslmode=require", got)
}

func TestDSNDefaults(t *testing.T) {
	got, err := dsn(models.DatabaseConfig{
		Host: "localhost",
		User: "app",
		Name: "pipeline",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgresql://app:@localhost:5432/pipeline?sslmode=disable", got)
}

func TestDSNIncompleteConfig(t *testing.T) {
	_, err := dsn(models.DatabaseConfig{})
	assert.Error(t, err)

	_, err = dsn(models.DatabaseConfig{Host: "localhost", User: "app"})
	assert.Error(t, err)
}
