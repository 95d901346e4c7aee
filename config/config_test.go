// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	c := Default()
	c.Backend = "memory"
	require.Error(t, c.Validate())
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	c := Default()
	c.DataDir = ""
	require.Error(t, c.Validate())
}

func TestLoadParsesYAMLAndFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: file\ndata_dir: /var/lib/persistentprocess\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendFile, c.Backend)
	require.Equal(t, "/var/lib/persistentprocess", c.DataDir)
	require.Equal(t, Default().MetricsNamespace, c.MetricsNamespace)
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: memory\ndata_dir: /tmp/x\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadSurfacesMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
