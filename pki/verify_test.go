package pki_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imovelprime/primegate/pki"
	"github.com/imovelprime/primegate/storage/files"
)

func bootstrapFast(t *testing.T, dir string) *files.Store {
	t.Helper()
	cfg := testConfig(t)
	cfg.CAKeyBits = pki.MinKeyBits
	store := files.New(dir)
	_, err := pki.Bootstrap(t.Context(), store, cfg)
	require.NoError(t, err)
	return store
}

func TestVerify_Consistent(t *testing.T) {
	store := bootstrapFast(t, t.TempDir())

	report, err := pki.Verify(store)
	require.NoError(t, err)
	assert.Equal(t, "CN=ImovelPrime-CA, OU=TI, O=ImovelPrime, L=Diamantina, ST=MG, C=BR", report.CA[pki.FieldSubject])
	assert.Equal(t, report.CA[pki.FieldSubject], report.Leaf[pki.FieldIssuer])
	assert.Equal(t, "false", report.Leaf[pki.FieldIsCA])
	assert.Equal(t, pki.StatusActive, report.Leaf[pki.FieldStatus])
	assert.Equal(t, "RSA 2048", report.Leaf[pki.FieldKeyAlgorithm])
	assert.Equal(t, "CN=localhost, O=ImovelPrime, C=BR", report.CSRSubject)
}

func TestVerify_MissingArtifact(t *testing.T) {
	_, err := pki.Verify(files.New(t.TempDir()))
	assert.ErrorIs(t, err, pki.ErrVerification)
	assert.ErrorIs(t, err, pki.ErrMissingArtifact)
	assert.Contains(t, err.Error(), pki.ArtifactCAKey)
}

func TestVerify_EmptyArtifact(t *testing.T) {
	store := bootstrapFast(t, t.TempDir())
	require.NoError(t, store.Persist(pki.ArtifactLeafCSR, []byte("\n")))

	_, err := pki.Verify(store)
	assert.ErrorIs(t, err, pki.ErrMissingArtifact)
	assert.Contains(t, err.Error(), pki.ArtifactLeafCSR)
}

func TestVerify_MixedRuns(t *testing.T) {
	a := bootstrapFast(t, t.TempDir())
	b := bootstrapFast(t, t.TempDir())

	tests := []struct {
		name     string
		artifact string
		want     string
	}{
		{"foreign CA certificate", pki.ArtifactCACert, pki.ArtifactCAKey},
		{"foreign CA key", pki.ArtifactCAKey, pki.ArtifactCAKey},
		{"foreign leaf certificate", pki.ArtifactLeafCert, pki.ArtifactLeafCert},
		{"foreign leaf key", pki.ArtifactLeafKey, pki.ArtifactLeafKey},
		{"foreign CSR", pki.ArtifactLeafCSR, pki.ArtifactLeafCSR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mixed := files.New(t.TempDir())
			for _, name := range pki.ArtifactNames() {
				src := a
				if name == tt.artifact {
					src = b
				}
				data, err := src.Read(name)
				require.NoError(t, err)
				require.NoError(t, mixed.Persist(name, data))
			}

			_, err := pki.Verify(mixed)
			require.Error(t, err)
			assert.ErrorIs(t, err, pki.ErrVerification)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestVerify_GarbagePEM(t *testing.T) {
	store := bootstrapFast(t, t.TempDir())
	require.NoError(t, store.Persist(pki.ArtifactLeafCert, []byte("not pem")))

	_, err := pki.Verify(store)
	assert.ErrorIs(t, err, pki.ErrVerification)
	assert.Contains(t, err.Error(), pki.ArtifactLeafCert)
}
