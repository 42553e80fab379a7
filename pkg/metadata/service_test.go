package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/shelvr/shelvr/internal/testgen"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/shelvr/shelvr/pkg/errcodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeOf(t *testing.T, err error) errcodes.Code {
	t.Helper()
	var e *errcodes.Error
	require.True(t, errors.As(err, &e), "expected an *errcodes.Error, got %v", err)
	return e.Code
}

func TestValidate(t *testing.T) {
	t.Parallel()

	svc := NewService(config.NewForTest())
	dir := t.TempDir()

	t.Run("too small", func(t *testing.T) {
		path := testgen.WriteSizedFile(t, dir, "tiny.epub", 500)
		_, err := svc.Validate(context.Background(), path)
		require.Error(t, err)
		assert.Equal(t, errcodes.CodeFileTooSmall, codeOf(t, err))

		var e *errcodes.Error
		require.True(t, errors.As(err, &e))
		assert.False(t, e.Recoverable)
		assert.Equal(t, errcodes.Message(errcodes.CodeFileTooSmall), e.Error())
	})

	t.Run("large enough", func(t *testing.T) {
		path := testgen.WriteSizedFile(t, dir, "fine.epub", 2000)
		result, err := svc.Validate(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, []string{WarningNotZip}, result.Warnings)
	})

	t.Run("real epub has no warnings", func(t *testing.T) {
		path := testgen.GenerateEPUB(t, dir, "real.epub", testgen.EPUBOptions{
			Title:         "Real",
			Description:   "A book long enough to look like one.",
			HasCover:      true,
			CoverMimeType: "image/jpeg",
		})
		result, err := svc.Validate(context.Background(), path)
		require.NoError(t, err)
		assert.Empty(t, result.Warnings)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := svc.Validate(context.Background(), filepath.Join(dir, "nope.epub"))
		assert.Equal(t, errcodes.CodeFileNotFound, codeOf(t, err))
	})

	t.Run("extension is case-insensitive", func(t *testing.T) {
		path := testgen.WriteSizedFile(t, dir, "LOUD.EPUB", 2000)
		_, err := svc.Validate(context.Background(), path)
		assert.NoError(t, err)
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := testgen.WriteSizedFile(t, dir, "book.pdf", 2000)
		_, err := svc.Validate(context.Background(), path)
		assert.Equal(t, errcodes.CodeInvalidExtension, codeOf(t, err))
	})

	t.Run("extension is checked before size", func(t *testing.T) {
		path := testgen.WriteSizedFile(t, dir, "small.txt", 10)
		_, err := svc.Validate(context.Background(), path)
		assert.Equal(t, errcodes.CodeInvalidExtension, codeOf(t, err))
	})
}

func TestValidate_LargeFileWarns(t *testing.T) {
	t.Parallel()

	cfg := config.NewForTest()
	cfg.EpubWarnSizeBytes = 1500
	svc := NewService(cfg)

	path := testgen.WriteSizedFile(t, t.TempDir(), "big.epub", 2000)
	result, err := svc.Validate(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, result.Warnings, WarningLargeFile)
}

func TestValidate_PermissionDenied(t *testing.T) {
	t.Parallel()

	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	dir := t.TempDir()
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Mkdir(locked, 0o755))
	path := testgen.WriteSizedFile(t, locked, "book.epub", 2000)
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	_, err := NewService(config.NewForTest()).Validate(context.Background(), path)
	assert.Equal(t, errcodes.CodePermissionDenied, codeOf(t, err))
	assert.True(t, errcodes.IsRecoverable(errcodes.CodePermissionDenied))
}

func TestExtract(t *testing.T) {
	t.Parallel()

	svc := NewService(config.NewForTest())
	dir := t.TempDir()

	t.Run("declared metadata", func(t *testing.T) {
		path := testgen.GenerateEPUB(t, dir, "declared.epub", testgen.EPUBOptions{
			Title:   "The Left Hand of Darkness",
			Authors: []string{"Ursula K. Le Guin", "Second Author", "Ursula K. Le Guin"},
		})
		md := svc.Extract(context.Background(), path)
		assert.Equal(t, "The Left Hand of Darkness", md.Title)
		assert.Equal(t, []string{"Ursula K. Le Guin", "Second Author"}, md.Authors)
	})

	t.Run("missing container", func(t *testing.T) {
		path := testgen.GenerateEPUB(t, dir, "No_Container.epub", testgen.EPUBOptions{
			Title:         "Ignored",
			OmitContainer: true,
		})
		md := svc.Extract(context.Background(), path)
		assert.Equal(t, "No Container", md.Title)
		assert.Empty(t, md.Authors)
	})

	t.Run("not a zip", func(t *testing.T) {
		path := testgen.WriteSizedFile(t, dir, "My_Book.epub", 2500)
		md := svc.Extract(context.Background(), path)
		assert.Equal(t, "My Book", md.Title)
		assert.Empty(t, md.Authors)
		assert.False(t, md.HasCover())
	})

	t.Run("missing title", func(t *testing.T) {
		path := testgen.GenerateEPUB(t, dir, "Untitled_Work.epub", testgen.EPUBOptions{
			Authors: []string{"Someone"},
		})
		md := svc.Extract(context.Background(), path)
		assert.Equal(t, "Untitled Work", md.Title)
		assert.Equal(t, []string{"Someone"}, md.Authors)
	})
}

func TestTitleFromFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/books/My_Book.epub", "My Book"},
		{"/books/Shout.EPUB", "Shout"},
		{"plain", "plain"},
		{"/books/.epub", unknownTitle},
		{"/books/a_b_c.epub.epub", "a b c.epub"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromFilename(tt.path))
		})
	}
}
