package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		url  string
		want Kind
	}{
		{"magnet:?xt=urn:btih:abc", KindTorrent},
		{"MAGNET:?xt=urn:btih:abc", KindTorrent},
		{"https://example.com/ubuntu.torrent", KindTorrent},
		{"https://example.com/ubuntu.TORRENT?token=1", KindTorrent},
		{"/srv/watch/linux.torrent", KindTorrent},
		{"https://example.com/video", KindGeneric},
		{"http://example.com/file.zip", KindGeneric},
		{"https://example.com/torrent/page", KindGeneric},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.url), tc.url)
	}
}

func TestValidateSubmissionAccepts(t *testing.T) {
	cases := map[string]Kind{
		"magnet:?xt=urn:btih:abc":             KindTorrent,
		"  https://example.com/video  ":       KindGeneric,
		"http://example.com/a.torrent":        KindTorrent,
		"/home/me/watch/debian-12.torrent":    KindTorrent,
		"https://www.youtube.com/watch?v=abc": KindGeneric,
	}
	for raw, want := range cases {
		cleaned, kind, err := ValidateSubmission(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, kind, raw)
		assert.NotContains(t, cleaned, " ")
	}
}

func TestValidateSubmissionRejects(t *testing.T) {
	for _, raw := range []string{
		"notaurl",
		"",
		"   ",
		"ftp://example.com/file",
		"https://",
		"magnet:?dn=no-hash",
		"relative/path.torrent",
		"javascript:alert(1)",
	} {
		_, _, err := ValidateSubmission(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestTitleFromPath(t *testing.T) {
	assert.Equal(t, "My Video", TitleFromPath("/data/downloads/My Video.mp4"))
	assert.Equal(t, "Ubuntu 22.04 ISO", TitleFromPath("/data/downloads/Ubuntu 22.04 ISO"))
	assert.Equal(t, ".hidden", TitleFromPath("/data/.hidden"))
	// NFD 输入被规范成 NFC
	assert.Equal(t, "caf\u00e9", TitleFromPath("/data/cafe\u0301.mkv"))
}
