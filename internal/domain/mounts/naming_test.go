package mounts

import (
	"errors"
	"testing"
)

func TestParseServer(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"//nas/music", "//nas/music", false},
		{`\\nas\music`, "//nas/music", false},
		{"smb://nas.local/music/flac", "//nas.local/music/flac", false},
		{"CIFS://10.0.0.2/share/", "//10.0.0.2/share", false},
		{"nas/music", "//nas/music", false},
		{"", "", true},
		{"//nas", "", true},
		{"//nas/", "", true},
		{"//na s/music", "", true},
		{"//nas/music,uid=0", "", true},
		{"//nas/music/../../etc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseServer(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("ParseServer(%q) err = %v, want invalid_request", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServer(%q) unexpected error: %v", tt.in, err)
			}
			if got.Source() != tt.want {
				t.Errorf("ParseServer(%q) = %q, want %q", tt.in, got.Source(), tt.want)
			}
		})
	}
}

func TestCleanMountpoint(t *testing.T) {
	good := map[string]string{
		"/mnt/music":  "/mnt/music",
		"/mnt/music/": "/mnt/music",
		"/mnt//a/./b": "/mnt/a/b",
	}
	for in, want := range good {
		got, err := CleanMountpoint(in)
		if err != nil || got != want {
			t.Errorf("CleanMountpoint(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	for _, in := range []string{"", "mnt/x", "/", "/mnt/../etc", "/mnt/\x00"} {
		if _, err := CleanMountpoint(in); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("CleanMountpoint(%q) err = %v, want invalid_request", in, err)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   Share
		want string
	}{
		{Share{Host: "nas", Path: "music"}, "nas_music"},
		{Share{Host: "10.0.0.2", Path: "a b/c"}, "10.0.0.2_a_b_c"},
		{Share{Host: "nas", Path: "Müsik"}, "nas_M_sik"},
		{Share{Host: "..", Path: ".."}, "share"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
