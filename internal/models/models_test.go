package models

import (
	"errors"
	"testing"
	"time"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

func TestPlatform(t *testing.T) {
	t.Run("ParsePlatform", func(t *testing.T) {
		tc := []struct {
			in      string
			want    Platform
			wantErr bool
		}{
			{"instagram", Instagram, false},
			{" TikTok ", TikTok, false},
			{"Facebook", Facebook, false},
			{"myspace", "", true},
			{"", "", true},
		}
		for _, tt := range tc {
			t.Run(tt.in, func(t *testing.T) {
				got, err := ParsePlatform(tt.in)
				if tt.wantErr {
					if !errors.Is(err, shared.ErrUnknownPlatform) {
						t.Errorf("expected ErrUnknownPlatform, got %v", err)
					}
					return
				}
				if err != nil || got != tt.want {
					t.Errorf("ParsePlatform(%q) = %q, %v", tt.in, got, err)
				}
			})
		}
	})

	t.Run("ParsePlatforms dedupes", func(t *testing.T) {
		got, err := ParsePlatforms([]string{"tiktok", "TIKTOK", "instagram"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[0] != TikTok || got[1] != Instagram {
			t.Errorf("unexpected platforms %v", got)
		}
	})

	t.Run("ProfileURL", func(t *testing.T) {
		if got := TikTok.ProfileURL("@dancer"); got != "https://www.tiktok.com/@dancer" {
			t.Errorf("tiktok url = %q", got)
		}
		if got := Instagram.ProfileURL("natgeo"); got != "https://www.instagram.com/natgeo/" {
			t.Errorf("instagram url = %q", got)
		}
	})
}

func TestTaskState(t *testing.T) {
	for _, s := range []TaskState{StatePending, StateStarted} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []TaskState{StateSuccess, StateFailure, StateRevoked} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestCredentialUsable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)

	tc := []struct {
		name string
		cred Credential
		want bool
	}{
		{"no expiry", Credential{Handle: "a", AccessToken: "tok"}, true},
		{"future expiry", Credential{Handle: "a", AccessToken: "tok", ExpiresAt: &future}, true},
		{"expired", Credential{Handle: "a", AccessToken: "tok", ExpiresAt: &past}, false},
		{"no token", Credential{Handle: "a"}, false},
		{"no handle", Credential{AccessToken: "tok"}, false},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Usable(now); got != tt.want {
				t.Errorf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserValidate(t *testing.T) {
	if err := NewUser("a@example.com", "A", time.Now()).Validate(); err != nil {
		t.Errorf("valid user rejected: %v", err)
	}
	if err := NewUser("nope", "A", time.Now()).Validate(); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
