package cachekey

import "testing"

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{Directory("201", "acme.example"), "directory:201@acme.example"},
		{Groups("acme.example"), "directory:groups:acme.example"},
		{ReverseAuth("201", "acme.example"), "directory:reverseauth:201@acme.example"},
		{Dialplan("acme.example", ""), "dialplan:acme.example"},
		{Dialplan("acme.example", "fs1"), "dialplan:acme.example@fs1"},
		{DialplanPublic("441234567890", ""), "dialplan:public:441234567890"},
		{DialplanExclude("acme.example"), "dialplanexclude:acme.example"},
		{Languages("en", "f81d4fae-7dec-11d0-a765-00a0c91e6bf6"), "languages:en:f81d4fae-7dec-11d0-a765-00a0c91e6bf6"},
		{Configuration("acl.conf"), "configuration:acl.conf"},
		{Configuration("ivr.conf", "main"), "configuration:ivr.conf:main"},
		{XMLHandler("allowed_addresses"), "xmlhandler:allowed_addresses"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestUser(t *testing.T) {
	user, domain, ok := User("directory:201@acme.example")
	if !ok || user != "201" || domain != "acme.example" {
		t.Errorf("User() = %q, %q, %v", user, domain, ok)
	}
	for _, k := range []string{"directory:groups:acme.example", "directory:reverseauth:201@acme.example", "dialplan:public"} {
		if _, _, ok := User(k); ok {
			t.Errorf("User(%q) should not match", k)
		}
	}
}
