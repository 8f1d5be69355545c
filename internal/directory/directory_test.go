package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

// TestStaticDirectory verifies lookup, unknown users, and isolation
// from the caller's map.
func TestStaticDirectory(t *testing.T) {
	src := map[string][]string{"alice": {"Engineers", "Everyone"}}
	d := NewStaticDirectory(src)
	src["alice"] = append(src["alice"], "Injected")

	groups, err := d.UserGroups(context.Background(), "alice")
	if err != nil {
		t.Fatalf("UserGroups: %v", err)
	}
	if !reflect.DeepEqual(groups, []string{"Engineers", "Everyone"}) {
		t.Errorf("groups = %v", groups)
	}

	unknown, err := d.UserGroups(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("UserGroups unknown: %v", err)
	}
	if len(unknown) != 0 {
		t.Errorf("unknown user groups = %v, want empty", unknown)
	}
}

type erroringDirectory struct{}

func (erroringDirectory) UserGroups(context.Context, string) ([]string, error) {
	return nil, errors.New("idp unreachable")
}

// TestGroupsOrFallback verifies the degradation boundary: a failing
// directory yields exactly the fallback group.
func TestGroupsOrFallback(t *testing.T) {
	got := GroupsOrFallback(context.Background(), erroringDirectory{}, "alice")
	if !reflect.DeepEqual(got, []string{FallbackGroup}) {
		t.Errorf("got %v, want [%s]", got, FallbackGroup)
	}

	ok := GroupsOrFallback(context.Background(), NewStaticDirectory(map[string][]string{"a": {"G"}}), "a")
	if !reflect.DeepEqual(ok, []string{"G"}) {
		t.Errorf("healthy lookup got %v", ok)
	}
}

// TestGraphDirectory_UserGroups runs the client against a fake Graph
// endpoint: token exchange, pagination, and skipping of non-group
// directory objects.
func TestGraphDirectory_UserGroups(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		if err := r.ParseForm(); err != nil || r.PostFormValue("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "expires_in": 3600})
	})
	var srv *httptest.Server
	mux.HandleFunc("/users/alice@example.com/transitiveMemberOf", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{
			"value": [
				{"@odata.type": "#microsoft.graph.group", "displayName": "Engineers"},
				{"@odata.type": "#microsoft.graph.directoryRole", "displayName": "Skip-Me"}
			],
			"@odata.nextLink": %q
		}`, srv.URL+"/page2")
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": [{"@odata.type": "#microsoft.graph.group", "displayName": "Everyone"}]}`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	d := NewGraphDirectory("tenant", "client", "secret",
		WithGraphBaseURL(srv.URL),
		WithGraphTokenURL(srv.URL+"/token"))

	groups, err := d.UserGroups(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("UserGroups: %v", err)
	}
	if !reflect.DeepEqual(groups, []string{"Engineers", "Everyone"}) {
		t.Errorf("groups = %v", groups)
	}

	// Cached token: a second lookup must not hit the token endpoint.
	if _, err := d.UserGroups(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("second UserGroups: %v", err)
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint hit %d times, want 1", tokenCalls)
	}
}

// TestGraphDirectory_UpstreamError verifies failures surface as errors
// for GroupsOrFallback to absorb.
func TestGraphDirectory_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewGraphDirectory("tenant", "client", "secret",
		WithGraphBaseURL(srv.URL),
		WithGraphTokenURL(srv.URL+"/token"))

	if _, err := d.UserGroups(context.Background(), "alice"); err == nil {
		t.Fatal("expected an error from a throttled upstream")
	}

	groups := GroupsOrFallback(context.Background(), d, "alice")
	if !reflect.DeepEqual(groups, []string{FallbackGroup}) {
		t.Errorf("fallback groups = %v", groups)
	}
}
