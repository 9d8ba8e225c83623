package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"testing"
)

func apiGet(t *testing.T, env *testEnv, path, token string) (*stdhttp.Response, []byte) {
	t.Helper()

	req, err := stdhttp.NewRequest(stdhttp.MethodGet, env.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestListRoomsRequiresAuth(t *testing.T) {
	env := startTestServer(t)

	resp, _ := apiGet(t, env, "/api/rooms", "")
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp, _ = apiGet(t, env, "/api/rooms", "not-a-token")
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestListRoomsReturnsMemberships(t *testing.T) {
	env := startTestServer(t)

	resp, body := apiGet(t, env, "/api/rooms", signToken(t, 1, "alice"))
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var rooms []RoomResponse
	if err := json.Unmarshal(body, &rooms); err != nil {
		t.Fatalf("unmarshal rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != env.roomID || rooms[0].Name != "general" {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}

	// A user with no memberships gets an empty list, not an error.
	resp, body = apiGet(t, env, "/api/rooms", signToken(t, 99, "mallory"))
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &rooms); err != nil {
		t.Fatalf("unmarshal rooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("expected no rooms, got %+v", rooms)
	}
}

func TestListMessagesPaginatesBySeq(t *testing.T) {
	env := startTestServer(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, _, err := env.store.AppendMessage(ctx, env.roomID, 1, fmt.Sprintf("c%d", i), fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	path := fmt.Sprintf("/api/rooms/%d/messages?after_seq=2&limit=2", env.roomID)
	resp, body := apiGet(t, env, path, signToken(t, 2, "bob"))
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var msgs []MessageResponse
	if err := json.Unmarshal(body, &msgs); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Seq != 3 || msgs[1].Seq != 4 {
		t.Fatalf("unexpected page: %+v", msgs)
	}
	if msgs[0].Body != "m3" || msgs[0].UserID != 1 {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
}

func TestListMessagesForbiddenForNonMember(t *testing.T) {
	env := startTestServer(t)

	path := fmt.Sprintf("/api/rooms/%d/messages", env.roomID)
	resp, _ := apiGet(t, env, path, signToken(t, 99, "mallory"))
	if resp.StatusCode != stdhttp.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestListMessagesRejectsBadRoomID(t *testing.T) {
	env := startTestServer(t)

	resp, _ := apiGet(t, env, "/api/rooms/abc/messages", signToken(t, 1, "alice"))
	if resp.StatusCode != stdhttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
